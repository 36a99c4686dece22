package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	if err := Validate(nil); err == nil {
		t.Fatal("Expected validation error for nil config")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DataDir = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for missing data_dir")
	}
}

func TestValidate_RelativeMountPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mounts = []MountConfig{
		{Path: "mnt/data", Store: StoreConfig{Kind: "filedir", Name: "data", Root: "/srv/data"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for relative mount path")
	}
	if !strings.Contains(err.Error(), "absolute") {
		t.Errorf("Expected 'absolute' in error, got: %v", err)
	}
}

func TestValidate_DuplicateMountPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mounts = []MountConfig{
		{Path: "/mnt/data", Store: StoreConfig{Kind: "filedir", Name: "a", Root: "/srv/a"}},
		{Path: "/mnt/data/", Store: StoreConfig{Kind: "filedir", Name: "b", Root: "/srv/b"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate mount path")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected 'duplicate' in error, got: %v", err)
	}
}

func TestValidate_UnknownStoreKind(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mounts = []MountConfig{
		{Path: "/mnt/data", Store: StoreConfig{Kind: "ftp", Name: "x"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown store kind")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidateStore_UnknownKindRejected(t *testing.T) {
	// Direct callers bypass struct tag validation, so the kind switch
	// must reject unknown kinds itself.
	err := validateStore(&StoreConfig{Kind: "ftp", Name: "x"})
	if err == nil {
		t.Fatal("Expected error for unknown store kind")
	}
	if !strings.Contains(err.Error(), "unknown kind") {
		t.Errorf("Expected 'unknown kind' in error, got: %v", err)
	}
}

func TestValidate_FiledirMissingRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Mounts = []MountConfig{
		{Path: "/mnt/data", Store: StoreConfig{Kind: "filedir", Name: "data"}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for filedir store without root")
	}
	if !strings.Contains(err.Error(), "root") {
		t.Errorf("Expected 'root' in error, got: %v", err)
	}
}
