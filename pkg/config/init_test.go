package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitConfig_Success(t *testing.T) {
	// Override XDG_CONFIG_HOME so getConfigDir() resolves to a temp
	// directory. Using HOME doesn't work on Windows where
	// os.UserHomeDir() reads USERPROFILE.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# DriftFS Configuration File",
		"logging:",
		"data_dir:",
		"maintenance:",
		"api:",
		"privhelper:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Expected config to contain %q", section)
		}
	}

	// The starter config must itself load and validate.
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Starter config does not load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected starter level INFO, got %q", cfg.Logging.Level)
	}
}

func TestInitConfig_ExistingFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("First InitConfigToPath failed: %v", err)
	}

	err := InitConfigToPath(path, false)
	if err == nil {
		t.Fatal("Expected error for existing config file")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("First InitConfigToPath failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("data_dir: /custom\n"), 0600); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	if err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if strings.Contains(string(content), "/custom") {
		t.Error("Expected force to overwrite the modified config")
	}
}

func TestInitPlainConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitPlainConfigToPath(path, false); err != nil {
		t.Fatalf("InitPlainConfigToPath failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if strings.Contains(string(content), "#") {
		t.Error("Expected plain config to carry no comments")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Plain config does not load: %v", err)
	}
	def := GetDefaultConfig()
	if cfg.DataDir != def.DataDir {
		t.Errorf("Expected data_dir %q, got %q", def.DataDir, cfg.DataDir)
	}
	if cfg.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("Expected shutdown_timeout %v, got %v", def.ShutdownTimeout, cfg.ShutdownTimeout)
	}

	if err := InitPlainConfigToPath(path, false); err == nil {
		t.Fatal("Expected error for existing config file")
	}
	if err := InitPlainConfigToPath(path, true); err != nil {
		t.Fatalf("InitPlainConfigToPath with force failed: %v", err)
	}
}

func TestInitConfigToPath_CustomLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "driftfs", "config.yaml")

	if err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}
