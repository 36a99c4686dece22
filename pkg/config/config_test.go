package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
  output: stderr
data_dir: /var/lib/driftfs-test
shutdown_timeout: 45s
mounts:
  - path: /mnt/photos
    store:
      kind: s3
      name: photo-bucket
      s3:
        region: eu-west-1
        key_prefix: objects/
  - path: /mnt/scratch
    store:
      kind: filedir
      name: scratch
      root: /srv/scratch
maintenance:
  stats_flush_interval: 2s
  inode_unload_interval: 10m
  inode_unload_age: 30m
api:
  enabled: true
  port: 9001
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG (normalized), got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format json, got %q", cfg.Logging.Format)
	}
	if cfg.DataDir != "/var/lib/driftfs-test" {
		t.Errorf("Expected data_dir /var/lib/driftfs-test, got %q", cfg.DataDir)
	}
	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("Expected shutdown_timeout 45s, got %v", cfg.ShutdownTimeout)
	}

	if len(cfg.Mounts) != 2 {
		t.Fatalf("Expected 2 mounts, got %d", len(cfg.Mounts))
	}
	if cfg.Mounts[0].Store.Kind != "s3" || cfg.Mounts[0].Store.Name != "photo-bucket" {
		t.Errorf("Unexpected first mount store: %+v", cfg.Mounts[0].Store)
	}
	if cfg.Mounts[0].Store.S3.KeyPrefix != "objects/" {
		t.Errorf("Expected key_prefix objects/, got %q", cfg.Mounts[0].Store.S3.KeyPrefix)
	}
	if cfg.Mounts[1].Store.Root != "/srv/scratch" {
		t.Errorf("Expected filedir root /srv/scratch, got %q", cfg.Mounts[1].Store.Root)
	}

	if cfg.Maintenance.StatsFlushInterval != 2*time.Second {
		t.Errorf("Expected stats_flush_interval 2s, got %v", cfg.Maintenance.StatsFlushInterval)
	}
	if cfg.Maintenance.InodeUnloadInterval != 10*time.Minute {
		t.Errorf("Expected inode_unload_interval 10m, got %v", cfg.Maintenance.InodeUnloadInterval)
	}

	if cfg.API.Port != 9001 {
		t.Errorf("Expected api port 9001, got %d", cfg.API.Port)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level INFO, got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Maintenance.StatsFlushInterval != 1*time.Second {
		t.Errorf("Expected default stats_flush_interval 1s, got %v", cfg.Maintenance.StatsFlushInterval)
	}
	if cfg.Maintenance.InodeUnloadInterval != 0 {
		t.Errorf("Expected inode unload disabled by default, got %v", cfg.Maintenance.InodeUnloadInterval)
	}
	if cfg.API.Port != 8553 {
		t.Errorf("Expected default api port 8553, got %d", cfg.API.Port)
	}
}

func TestLoad_PartialConfigGetsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
data_dir: /tmp/driftfs
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/tmp/driftfs" {
		t.Errorf("Expected data_dir /tmp/driftfs, got %q", cfg.DataDir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format text, got %q", cfg.Logging.Format)
	}
	if cfg.Maintenance.InodeUnloadAge != 1*time.Hour {
		t.Errorf("Expected default inode_unload_age 1h, got %v", cfg.Maintenance.InodeUnloadAge)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "logging: [not: valid")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestSaveConfig_Roundtrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DataDir = "/var/lib/driftfs-roundtrip"
	cfg.Mounts = []MountConfig{
		{
			Path: "/mnt/data",
			Store: StoreConfig{
				Kind: "filedir",
				Name: "data",
				Root: "/srv/data",
			},
		},
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved config not found: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config failed: %v", err)
	}
	if loaded.DataDir != cfg.DataDir {
		t.Errorf("Expected data_dir %q, got %q", cfg.DataDir, loaded.DataDir)
	}
	if len(loaded.Mounts) != 1 || loaded.Mounts[0].Path != "/mnt/data" {
		t.Errorf("Mounts did not survive roundtrip: %+v", loaded.Mounts)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: info
data_dir: /tmp/driftfs
`)

	t.Setenv("DRIFTFS_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected env override to ERROR, got %q", cfg.Logging.Level)
	}
}
