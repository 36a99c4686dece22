package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// starterConfig is the commented sample configuration written by
// `driftfs init`. It shows every section with its default value.
const starterConfig = `# DriftFS Configuration File
#
# This file was generated by 'driftfs init'. All values shown are the
# defaults; uncomment and edit what you need.
#
# Environment variables override file values, e.g.:
#   DRIFTFS_LOGGING_LEVEL=DEBUG

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Output format: text, json
  format: text
  # Where logs are written: stdout, stderr, or a file path
  output: stderr

# Daemon state directory: instance lock, local object store, PID file
data_dir: /var/lib/driftfs

# Maximum time to wait for graceful shutdown
shutdown_timeout: 30s

# Mount points brought up at startup
mounts: []
#  - path: /mnt/photos
#    store:
#      kind: s3
#      name: my-photo-bucket
#      s3:
#        region: eu-west-1
#        key_prefix: objects/
#  - path: /mnt/scratch
#    store:
#      kind: filedir
#      name: scratch
#      root: /srv/scratch

maintenance:
  # How often per-mount counters are flushed to the metrics sink
  stats_flush_interval: 1s
  # How often idle inodes are unloaded; 0 disables the job
  inode_unload_interval: 0s
  # Minimum idle age before an inode is unloaded
  inode_unload_age: 1h

api:
  enabled: true
  host: 127.0.0.1
  port: 8553

metrics:
  enabled: true

# Privileged helper for mount/unmount syscalls; leave socket_path empty
# to attach mounts in-process
privhelper:
  socket_path: ""
  connect_timeout: 5s
`

// InitConfigToPath writes the starter configuration to the given path.
// Fails if the file already exists unless force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitPlainConfigToPath writes the effective default configuration as
// plain YAML, without the explanatory comments of the starter file.
// Useful as a base for machine-managed configs.
func InitPlainConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	return SaveConfig(GetDefaultConfig(), path)
}
