package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tag validation is
// stateless so a single instance is safe for concurrent use.
var validate = validator.New()

// Validate checks the configuration for errors.
//
// Two layers of validation are applied:
//  1. Struct tag validation (required fields, value ranges, enums)
//  2. Cross-field validation that tags cannot express (mount path
//     uniqueness, store kind specific requirements)
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	return validateMounts(cfg.Mounts)
}

// validateMounts checks mount definitions for problems struct tags cannot
// catch.
func validateMounts(mounts []MountConfig) error {
	seen := make(map[string]struct{}, len(mounts))

	for i, m := range mounts {
		if !filepath.IsAbs(m.Path) {
			return fmt.Errorf("mount %d: path %q must be absolute", i, m.Path)
		}

		clean := filepath.Clean(m.Path)
		if _, ok := seen[clean]; ok {
			return fmt.Errorf("mount %d: duplicate mount path %q", i, clean)
		}
		seen[clean] = struct{}{}

		if err := validateStore(&m.Store); err != nil {
			return fmt.Errorf("mount %q: %w", m.Path, err)
		}
	}

	return nil
}

// validateStore checks kind-specific store requirements.
func validateStore(s *StoreConfig) error {
	switch s.Kind {
	case "filedir":
		if s.Root == "" {
			return fmt.Errorf("filedir store %q: root directory is required", s.Name)
		}
		if !filepath.IsAbs(s.Root) {
			return fmt.Errorf("filedir store %q: root %q must be absolute", s.Name, s.Root)
		}
	case "s3":
		// Bucket doubles as the store name; no extra required fields
	default:
		return fmt.Errorf("store %q: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}
