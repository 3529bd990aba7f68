package config

import (
	"errors"
	"fmt"

	pmerrors "github.com/standardbeagle/pathmap/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Returns an error if validation fails.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateReload(&cfg.Reload); err != nil {
		return pmerrors.NewMappingError(pmerrors.ErrorTypeConfig, "validate reload", err)
	}
	if cfg.StorageDir == "" {
		return pmerrors.NewMappingError(pmerrors.ErrorTypeConfig, "validate storage_dir",
			errors.New("storage_dir cannot be empty"))
	}
	return nil
}

func (v *Validator) validateReload(r *Reload) error {
	switch r.Policy {
	case "restart", "ignore", "prompt":
	case "":
		r.Policy = "prompt"
	default:
		return fmt.Errorf("unknown policy %q, want restart, ignore or prompt", r.Policy)
	}

	if r.DebounceMs == 0 {
		r.DebounceMs = 2000
	}
	if r.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must be positive, got %d", r.DebounceMs)
	}
	return nil
}
