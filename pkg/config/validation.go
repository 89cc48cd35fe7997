package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Exports) == 0 {
		return fmt.Errorf("exports: at least one export must be configured")
	}

	ids := make(map[uint16]bool)
	paths := make(map[string]bool)
	for i, exp := range cfg.Exports {
		if ids[exp.ID] {
			return fmt.Errorf("exports[%d]: duplicate export id %d", i, exp.ID)
		}
		ids[exp.ID] = true

		if paths[exp.Path] {
			return fmt.Errorf("exports[%d]: duplicate export path %q", i, exp.Path)
		}
		paths[exp.Path] = true
	}

	if cfg.Metrics.Enabled && cfg.Admin.Enabled && cfg.Metrics.Port == cfg.Admin.Port {
		return fmt.Errorf("admin.port: %d is already used by metrics", cfg.Admin.Port)
	}

	opts, err := cfg.Clients.RateLimitOptions()
	if err != nil {
		return err
	}
	if opts.Enabled {
		if opts.Limit() == 0 {
			return fmt.Errorf("clients.rate_limit: requests and per must be positive when enabled")
		}
		if opts.Burst == 0 {
			return fmt.Errorf("clients.rate_limit: burst must be positive when enabled")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
