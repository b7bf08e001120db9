package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/groboclown/p4ic4idea-sub032/internal/protocol/rpc/charset"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("p4charset", func(fl validator.FieldLevel) bool {
		_, ok := charset.Lookup(fl.Field().String())
		return ok
	})
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
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
	if _, err := TuningFromProperties(cfg.RPC.Tuning, cfg.RPC.Properties); err != nil {
		return fmt.Errorf("rpc.properties: %w", err)
	}

	if cfg.RPC.Unicode && cfg.RPC.Charset != "" {
		if cs, ok := charset.Lookup(cfg.RPC.Charset); ok && !cs.IsUTF8() {
			return fmt.Errorf("rpc: unicode mode requires a UTF-8 charset, got %q", cfg.RPC.Charset)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics: port is required when metrics are enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
