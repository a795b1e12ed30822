package config

import "github.com/go-playground/validator/v10"

var structValidator = validator.New()

// Validate checks a loaded Config. Structural rules come from the struct
// tags; threshold ordering is checked separately because it spans fields.
func Validate(cfg Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	return validateThresholds(cfg.Thresholds)
}
