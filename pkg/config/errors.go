package config

import (
	"errors"
	"fmt"
)

// ErrMissingConfig is matched by every ConfigurationError via errors.Is.
var ErrMissingConfig = errors.New("required configuration is missing")

// ConfigurationError reports a required setting that has not been supplied.
// It is fatal: nothing should be attempted until the setting is fixed.
type ConfigurationError struct {
	// Field is the setting name as it appears in the environment.
	Field string
	// Description is a human readable name, safe to show to API callers.
	Description string
}

// Missing builds a ConfigurationError for the given setting.
func Missing(field, description string) *ConfigurationError {
	return &ConfigurationError{Field: field, Description: description}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s (%s) is not set", e.Description, e.Field)
}

// Is lets callers test for ErrMissingConfig without a type assertion.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrMissingConfig
}
