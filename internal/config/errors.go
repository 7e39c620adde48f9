package config

import (
	"errors"
	"fmt"
)

// Sentinel kinds for configuration errors.
var (
	// ErrLoadConfig signals that a configuration source could not be read.
	ErrLoadConfig = errors.New("load config")

	// ErrInvalidConfig signals that loaded configuration fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// invalidf wraps ErrInvalidConfig with a formatted detail message.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
