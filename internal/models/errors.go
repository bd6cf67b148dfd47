package models

import "fmt"

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Pre-start validation
	ErrConfigurationInvalid ErrorType = "configuration_invalid"
	ErrStimulusMissing      ErrorType = "stimulus_missing"
	ErrStimulusLoadFailed   ErrorType = "stimulus_load_failed"

	// Presentation
	ErrRenderFailed ErrorType = "render_failed"

	// Response collection
	ErrInputFailed ErrorType = "input_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// ConfigurationError reports a trial configuration that cannot be started.
// It is returned before any timer or listener is armed.
type ConfigurationError struct {
	Type   ErrorType
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid trial configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError returns a ConfigurationError of type ErrConfigurationInvalid.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Type: ErrConfigurationInvalid, Field: field, Reason: reason}
}
