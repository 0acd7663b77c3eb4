package generations

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration, validation and stream handling.
// All use prefix "generations:" for identification. Callers should use errors.Is/errors.As.
var (
	ErrUnsupportedProvider  = errors.New("generations: unsupported provider")
	ErrUnsupportedOperation = errors.New("generations: operation not supported by this provider")
	ErrMissingCredential    = errors.New("generations: required credential not found")
	ErrMissingArgument      = errors.New("generations: required argument missing")
	ErrInvalidArgument      = errors.New("generations: argument is malformed")
	ErrStreamConsumed       = errors.New("generations: stream already consumed")
	ErrInvalidTemplate      = errors.New("generations: prompt template is invalid")
	ErrTemplateNotFound     = errors.New("generations: template not found")
	ErrInvalidManifest      = errors.New("generations: template document is malformed")
)

// ConfigurationError reports a missing credential or an unsupported provider.
// It is returned before any network call.
type ConfigurationError struct {
	Provider Provider
	Key      string // credential key, empty for provider errors
	Detail   string // overrides the default message when set
	Err      error
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Key != "":
		return fmt.Sprintf("%s: %s not found in environment variables", e.Provider, e.Key)
	default:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationError reports a missing or malformed caller argument.
type ValidationError struct {
	Field string
	Err   error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("generations: field %q: %v", e.Field, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *ValidationError) Unwrap() error { return e.Err }

// UpstreamError wraps a native backend failure. The SDK error is kept unmodified
// and reachable through errors.As.
type UpstreamError struct {
	Provider  Provider
	Operation Operation
	Err       error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

// Unwrap returns the wrapped error for errors.Is/errors.As.
func (e *UpstreamError) Unwrap() error { return e.Err }

// UnsupportedError is the static incapacity of a provider for an operation.
// errors.Is(err, ErrUnsupportedOperation) reports true.
type UnsupportedError struct {
	Provider  Provider
	Operation Operation
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s is not supported by this provider", e.Provider, e.Operation)
}

// Is matches ErrUnsupportedOperation.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupportedOperation }

// MissingArgument returns a ValidationError for a required field.
func MissingArgument(field string) error {
	return &ValidationError{Field: field, Err: ErrMissingArgument}
}

// Upstream wraps err as an UpstreamError. A nil err stays nil.
func Upstream(p Provider, op Operation, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Provider: p, Operation: op, Err: err}
}

// Compile-time checks that the error types implement error.
var (
	_ error = (*ConfigurationError)(nil)
	_ error = (*ValidationError)(nil)
	_ error = (*UpstreamError)(nil)
	_ error = (*UnsupportedError)(nil)
)
