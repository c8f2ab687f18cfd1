package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for errors.Is checks. Each typed error below matches its
// sentinel, so callers can branch on the category without a type switch.
var (
	// ErrConfiguration indicates a config blob failed schema validation.
	ErrConfiguration = errors.New("invalid provider configuration")

	// ErrNotAuthorized indicates the provider has not completed authorization.
	ErrNotAuthorized = errors.New("provider not authorized")

	// ErrNotFound indicates a missing provider, file or folder.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate identity or an illegal state change.
	ErrConflict = errors.New("conflict")

	// ErrNotSupported indicates the adapter lacks an optional capability.
	ErrNotSupported = errors.New("operation not supported by provider")
)

// ConfigurationError is returned by Initialize when a config does not match
// the adapter's schema.
type ConfigurationError struct {
	Type    string
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid configuration field %q: %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: invalid configuration: %s", e.Type, e.Message)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NotAuthorizedError is returned by every operation of an adapter that was
// initialized without the tokens its auth flow produces.
type NotAuthorizedError struct {
	Type string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("%s: provider is pending authorization", e.Type)
}

func (e *NotAuthorizedError) Is(target error) bool { return target == ErrNotAuthorized }

// ProviderError wraps any failure reported by a remote backend.
//
// StatusCode carries the HTTP status returned by the backend when there was
// one (0 otherwise). Details holds structured diagnostics such as request ids.
type ProviderError struct {
	Type       string
	Op         string
	StatusCode int
	Message    string
	Details    map[string]any
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s failed (status %d): %s", e.Type, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s failed: %s", e.Type, e.Op, msg)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// Is maps 404 responses onto ErrNotFound and 409 onto ErrConflict, so callers
// can treat remote failures the same way as cache failures.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// NotFoundError reports a missing entity. Kind is "provider", "file",
// "folder", "upload" and so on.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports an identity collision that upsert matching could not
// resolve, or an illegal state transition.
type ConflictError struct {
	Kind    string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Kind, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Wrap converts err into a *ProviderError for backend type typ and operation
// op.
//
// Parameters:
//   - typ: Registry type of the adapter reporting the failure
//   - op: Operation name, e.g. "list" or "upload"
//   - err: Raw failure, may be nil
//
// Returns:
//   - error: nil for a nil err. A *ProviderError, *NotAuthorizedError or
//     *ConfigurationError anywhere in the chain is returned unchanged
func Wrap(typ, op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		pe *ProviderError
		na *NotAuthorizedError
		ce *ConfigurationError
	)
	if errors.As(err, &pe) || errors.As(err, &na) || errors.As(err, &ce) {
		return err
	}

	return &ProviderError{Type: typ, Op: op, Cause: err}
}

// StatusError builds a ProviderError from an HTTP status.
func StatusError(typ, op string, status int, message string) *ProviderError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &ProviderError{Type: typ, Op: op, StatusCode: status, Message: message}
}

// StatusCode returns the backend HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}
