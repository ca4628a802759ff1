package detection

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrDevice marks an error raised by the accelerator itself (out of memory, driver fault, ...).
// Backends that can fall back to the general processor look for it in the error chain.
var ErrDevice = errors.New("accelerator device error")

// ValidationFailure is a bad selector or bad input. It is never retried.
type ValidationFailure struct {
	Field  string
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError means a backend is missing a required setting, usually a credential.
// It is kept distinct from ProcessingFailure so operators can tell "misconfigured" from "down".
type ConfigurationError struct {
	Backend BackendKind
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s backend is not configured: missing %s", e.Backend, e.Setting)
}

// ModelLoadFailure means the local backend exhausted its whole loader chain.
type ModelLoadFailure struct {
	Path   string
	Causes []error
}

func (e *ModelLoadFailure) Error() string {
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("could not load model %s: %s", e.Path, strings.Join(msgs, "; "))
}

// Unwrap exposes the individual loader failures.
func (e *ModelLoadFailure) Unwrap() []error {
	return e.Causes
}

// ProcessingFailure is an unrecoverable network or inference failure of one backend.
type ProcessingFailure struct {
	Backend BackendKind
	Cause   error
}

// NewProcessingFailure wraps cause for the given backend.
func NewProcessingFailure(backend BackendKind, cause error) *ProcessingFailure {
	return &ProcessingFailure{Backend: backend, Cause: cause}
}

func (e *ProcessingFailure) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s backend failed to process the image", e.Backend)
	}
	return fmt.Sprintf("%s backend failed to process the image: %s", e.Backend, e.Cause.Error())
}

// Unwrap returns the underlying cause.
func (e *ProcessingFailure) Unwrap() error {
	return e.Cause
}

// IsDeviceError reports whether err was raised by the accelerator.
//
// Native runtimes do not return typed errors, so besides ErrDevice in the chain the message is
// checked for a CUDA marker.
func IsDeviceError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDevice) {
		return true
	}
	return strings.Contains(strings.ToUpper(err.Error()), "CUDA")
}
