package fmerror

import (
	"fmt"
	"net/http"

	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
)

// A Kind classifies an error for reporting purpose.
type Kind string

// Known kinds.
const (
	KindUnknown Kind = "unknown"
	KindFetch   Kind = "fetch"
	KindDecode  Kind = "decode"
	KindStore   Kind = "store"
	KindConfig  Kind = "config"
)

type (
	// A StoreError is returned by persistence backends on I/O or query failure.
	StoreError struct {
		Backend string
		Op      string
		Err     error
	}

	// A ConfigError is returned for unsupported or invalid settings.
	ConfigError struct {
		Message string
	}
)

// Store wraps err into a StoreError. It returns nil if err is nil.
func Store(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: backend, Op: op, Err: err}
}

// Error implements error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Config returns a new ConfigError with the formatted message.
func Config(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// Unsupported returns a ConfigError naming the unsupported mode/backend pair.
func Unsupported(mode, backend string) error {
	return Config("unsupported mode %q with backend %q", mode, backend)
}

// Error implements error interface.
func (e *ConfigError) Error() string {
	return e.Message
}

// KindOf returns the kind of the given error, looking through wrapped errors.
func KindOf(err error) Kind {
	var (
		ferr *libfeed.FetchError
		derr *libfeed.DecodeError
		serr *StoreError
		cerr *ConfigError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cerr):
		return KindConfig
	case errors.As(err, &serr):
		return KindStore
	case errors.As(err, &derr):
		return KindDecode
	case errors.As(err, &ferr):
		return KindFetch
	}
	return KindUnknown
}

// StatusCode returns the HTTP status code matching the given error.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindConfig:
		return http.StatusBadRequest
	case KindFetch, KindDecode:
		return http.StatusBadGateway
	case KindStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
