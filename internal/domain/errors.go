package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotRegistered is returned when an operation needs the consumer
	// identity but no valid certificate is installed.
	ErrNotRegistered = errors.New("consumer is not registered")

	// ErrRemoteNotFound matches a RemoteError for a consumer the
	// subscription service no longer knows about.
	ErrRemoteNotFound = errors.New("consumer not found by subscription service")

	// ErrTransient matches a RemoteError caused by the network or a
	// server-side failure.
	ErrTransient = errors.New("transient subscription service failure")
)

// RemoteError describes a failed call to the subscription service.
// Status is zero when no HTTP response was received.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is classifies the error as ErrRemoteNotFound or ErrTransient.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteNotFound:
		return e.NotFound()
	case ErrTransient:
		return !e.NotFound()
	}
	return false
}

// NotFound reports whether the service answered that the consumer is gone.
func (e *RemoteError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

// ErrConfig reports a malformed or incomplete local configuration.
type ErrConfig struct {
	Path string
	Key  string
	Err  error
}

func (e ErrConfig) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config %s [%s]: %v", e.Path, e.Key, e.Err)
}

func (e ErrConfig) Unwrap() error {
	return e.Err
}
