package model

import (
	"errors"
	"fmt"
)

// Common error types for the model package
var (
	// ErrUnknownModel indicates an identifier that is not in the catalog
	ErrUnknownModel = errors.New("unknown model identifier")

	// ErrInitializationFailed indicates that the engine rejected the model file
	ErrInitializationFailed = errors.New("engine initialization failed")

	// ErrVoiceActivityInit indicates that the optional voice-activity handle
	// could not be built. Never fatal to Initialize.
	ErrVoiceActivityInit = errors.New("voice activity detection initialization failed")
)

// DownloadError reports a failed model download. It carries the model
// identifier and the underlying cause.
type DownloadError struct {
	ID  string
	Err error
}

// Error implements the error interface
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for model %q: %v", e.ID, e.Err)
}

// Unwrap exposes the underlying cause
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// DeleteError reports a failed model file removal
type DeleteError struct {
	ID  string
	Err error
}

// Error implements the error interface
func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete failed for model %q: %v", e.ID, e.Err)
}

// Unwrap exposes the underlying cause
func (e *DeleteError) Unwrap() error {
	return e.Err
}
