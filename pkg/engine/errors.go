package engine

import (
	"errors"
)

// Common error types for the engine package
var (
	// ErrExecutableNotFound indicates that no whisper executable could be found
	ErrExecutableNotFound = errors.New("whisper executable not found")

	// ErrInvalidExecutablePath indicates that the provided executable path does not exist or is not valid
	ErrInvalidExecutablePath = errors.New("invalid whisper executable path")

	// ErrInvalidModelFile indicates that the engine rejected the model file
	ErrInvalidModelFile = errors.New("invalid model file")

	// ErrTranscriptionFailed indicates that the transcription process failed
	ErrTranscriptionFailed = errors.New("transcription process failed")

	// ErrNoAudioSource indicates that a realtime session was requested without a source
	ErrNoAudioSource = errors.New("realtime session requires an audio source")

	// ErrHandleClosed indicates use of a handle after Close
	ErrHandleClosed = errors.New("engine handle is closed")
)
