// Package engine defines the speech-recognition engine capability consumed by
// the rest of the application, and provides an implementation backed by an
// external whisper executable.
package engine

import (
	"context"
	"time"
)

// Event carries one incremental update from a realtime session.
// Text is the full transcript of the current utterance so far; each event
// replaces the previous one rather than appending to it.
type Event struct {
	// Capturing reports whether speech is currently being picked up
	Capturing bool
	// Text is the latest recognized text for the current utterance
	Text string
	// ProcessTime is how long the engine spent producing this update
	ProcessTime time.Duration
	// Elapsed is the recording time since the session started
	Elapsed time.Duration
}

// TranscribeOptions configures a one-shot transcription
type TranscribeOptions struct {
	// Language code (empty for auto-detect)
	Language string
}

// AudioSource feeds samples into a realtime session. The audio recorder
// satisfies this interface.
type AudioSource interface {
	Start(callback func([]float32)) error
	Stop() error
}

// RealtimeOptions configures a live transcription session
type RealtimeOptions struct {
	// Source delivers microphone samples; required
	Source AudioSource
	// Language code (empty for auto-detect)
	Language string
	// SampleRate of the source in Hz; 16000 when zero
	SampleRate int
	// VAD optionally gates the Capturing flag on delivered events.
	// When nil, an energy threshold on the raw samples is used instead.
	VAD VADHandle
}

// Stream is a running realtime session. A single observer registered with
// Subscribe receives incremental events until Stop is called. Stop must be
// awaited; it returns the final transcript, which is the last non-empty
// text delivered before the session ended.
type Stream interface {
	Subscribe(fn func(Event))
	Stop(ctx context.Context) (string, error)
}

// Handle is an initialized recognition engine bound to one model file
type Handle interface {
	// Transcribe converts the audio file at wavPath to text. The context
	// cancels the underlying process.
	Transcribe(ctx context.Context, wavPath string, opts TranscribeOptions) (string, error)
	// TranscribeRealtime starts a live session fed by opts.Source
	TranscribeRealtime(opts RealtimeOptions) (Stream, error)
	// ModelPath returns the model file this handle was built from
	ModelPath() string
	// Close releases engine-side resources
	Close() error
}

// VADHandle detects voice activity in audio frames
type VADHandle interface {
	// Detect reports whether the given samples contain speech
	Detect(samples []float32) bool
	// Close releases resources
	Close() error
}

// Engine creates recognition and voice-activity handles from model files
type Engine interface {
	// Initialize loads the model file and returns a recognition handle.
	// It fails if the file is not a valid model.
	Initialize(modelPath string) (Handle, error)
	// InitializeVAD builds an optional voice-activity handle from the same
	// model file. Independent of Initialize and best-effort.
	InitializeVAD(modelPath string) (VADHandle, error)
}
