package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/murmurkit/murmur/pkg/audio"
	"github.com/murmurkit/murmur/pkg/logger"
)

const (
	// how often the processing loop wakes up
	streamTickInterval = 500 * time.Millisecond
	// minimum time between engine runs
	streamProcessInterval = 1200 * time.Millisecond
	// minimum buffered audio before a run, in seconds
	streamMinBufferSeconds = 1.0
	// sliding window kept for context, in seconds
	streamMaxBufferSeconds = 15
	// at most this much audio is handed to the engine per run, in seconds
	streamMaxProcessSeconds = 10
	// upper bound for a single engine run
	streamRunTimeout = 15 * time.Second
)

// execStream is a live transcription session over the exec-backed handle.
// Microphone samples accumulate in a sliding buffer; every processing
// interval the tail of the buffer is written to a temporary WAV file and run
// through the engine, and the result replaces the current utterance text.
type execStream struct {
	handle     *execHandle
	source     AudioSource
	vad        VADHandle
	language   string
	sampleRate int

	mu        sync.Mutex
	observer  func(Event)
	buffer    []float32
	capturing bool
	lastText  string

	started     time.Time
	lastProcess time.Time
	processing  bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopErr  error
}

// TranscribeRealtime starts a live session fed by opts.Source
func (h *execHandle) TranscribeRealtime(opts RealtimeOptions) (Stream, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHandleClosed
	}
	h.mu.Unlock()

	if opts.Source == nil {
		return nil, ErrNoAudioSource
	}

	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	language := opts.Language
	if language == "" {
		language = h.engine.config.Language
	}

	s := &execStream{
		handle:     h,
		source:     opts.Source,
		vad:        opts.VAD,
		language:   language,
		sampleRate: sampleRate,
		buffer:     make([]float32, 0, sampleRate*5),
		started:    time.Now(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	if err := s.source.Start(s.onSamples); err != nil {
		return nil, fmt.Errorf("%w: starting audio source: %v", ErrTranscriptionFailed, err)
	}

	go s.processLoop()

	logger.Info(logger.CategoryEngine, "Realtime session started (model %s)", filepath.Base(h.modelPath))
	return s, nil
}

// Subscribe registers the single observer for incremental events. A later
// call replaces the previous observer.
func (s *execStream) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Stop ends the session. It stops the audio source, waits for any in-flight
// engine run to finish, and returns the final transcript: the last non-empty
// text delivered before the session ended.
func (s *execStream) Stop(ctx context.Context) (string, error) {
	s.stopOnce.Do(func() {
		if err := s.source.Stop(); err != nil {
			logger.Warning(logger.CategoryEngine, "Failed to stop audio source: %v", err)
			s.stopErr = err
		}
		close(s.stopCh)
	})

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	s.mu.Lock()
	final := s.lastText
	s.mu.Unlock()

	logger.Info(logger.CategoryEngine, "Realtime session stopped after %s", time.Since(s.started).Round(time.Second))
	return final, s.stopErr
}

// onSamples receives microphone data from the audio source callback
func (s *execStream) onSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}

	capturing := false
	if s.vad != nil {
		capturing = s.vad.Detect(samples)
	} else {
		capturing = rmsLevel(samples) >= defaultSpeechThreshold
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, samples...)

	// Keep a sliding window of audio for context
	maxLen := s.sampleRate * streamMaxBufferSeconds
	if len(s.buffer) > maxLen {
		s.buffer = s.buffer[len(s.buffer)-maxLen:]
	}

	changed := capturing != s.capturing
	s.capturing = capturing
	observer := s.observer
	text := s.lastText
	elapsed := time.Since(s.started)
	s.mu.Unlock()

	// Report capture-state flips right away so the UI tracks speech onset
	// without waiting for the next engine run
	if changed && observer != nil {
		observer(Event{
			Capturing: capturing,
			Text:      text,
			Elapsed:   elapsed,
		})
	}
}

// processLoop periodically runs the engine over the buffered audio until the
// session is stopped
func (s *execStream) processLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(streamTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// One final run over whatever is buffered so the last words
			// spoken before Stop are not lost
			s.processBuffer()
			return
		case <-ticker.C:
			s.mu.Lock()
			due := !s.processing &&
				time.Since(s.lastProcess) >= streamProcessInterval &&
				float64(len(s.buffer)) >= streamMinBufferSeconds*float64(s.sampleRate)
			if due {
				s.processing = true
				s.lastProcess = time.Now()
			}
			s.mu.Unlock()

			if due {
				s.processBuffer()
				s.mu.Lock()
				s.processing = false
				s.mu.Unlock()
			}
		}
	}
}

// processBuffer transcribes the tail of the sample buffer and delivers the
// result to the observer
func (s *execStream) processBuffer() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}

	processLen := len(s.buffer)
	maxSamples := s.sampleRate * streamMaxProcessSeconds
	if processLen > maxSamples {
		processLen = maxSamples
	}
	chunk := make([]float32, processLen)
	copy(chunk, s.buffer[len(s.buffer)-processLen:])
	s.mu.Unlock()

	// Skip silent buffers, no point burning CPU on them
	if rmsLevel(chunk) < defaultSpeechThreshold {
		return
	}

	wavPath := filepath.Join(os.TempDir(), fmt.Sprintf("murmur_rt_%d.wav", time.Now().UnixNano()))
	if err := audio.SaveToWav(chunk, wavPath, s.sampleRate); err != nil {
		logger.Warning(logger.CategoryEngine, "Failed to write session audio: %v", err)
		return
	}
	defer os.Remove(wavPath)

	ctx, cancel := context.WithTimeout(context.Background(), streamRunTimeout)
	defer cancel()

	runStart := time.Now()
	text, err := s.handle.Transcribe(ctx, wavPath, TranscribeOptions{Language: s.language})
	processTime := time.Since(runStart)
	if err != nil {
		logger.Warning(logger.CategoryEngine, "Realtime chunk failed: %v", err)
		return
	}

	s.mu.Lock()
	if text != "" {
		s.lastText = text
	}
	observer := s.observer
	event := Event{
		Capturing:   s.capturing,
		Text:        s.lastText,
		ProcessTime: processTime,
		Elapsed:     time.Since(s.started),
	}
	s.mu.Unlock()

	if observer != nil {
		observer(event)
	}
}
