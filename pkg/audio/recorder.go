package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/murmurkit/murmur/pkg/logger"
)

// Configuration for audio recording
type Config struct {
	// Sample rate in Hz (e.g., 16000)
	SampleRate float64
	// Number of channels (1 for mono, 2 for stereo)
	Channels int
	// Buffer size in frames
	FramesPerBuffer int
	// Debug mode for verbose logging
	Debug bool
}

// DefaultConfig returns a reasonable default configuration for speech recognition
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000, // 16kHz is good for speech
		Channels:        1,     // Mono for speech recognition
		FramesPerBuffer: 1024,
		Debug:           false,
	}
}

// Recorder handles audio capture from the microphone
type Recorder struct {
	config       Config
	stream       *portaudio.Stream
	buffer       []float32
	isRecording  bool
	dataCallback func([]float32)
	mu           sync.Mutex
	initialized  bool
}

// NewRecorder creates a new audio recorder with the given configuration
func NewRecorder(config Config) (*Recorder, error) {
	recorder := &Recorder{
		config: config,
		buffer: make([]float32, config.FramesPerBuffer*config.Channels),
	}

	err := portaudio.Initialize()
	if err != nil {
		if config.Debug {
			logger.Error(logger.CategoryAudio, "PortAudio initialization error: %v", err)

			if strings.Contains(err.Error(), "ALSA") {
				logger.Warning(logger.CategoryAudio, "ALSA error detected. This is usually due to a configuration issue.")
				logger.Info(logger.CategoryAudio, "- Check if ALSA is properly installed")
				logger.Info(logger.CategoryAudio, "- Try running 'aplay -l' to list audio devices")
			}
		}
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	recorder.initialized = true

	if config.Debug {
		devices, err := portaudio.Devices()
		if err != nil {
			logger.Error(logger.CategoryAudio, "Error getting audio devices: %v", err)
		} else {
			logger.Info(logger.CategoryAudio, "Available audio devices:")
			for i, dev := range devices {
				logger.Info(logger.CategoryAudio, "[%d] %s (in: %v, out: %v)", i, dev.Name, dev.MaxInputChannels > 0, dev.MaxOutputChannels > 0)
			}
		}
	}

	return recorder, nil
}

// Start begins audio recording.
// The provided callback will be called with audio data.
func (r *Recorder) Start(callback func([]float32)) error {
	r.mu.Lock()
	if r.isRecording {
		r.mu.Unlock()
		return errors.New("recorder is already running")
	}
	r.dataCallback = callback
	r.mu.Unlock()

	// Opening the default stream can block, keep the lock released
	stream, err := portaudio.OpenDefaultStream(
		r.config.Channels, // Input channels
		0,                 // No output channels
		r.config.SampleRate,
		r.config.FramesPerBuffer,
		r.processAudio,
	)
	if err != nil {
		if r.config.Debug {
			logger.Error(logger.CategoryAudio, "Failed to open audio stream: %v", err)
			if strings.Contains(err.Error(), "ALSA") {
				logger.Warning(logger.CategoryAudio, "ALSA error detected. Try the following:")
				logger.Info(logger.CategoryAudio, "1. Check audio hardware: 'aplay -l' and 'arecord -l'")
				logger.Info(logger.CategoryAudio, "2. Check for permission issues: 'sudo usermod -a -G audio $USER'")
			}
		}
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	r.mu.Lock()
	r.stream = stream
	r.isRecording = true
	r.mu.Unlock()
	return nil
}

// Stop ends audio recording
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRecording {
		return nil
	}

	if r.stream != nil {
		if err := r.stream.Stop(); err != nil {
			return fmt.Errorf("failed to stop audio stream: %w", err)
		}
		if err := r.stream.Close(); err != nil {
			return fmt.Errorf("failed to close audio stream: %w", err)
		}
		r.stream = nil
	}

	r.isRecording = false
	return nil
}

// Terminate should be called when the recorder is no longer needed
func (r *Recorder) Terminate() error {
	if err := r.Stop(); err != nil {
		return err
	}

	if r.initialized {
		r.initialized = false
		return portaudio.Terminate()
	}
	return nil
}

// Audio processing callback for PortAudio
func (r *Recorder) processAudio(in, _ []float32) {
	if len(in) == 0 {
		return
	}

	r.mu.Lock()

	if !r.isRecording {
		r.mu.Unlock()
		return
	}

	// Check for corrupt audio samples (NaN or Inf)
	hasCorruptSamples := false
	for _, sample := range in {
		if math.IsNaN(float64(sample)) || math.IsInf(float64(sample), 0) {
			hasCorruptSamples = true
			break
		}
	}

	if hasCorruptSamples {
		if r.config.Debug {
			logger.Warning(logger.CategoryAudio, "Detected corrupt audio samples in PortAudio callback")
		}
		// Substitute silence
		for i := range r.buffer {
			r.buffer[i] = 0
		}
	} else {
		copy(r.buffer, in)
	}

	callback := r.dataCallback
	dataCopy := make([]float32, len(r.buffer))
	copy(dataCopy, r.buffer)
	r.mu.Unlock()

	// Execute the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(dataCopy)
	}
}

// CalculateRMSLevel calculates the Root Mean Square level of audio data
func CalculateRMSLevel(buffer []float32) float32 {
	if len(buffer) == 0 {
		return 0
	}

	var sumOfSquares float64
	for _, sample := range buffer {
		sumOfSquares += float64(sample * sample)
	}

	meanSquare := sumOfSquares / float64(len(buffer))
	return float32(math.Sqrt(meanSquare))
}
