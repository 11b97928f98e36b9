package engine

import (
	"math"
	"sync"
)

// Below this RMS level a frame is treated as silence
const defaultSpeechThreshold = 0.008

// energyVAD is an RMS energy gate with short hangover so the capturing flag
// does not flicker between words.
type energyVAD struct {
	mu        sync.Mutex
	threshold float32
	hangover  int // frames to keep reporting speech after it drops out
	remaining int
	closed    bool
}

func newEnergyVAD() *energyVAD {
	return &energyVAD{
		threshold: defaultSpeechThreshold,
		hangover:  8,
	}
}

// Detect reports whether the samples contain speech
func (v *energyVAD) Detect(samples []float32) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed || len(samples) == 0 {
		return false
	}

	if rmsLevel(samples) >= v.threshold {
		v.remaining = v.hangover
		return true
	}

	if v.remaining > 0 {
		v.remaining--
		return true
	}
	return false
}

// Close releases the handle
func (v *energyVAD) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// rmsLevel calculates the Root Mean Square of the buffer, which gives a good
// approximation of perceived volume level
func rmsLevel(buffer []float32) float32 {
	if len(buffer) == 0 {
		return 0
	}

	var sumSquares float64
	for _, sample := range buffer {
		sumSquares += float64(sample * sample)
	}

	return float32(math.Sqrt(sumSquares / float64(len(buffer))))
}
