package engine

import (
	"math"
	"testing"
)

// sineFrame generates one frame of a 440Hz tone at the given amplitude
func sineFrame(n int, amplitude float64) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return frame
}

func TestRMSLevel(t *testing.T) {
	if got := rmsLevel(nil); got != 0 {
		t.Errorf("Expected 0 for empty buffer, got %v", got)
	}
	if got := rmsLevel(make([]float32, 1024)); got != 0 {
		t.Errorf("Expected 0 for silence, got %v", got)
	}

	// RMS of a full-scale sine is 1/sqrt(2)
	got := rmsLevel(sineFrame(16000, 1.0))
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(got-want)) > 0.01 {
		t.Errorf("Expected RMS near %v, got %v", want, got)
	}
}

func TestEnergyVADDetectsSpeech(t *testing.T) {
	vad := newEnergyVAD()
	defer vad.Close()

	if vad.Detect(sineFrame(1024, 0.5)) != true {
		t.Error("Expected loud frame to register as speech")
	}
	if vad.Detect(nil) {
		t.Error("Expected empty frame to register as silence")
	}
}

func TestEnergyVADHangover(t *testing.T) {
	vad := newEnergyVAD()
	defer vad.Close()

	silence := make([]float32, 1024)

	// Pure silence from a cold start reads as no speech
	if vad.Detect(silence) {
		t.Fatal("Expected silence before any speech to read false")
	}

	if !vad.Detect(sineFrame(1024, 0.5)) {
		t.Fatal("Expected speech frame to read true")
	}

	// Speech holds for hangover frames of silence, then drops
	for i := 0; i < vad.hangover; i++ {
		if !vad.Detect(silence) {
			t.Fatalf("Expected hangover to hold at silent frame %d", i)
		}
	}
	if vad.Detect(silence) {
		t.Error("Expected speech to drop after the hangover expired")
	}
}

func TestEnergyVADClosed(t *testing.T) {
	vad := newEnergyVAD()
	vad.Close()

	if vad.Detect(sineFrame(1024, 0.5)) {
		t.Error("Expected a closed handle to report silence")
	}
}
