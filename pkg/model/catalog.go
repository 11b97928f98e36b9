// Package model manages the catalog of known speech models, the on-device
// cache of downloaded model files, download progress, and the currently
// active recognition session.
package model

// Descriptor is a compiled-in catalog entry describing one downloadable
// model. Descriptors are immutable; the catalog is created once at process
// start and never mutated.
type Descriptor struct {
	// ID is the stable catalog key
	ID string
	// Label is the human-readable name
	Label string
	// URL is the download source
	URL string
	// Filename is the cache file name under the cache directory
	Filename string
	// SizeLabel is an approximate download size for display
	SizeLabel string

	// Capability flags
	Multilingual bool // supports languages beyond English
	Quantized    bool // quantized weights
	SpeakerTurns bool // supports speaker-turn detection
}

const whisperBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var catalog = []Descriptor{
	{
		ID:        "tiny.en",
		Label:     "Tiny (English)",
		URL:       whisperBaseURL + "ggml-tiny.en.bin",
		Filename:  "ggml-tiny.en.bin",
		SizeLabel: "~75 MB",
	},
	{
		ID:           "tiny",
		Label:        "Tiny (Multilingual)",
		URL:          whisperBaseURL + "ggml-tiny.bin",
		Filename:     "ggml-tiny.bin",
		SizeLabel:    "~75 MB",
		Multilingual: true,
	},
	{
		ID:        "base.en",
		Label:     "Base (English)",
		URL:       whisperBaseURL + "ggml-base.en.bin",
		Filename:  "ggml-base.en.bin",
		SizeLabel: "~142 MB",
	},
	{
		ID:           "base",
		Label:        "Base (Multilingual)",
		URL:          whisperBaseURL + "ggml-base.bin",
		Filename:     "ggml-base.bin",
		SizeLabel:    "~142 MB",
		Multilingual: true,
	},
	{
		ID:        "base.en-q5_1",
		Label:     "Base (English, quantized)",
		URL:       whisperBaseURL + "ggml-base.en-q5_1.bin",
		Filename:  "ggml-base.en-q5_1.bin",
		SizeLabel: "~31 MB",
		Quantized: true,
	},
	{
		ID:        "small.en",
		Label:     "Small (English)",
		URL:       whisperBaseURL + "ggml-small.en.bin",
		Filename:  "ggml-small.en.bin",
		SizeLabel: "~466 MB",
	},
	{
		ID:           "small",
		Label:        "Small (Multilingual)",
		URL:          whisperBaseURL + "ggml-small.bin",
		Filename:     "ggml-small.bin",
		SizeLabel:    "~466 MB",
		Multilingual: true,
	},
	{
		ID:           "small.en-tdrz",
		Label:        "Small (English, speaker turns)",
		URL:          whisperBaseURL + "ggml-small.en-tdrz.bin",
		Filename:     "ggml-small.en-tdrz.bin",
		SizeLabel:    "~488 MB",
		SpeakerTurns: true,
	},
	{
		ID:           "medium",
		Label:        "Medium (Multilingual)",
		URL:          whisperBaseURL + "ggml-medium.bin",
		Filename:     "ggml-medium.bin",
		SizeLabel:    "~1.5 GB",
		Multilingual: true,
	},
	{
		ID:           "large-v3-turbo",
		Label:        "Large v3 Turbo",
		URL:          whisperBaseURL + "ggml-large-v3-turbo.bin",
		Filename:     "ggml-large-v3-turbo.bin",
		SizeLabel:    "~1.6 GB",
		Multilingual: true,
	},
}

// Lookup returns the catalog descriptor for the given identifier
func Lookup(id string) (Descriptor, bool) {
	for _, desc := range catalog {
		if desc.ID == id {
			return desc, true
		}
	}
	return Descriptor{}, false
}

// Catalog returns a copy of the compiled-in model catalog
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}
