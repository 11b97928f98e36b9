package engine

import (
	"regexp"
	"strings"
)

var (
	// timestamp markers like [00:00:00.000 --> 00:00:00.500]
	timestampRegex = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}\]`)

	// bracketed noise markers emitted by whisper
	noiseRegex = regexp.MustCompile(`\[(?i)(?:MUSIC|APPLAUSE|LAUGHTER|INAUDIBLE|NOISE|CROSSTALK|SILENCE|BLANK_AUDIO)\]`)

	// parenthetical noise annotations
	parenNoiseRegex = regexp.MustCompile(`\([^)]*(?i)(music|noise|applause|laughter)[^)]*\)`)

	spaceRegex = regexp.MustCompile(`\s+`)
)

// isProcessingLine identifies lines that are just progress or debug information
func isProcessingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}

	return strings.HasPrefix(trimmed, "whisper_") || // internal debug logs
		strings.HasPrefix(trimmed, "system_info:") ||
		strings.HasPrefix(trimmed, "main:") ||
		strings.Contains(trimmed, "progress")
}

// cleanTranscript strips whisper output down to the spoken text
func cleanTranscript(raw string) string {
	var result strings.Builder

	for _, line := range strings.Split(raw, "\n") {
		if isProcessingLine(line) {
			continue
		}

		line = timestampRegex.ReplaceAllString(line, "")
		line = noiseRegex.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if result.Len() > 0 {
			result.WriteString(" ")
		}
		result.WriteString(line)
	}

	return normalizeTranscript(result.String())
}

// normalizeTranscript cleans up transcript text for better quality
func normalizeTranscript(text string) string {
	if text == "" {
		return ""
	}

	text = strings.TrimSpace(text)
	text = parenNoiseRegex.ReplaceAllString(text, "")
	text = noiseRegex.ReplaceAllString(text, "")
	text = spaceRegex.ReplaceAllString(text, " ")

	// Fix common punctuation issues
	text = strings.ReplaceAll(text, " .", ".")
	text = strings.ReplaceAll(text, " ,", ",")
	text = strings.ReplaceAll(text, " ?", "?")
	text = strings.ReplaceAll(text, " !", "!")

	text = strings.TrimSpace(text)
	if len(text) > 0 {
		text = strings.ToUpper(text[:1]) + text[1:]
	}

	return text
}
