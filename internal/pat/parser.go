// Package pat drives the external verification engine (PAT console): it
// renders invocations, classifies failures, applies the mono compatibility
// fallback for the legacy PAT3 runtime, parses probabilities out of the
// engine's free-form text output, and persists every artifact of a run.
package pat

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Probability-context grammar: a case-insensitive marker followed by a
// decimal or scientific-notation number on the same line, or within a
// 40-character lookahead when the line carries nothing numeric. The last
// contextual match in the text is authoritative, since engines print
// intermediate diagnostics before the final assertion result.
var (
	probContextPattern = regexp.MustCompile(`(?i)(?:prob(?:ability)?|with\s+prob)`)
	numberPattern      = regexp.MustCompile(`[+-]?(?:\d*\.\d+|\d+)(?:[eE][+-]?\d+)?`)
)

const nearbyWindow = 40

// ParseError reports that no probability could be extracted, carrying a
// compacted excerpt of the input for diagnosis.
type ParseError struct {
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse probability from engine output. Excerpt: %s", e.Excerpt)
}

// ParseProbability extracts the final probability from the engine's text
// output.
func ParseProbability(text string) (float64, error) {
	var values []float64
	for _, loc := range probContextPattern.FindAllStringIndex(text, -1) {
		segmentStart := loc[1]
		lineEnd := strings.IndexByte(text[segmentStart:], '\n')
		if lineEnd == -1 {
			lineEnd = len(text) - segmentStart
		}

		lineValues := extractProbabilities(text[segmentStart : segmentStart+lineEnd])
		if len(lineValues) > 0 {
			values = append(values, lineValues...)
			continue
		}

		// Unusual formatting: the numeric value follows within a short window.
		nearbyEnd := segmentStart + nearbyWindow
		if nearbyEnd > len(text) {
			nearbyEnd = len(text)
		}
		values = append(values, extractProbabilities(text[segmentStart:nearbyEnd])...)
	}

	if len(values) > 0 {
		return values[len(values)-1], nil
	}
	return 0, &ParseError{Excerpt: excerpt(text, 180)}
}

// extractProbabilities returns every numeric token in [0,1] from the
// segment. Unrelated magnitudes such as thresholds or iteration counts fall
// outside the range and are rejected.
func extractProbabilities(segment string) []float64 {
	var values []float64
	for _, token := range numberPattern.FindAllString(segment, -1) {
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		if value >= 0.0 && value <= 1.0 {
			values = append(values, value)
		}
	}
	return values
}

func excerpt(text string, maxLen int) string {
	compact := strings.Join(strings.Fields(text), " ")
	if len(compact) <= maxLen {
		return compact
	}
	// Back up to a rune boundary so the cut never leaves a broken sequence.
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(compact[cut]) {
		cut--
	}
	return compact[:cut] + "..."
}

// ReadOutput reads the engine output file tolerantly: a UTF-8 BOM is
// stripped and invalid byte sequences are replaced rather than failing.
func ReadOutput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ToValidUTF8(text, "�"), nil
}
