package pat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbabilityTypicalAssertionResult(t *testing.T) {
	text := "The Assertion (Match() reaches MatchWonA with prob) is VALID with Probability [0.6234, 0.6234];"
	p, err := ParseProbability(text)
	require.NoError(t, err)
	assert.InDelta(t, 0.6234, p, 1e-12)
}

func TestParseProbabilityLastContextualMatchWins(t *testing.T) {
	text := "intermediate prob 0.1\nrefining...\nfinal result with prob 0.875\n"
	p, err := ParseProbability(text)
	require.NoError(t, err)
	assert.InDelta(t, 0.875, p, 1e-12)
}

func TestParseProbabilityIgnoresOutOfRangeNumbers(t *testing.T) {
	// Iteration counts and thresholds beyond [0,1] near the marker must not
	// be mistaken for the probability.
	text := "probability estimation used 5000 iterations, 42 states, prob 0.5100"
	p, err := ParseProbability(text)
	require.NoError(t, err)
	assert.InDelta(t, 0.51, p, 1e-12)
}

func TestParseProbabilityColonSeparated(t *testing.T) {
	p, err := ParseProbability("Probability: 0.75")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, p, 1e-12)
}

func TestParseProbabilityScientificNotation(t *testing.T) {
	p, err := ParseProbability("with prob 9.99e-1 done")
	require.NoError(t, err)
	assert.InDelta(t, 0.999, p, 1e-12)
}

func TestParseProbabilityNearbyLookahead(t *testing.T) {
	// No number on the marker's line; the value follows shortly after.
	text := "probability of MatchWonA:\n    0.4321\n"
	p, err := ParseProbability(text)
	require.NoError(t, err)
	assert.InDelta(t, 0.4321, p, 1e-12)
}

func TestParseProbabilityCaseInsensitiveMarker(t *testing.T) {
	p, err := ParseProbability("WITH PROB 0.25")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p, 1e-12)
}

func TestParseProbabilityNoMarker(t *testing.T) {
	_, err := ParseProbability("verification completed, 0.42 seconds elapsed")
	require.Error(t, err)

	var pErr *ParseError
	require.ErrorAs(t, err, &pErr)
	assert.Contains(t, pErr.Excerpt, "verification completed")
}

func TestParseProbabilityMarkerWithoutValue(t *testing.T) {
	_, err := ParseProbability("probability could not be determined")
	assert.Error(t, err)
}

func TestParseErrorExcerptIsCompactedAndBounded(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "lorem   ipsum\n"
	}
	_, err := ParseProbability(long)
	require.Error(t, err)

	var pErr *ParseError
	require.ErrorAs(t, err, &pErr)
	assert.LessOrEqual(t, len(pErr.Excerpt), 180)
	assert.NotContains(t, pErr.Excerpt, "\n")
}

func TestParseErrorExcerptCutsOnRuneBoundary(t *testing.T) {
	// Place a multi-byte rune straddling the truncation point.
	long := strings.Repeat("a", 176) + strings.Repeat("日本語", 20)
	_, err := ParseProbability(long)
	require.Error(t, err)

	var pErr *ParseError
	require.ErrorAs(t, err, &pErr)
	assert.True(t, utf8.ValidString(pErr.Excerpt))
	assert.True(t, strings.HasSuffix(pErr.Excerpt, "..."))
	assert.LessOrEqual(t, len(pErr.Excerpt), 180)
}

func TestReadOutputStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffwith prob 0.5\n"), 0o644))

	text, err := ReadOutput(path)
	require.NoError(t, err)
	assert.Equal(t, "with prob 0.5\n", text)
}

func TestReadOutputReplacesInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, os.WriteFile(path, []byte{'p', 'r', 'o', 'b', ' ', 0xff, '0', '.', '5'}, 0o644))

	text, err := ReadOutput(path)
	require.NoError(t, err)
	assert.Contains(t, text, "prob")
}
