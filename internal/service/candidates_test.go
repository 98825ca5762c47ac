package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/rally-coach/internal/models"
)

func baselineMatchup(t *testing.T) models.MatchupParams {
	t.Helper()

	mixA, err := models.NewServeMix(0.60, 0.40)
	require.NoError(t, err)
	mixB, err := models.NewServeMix(0.50, 0.50)
	require.NoError(t, err)
	styleA, err := models.NewRallyStyleMix(0.40, 0.35, 0.25)
	require.NoError(t, err)
	styleB, err := models.NewRallyStyleMix(0.30, 0.40, 0.30)
	require.NoError(t, err)

	a, err := models.NewPlayerParams("p001", "Arif Kusnandar", 0.55, 0.48, mixA, styleA, 18)
	require.NoError(t, err)
	b, err := models.NewPlayerParams("p002", "Teo Jun Hao", 0.52, 0.45, mixB, styleB, 22)
	require.NoError(t, err)
	w, err := models.NewInfluenceWeights(0.04, 0.06, 0.05)
	require.NoError(t, err)

	m, err := models.NewMatchupParams(a, b, w, models.DefaultGameFormat)
	require.NoError(t, err)
	return m
}

func TestEnumerateCandidatesExcludesIdentity(t *testing.T) {
	grid := enumerateCandidates(baselineMatchup(t), 1.0, 1000)
	for _, c := range grid {
		assert.False(t, c.serveShortDelta == 0 && c.attackDelta == 0)
	}
	// Full grid minus the identity point.
	assert.Len(t, grid, len(gridDeltas)*len(gridDeltas)-1)
}

func TestEnumerateCandidatesHonorsL1Bound(t *testing.T) {
	bound := 0.3
	grid := enumerateCandidates(baselineMatchup(t), bound, 1000)
	require.NotEmpty(t, grid)
	for _, c := range grid {
		assert.LessOrEqual(t, c.l1Change, bound+1e-9)
	}
	// A ±0.20/±0.20 double shift moves more than 0.3 in L1 and is excluded.
	for _, c := range grid {
		assert.False(t, math.Abs(c.serveShortDelta) == 0.20 && math.Abs(c.attackDelta) == 0.20)
	}
}

func TestEnumerateCandidatesSortedSmallestChangeFirst(t *testing.T) {
	grid := enumerateCandidates(baselineMatchup(t), 1.0, 1000)
	for i := 1; i < len(grid); i++ {
		assert.LessOrEqual(t, grid[i-1].l1Change, grid[i].l1Change+1e-12)
	}
}

func TestEnumerateCandidatesTruncatesToBudget(t *testing.T) {
	grid := enumerateCandidates(baselineMatchup(t), 1.0, 7)
	assert.Len(t, grid, 7)

	// A budget below one still evaluates a single candidate.
	grid = enumerateCandidates(baselineMatchup(t), 1.0, 0)
	assert.Len(t, grid, 1)
}

func TestEnumerateCandidatesParamsCarryAdjustment(t *testing.T) {
	baseline := baselineMatchup(t)
	grid := enumerateCandidates(baseline, 1.0, 1000)
	for _, c := range grid {
		expected, err := baseline.WithAdjustments(c.serveShortDelta, c.attackDelta)
		require.NoError(t, err)
		assert.Equal(t, expected.PlayerA, c.params.PlayerA)
		assert.InDelta(t, expected.L1ChangeFrom(baseline), c.l1Change, 1e-12)
	}
}
