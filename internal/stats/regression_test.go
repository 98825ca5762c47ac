package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/rally-coach/internal/dataset"
)

func regressionRow(shortDiff, attackDiff, safeDiff, pointShare float64) dataset.MatchRow {
	total := 400.0
	return dataset.MatchRow{
		AShortServeRate: 0.5 + shortDiff, BShortServeRate: 0.5,
		AAttackRate: 0.35 + attackDiff, BAttackRate: 0.35,
		ASafeRate: 0.25, BSafeRate: 0.25 + safeDiff,
		APoints: int(pointShare * total), BPoints: int((1 - pointShare) * total),
	}
}

func TestEstimateInfluenceWeightsRecoversSignal(t *testing.T) {
	// Point share responds to the short-serve differential with slope ~0.1;
	// the other differentials vary independently and carry no signal.
	shorts := []float64{-0.3, -0.2, -0.1, -0.05, 0.0, 0.05, 0.1, 0.2, 0.25, 0.3, -0.25, 0.15}
	attacks := []float64{0.1, -0.1, 0.05, -0.05, 0.2, -0.2, 0.0, 0.1, -0.15, 0.15, 0.05, -0.1}
	safes := []float64{-0.05, 0.1, -0.1, 0.05, 0.0, 0.15, -0.15, 0.05, 0.1, -0.05, -0.1, 0.0}
	var matches []dataset.MatchRow
	for i, d := range shorts {
		matches = append(matches, regressionRow(d, attacks[i], safes[i], 0.5+0.1*d))
	}

	w, err := estimateInfluenceWeights(matches)
	require.NoError(t, err)
	assert.Greater(t, w.WShort, 0.02)
	assert.LessOrEqual(t, w.WShort, 0.2)
	// The inactive differentials sit near the clamp floor.
	assert.Less(t, w.WAttack, w.WShort)
	assert.Less(t, w.WSafe, w.WShort)
}

func TestEstimateInfluenceWeightsThinDatasetDefaults(t *testing.T) {
	matches := make([]dataset.MatchRow, 9)
	for i := range matches {
		matches[i] = regressionRow(0.1, 0.1, 0.1, 0.6)
	}
	w, err := estimateInfluenceWeights(matches)
	require.NoError(t, err)
	assert.Equal(t, defaultInfluenceWeights, w)
}

func TestEstimateInfluenceWeightsSkipsZeroPointRows(t *testing.T) {
	// Eleven rows, but one carries no points: only ten usable rows remain,
	// still enough to fit.
	var matches []dataset.MatchRow
	for i := 0; i < 10; i++ {
		d := float64(i-5) / 20.0
		matches = append(matches, regressionRow(d, d/2, -d/2, 0.5+0.08*d))
	}
	matches = append(matches, dataset.MatchRow{})

	_, err := estimateInfluenceWeights(matches)
	assert.NoError(t, err)
}

func TestEstimateInfluenceWeightsDegenerateDesignDefaults(t *testing.T) {
	// Identical differentials in every row make the design matrix singular.
	var matches []dataset.MatchRow
	for i := 0; i < 12; i++ {
		matches = append(matches, regressionRow(0.1, 0.1, 0.1, 0.55))
	}
	w, err := estimateInfluenceWeights(matches)
	require.NoError(t, err)
	assert.Equal(t, defaultInfluenceWeights, w)
}

func TestSolveLeastSquaresExactSystem(t *testing.T) {
	// y = 0.2 + 0.5*x1 - 0.25*x2 + 0.125*x3 on a full-rank design.
	design := [][4]float64{
		{1, 0, 0, 0}, {1, 1, 0, 0}, {1, 0, 1, 0}, {1, 0, 0, 1},
		{1, 1, 1, 0}, {1, 0, 1, 1}, {1, 1, 0, 1}, {1, 1, 1, 1},
	}
	truth := [4]float64{0.2, 0.5, -0.25, 0.125}
	ys := make([]float64, len(design))
	for i, row := range design {
		for a := 0; a < 4; a++ {
			ys[i] += truth[a] * row[a]
		}
	}

	beta, ok := solveLeastSquares(design, ys)
	require.True(t, ok)
	for a := 0; a < 4; a++ {
		assert.InDelta(t, truth[a], beta[a], 1e-9)
	}
}
