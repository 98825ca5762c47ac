package stats

import (
	"math"

	"github.com/yourusername/rally-coach/internal/dataset"
	"github.com/yourusername/rally-coach/internal/models"
)

// defaultInfluenceWeights are used when the dataset is too thin to fit.
var defaultInfluenceWeights = models.InfluenceWeights{WShort: 0.04, WAttack: 0.06, WSafe: 0.05}

// estimateInfluenceWeights fits point-share margin on the three style
// differentials via ordinary least squares (with an intercept) and clamps
// each coefficient magnitude to [0.01, 0.2].
func estimateInfluenceWeights(matches []dataset.MatchRow) (models.InfluenceWeights, error) {
	if len(matches) < minRegressionRows {
		return defaultInfluenceWeights, nil
	}

	rows := make([][4]float64, 0, len(matches))
	ys := make([]float64, 0, len(matches))
	for _, m := range matches {
		totalPoints := float64(m.APoints + m.BPoints)
		if totalPoints == 0 {
			continue
		}
		rows = append(rows, [4]float64{
			1.0,
			m.AShortServeRate - m.BShortServeRate,
			m.AAttackRate - m.BAttackRate,
			-(m.BSafeRate - m.ASafeRate),
		})
		ys = append(ys, float64(m.APoints)/totalPoints-0.5)
	}
	if len(rows) < minRegressionRows {
		return defaultInfluenceWeights, nil
	}

	beta, ok := solveLeastSquares(rows, ys)
	if !ok {
		// Degenerate design matrix (e.g. constant differentials).
		return defaultInfluenceWeights, nil
	}

	return models.NewInfluenceWeights(
		models.Clamp(math.Abs(beta[1]), 0.01, 0.2),
		models.Clamp(math.Abs(beta[2]), 0.01, 0.2),
		models.Clamp(math.Abs(beta[3]), 0.01, 0.2),
	)
}

// solveLeastSquares solves the 4-parameter normal equations X'X b = X'y by
// Gaussian elimination with partial pivoting.
func solveLeastSquares(rows [][4]float64, ys []float64) ([4]float64, bool) {
	var xtx [4][4]float64
	var xty [4]float64
	for i, row := range rows {
		for a := 0; a < 4; a++ {
			xty[a] += row[a] * ys[i]
			for b := 0; b < 4; b++ {
				xtx[a][b] += row[a] * row[b]
			}
		}
	}

	// Augment and eliminate.
	var aug [4][5]float64
	for a := 0; a < 4; a++ {
		for b := 0; b < 4; b++ {
			aug[a][b] = xtx[a][b]
		}
		aug[a][4] = xty[a]
	}

	for col := 0; col < 4; col++ {
		pivot := col
		for r := col + 1; r < 4; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < 1e-12 {
			return [4]float64{}, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		for r := 0; r < 4; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col] / aug[col][col]
			for c := col; c < 5; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	var beta [4]float64
	for a := 0; a < 4; a++ {
		beta[a] = aug[a][4] / aug[a][a]
	}
	return beta, true
}
