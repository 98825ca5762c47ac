package service

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/rally-coach/internal/metrics"
	"github.com/yourusername/rally-coach/internal/models"
	"github.com/yourusername/rally-coach/internal/pcsp"
	"github.com/yourusername/rally-coach/internal/runs"
)

// gridDeltas are the perturbation steps applied to player A's short-serve
// rate and attack rate. Coarse enough to stay actionable as coaching advice.
var gridDeltas = []float64{-0.20, -0.10, -0.05, 0.0, 0.05, 0.10, 0.20}

// topCandidates is how many ranked alternatives a search reports.
const topCandidates = 5

// l1Slack absorbs float error at the boundary of the L1 bound.
const l1Slack = 1e-9

type candidate struct {
	serveShortDelta float64
	attackDelta     float64
	l1Change        float64
	params          models.MatchupParams
}

// enumerateCandidates builds the perturbation grid around the baseline,
// keeps the points whose realized L1 change stays within the bound, orders
// them smallest change first, and truncates to the evaluation budget.
func enumerateCandidates(baseline models.MatchupParams, l1Bound float64, budget int) []candidate {
	var grid []candidate
	for _, ds := range gridDeltas {
		for _, da := range gridDeltas {
			if ds == 0.0 && da == 0.0 {
				continue
			}
			adjusted, err := baseline.WithAdjustments(ds, da)
			if err != nil {
				continue
			}
			l1 := adjusted.L1ChangeFrom(baseline)
			if l1 > l1Bound+l1Slack {
				continue
			}
			grid = append(grid, candidate{
				serveShortDelta: ds,
				attackDelta:     da,
				l1Change:        l1,
				params:          adjusted,
			})
		}
	}

	sort.SliceStable(grid, func(i, j int) bool {
		if grid[i].l1Change != grid[j].l1Change {
			return grid[i].l1Change < grid[j].l1Change
		}
		return math.Abs(grid[i].serveShortDelta)+math.Abs(grid[i].attackDelta) <
			math.Abs(grid[j].serveShortDelta)+math.Abs(grid[j].attackDelta)
	})

	if budget < 1 {
		budget = 1
	}
	if len(grid) > budget {
		grid = grid[:budget]
	}
	return grid
}

// searchResult carries the ranked survivors of one candidate search.
type searchResult struct {
	ranked     []models.StrategyCandidate
	bestParams models.MatchupParams
	evaluated  int
	dropped    int
}

// searchCandidates evaluates the grid against the engine and ranks the
// survivors by probability, best first. A candidate whose engine run fails
// is logged and dropped; infrastructure errors (rendering, artifact I/O)
// abort the search.
func (s *Service) searchCandidates(ctx context.Context, run *runs.Run, baseline models.MatchupParams,
	template string, budget int, l1Bound float64, opts engineOptions, logger *logrus.Entry) (*searchResult, error) {

	grid := enumerateCandidates(baseline, l1Bound, budget)
	candidatesDir := filepath.Join(run.Dir, "candidates")

	type scored struct {
		candidate
		probability float64
	}
	var survivors []scored
	dropped := 0

	for i, cand := range grid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		index := i + 1
		modelPath := filepath.Join(candidatesDir, fmt.Sprintf("candidate_%03d.pcsp", index))
		artifactDir := filepath.Join(candidatesDir, fmt.Sprintf("candidate_%03d", index))

		if template == "" {
			template = pcsp.DefaultTemplate
		}
		execution, err := s.verify(ctx, cand.params, template, modelPath, artifactDir, opts)
		if err != nil {
			return nil, err
		}
		if !execution.OK {
			dropped++
			metrics.CandidatesDroppedTotal.Inc()
			logger.WithFields(logrus.Fields{
				"candidate":         index,
				"serve_short_delta": cand.serveShortDelta,
				"attack_delta":      cand.attackDelta,
				"error":             execution.Error,
			}).Warn("Dropping candidate after engine failure")
			continue
		}
		survivors = append(survivors, scored{candidate: cand, probability: *execution.Probability})
	}

	if len(survivors) == 0 {
		return nil, fmt.Errorf(
			"strategy search evaluated %d candidates and every engine run failed; inspect %s for per-candidate artifacts",
			len(grid), candidatesDir)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].probability > survivors[j].probability
	})
	if len(survivors) > topCandidates {
		survivors = survivors[:topCandidates]
	}

	ranked := make([]models.StrategyCandidate, 0, len(survivors))
	for i, sc := range survivors {
		ranked = append(ranked, models.StrategyCandidate{
			Rank:            i + 1,
			ServeShortDelta: sc.serveShortDelta,
			AttackDelta:     sc.attackDelta,
			L1Change:        sc.l1Change,
			Probability:     sc.probability,
		})
	}
	return &searchResult{
		ranked:     ranked,
		bestParams: survivors[0].params,
		evaluated:  len(grid),
		dropped:    dropped,
	}, nil
}
