// Package service orchestrates the coaching pipeline: estimate matchup
// parameters from history, render the rally model, run the verification
// engine, and persist every artifact into a per-invocation run directory.
package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/rally-coach/internal/config"
	"github.com/yourusername/rally-coach/internal/dataset"
	"github.com/yourusername/rally-coach/internal/metrics"
	"github.com/yourusername/rally-coach/internal/models"
	"github.com/yourusername/rally-coach/internal/pat"
	"github.com/yourusername/rally-coach/internal/pcsp"
	"github.com/yourusername/rally-coach/internal/runs"
	"github.com/yourusername/rally-coach/internal/stats"
)

// Service wires the estimator, the template builder, and the engine runner
// into the two top-level operations.
type Service struct {
	cfg       *config.Config
	logger    *logrus.Logger
	estimator *stats.Estimator
	runner    *pat.Runner
}

// New constructs the coaching service over the given data adapter.
func New(cfg *config.Config, logger *logrus.Logger, adapter dataset.Adapter) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		estimator: stats.NewEstimator(adapter, logger),
		runner:    pat.NewRunner(cfg, logger),
	}
}

// PredictRequest identifies the matchup to evaluate. Zero-valued fields fall
// back to the configured defaults.
type PredictRequest struct {
	PlayerA  string
	PlayerB  string
	Window   int
	AsOf     time.Time
	Template string

	// Per-invocation engine overrides.
	Mode       string
	EnginePath string
	Timeout    time.Duration
	// RunID reuses a caller-supplied run identifier instead of minting one.
	RunID string
}

// PredictResult is the outcome of one prediction run.
type PredictResult struct {
	RunID       string               `json:"run_id"`
	RunDir      string               `json:"run_dir"`
	PlayerA     string               `json:"player_a"`
	PlayerB     string               `json:"player_b"`
	Probability float64              `json:"probability"`
	Params      models.MatchupParams `json:"params"`
	Stats       *stats.MatchupStats  `json:"stats"`
	Execution   *pat.Execution       `json:"execution"`
}

// Predict estimates the matchup, verifies the rendered model, and returns
// player A's match win probability. A run that produces no probability is an
// error even when the engine exited cleanly.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*PredictResult, error) {
	run, err := s.newRun("predict", req.RunID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithField("run_id", run.ID)

	params, matchupStats, err := s.estimate(req.PlayerA, req.PlayerB, req.Window, req.AsOf)
	if err != nil {
		return nil, err
	}
	if err := writeInputs(run.Dir, req.PlayerA, req.PlayerB, s.window(req.Window), s.asOf(req.AsOf), s.cfg); err != nil {
		return nil, err
	}
	if err := writeStats(run.Dir, matchupStats); err != nil {
		return nil, err
	}

	opts := s.engineOptions(req.Mode, req.EnginePath, req.Timeout)
	execution, err := s.verify(ctx, params, req.Template, filepath.Join(run.Dir, "matchup.pcsp"), run.Dir, opts)
	if err != nil {
		return nil, err
	}
	if !execution.OK {
		return nil, &pat.ExecutionError{RunID: run.ID, Message: execution.Error}
	}

	result := &PredictResult{
		RunID:       run.ID,
		RunDir:      run.Dir,
		PlayerA:     params.PlayerA.Name,
		PlayerB:     params.PlayerB.Name,
		Probability: *execution.Probability,
		Params:      params,
		Stats:       matchupStats,
		Execution:   execution,
	}
	if err := writePredictionResult(run.Dir, result); err != nil {
		return nil, err
	}
	if err := writeRunSummary(run.Dir, "predict", run.ID, result.PlayerA, result.PlayerB, &result.Probability, nil); err != nil {
		return nil, err
	}

	metrics.PredictionsTotal.Inc()
	logger.WithFields(logrus.Fields{
		"player_a":    result.PlayerA,
		"player_b":    result.PlayerB,
		"probability": result.Probability,
	}).Info("Prediction complete")
	return result, nil
}

// StrategyRequest identifies the matchup and bounds the candidate search.
type StrategyRequest struct {
	PlayerA  string
	PlayerB  string
	Window   int
	AsOf     time.Time
	Template string
	Budget   int
	L1Bound  float64

	Mode       string
	EnginePath string
	Timeout    time.Duration
	RunID      string
}

// StrategyResult is the outcome of one strategy search run.
type StrategyResult struct {
	RunID               string                     `json:"run_id"`
	RunDir              string                     `json:"run_dir"`
	PlayerA             string                     `json:"player_a"`
	PlayerB             string                     `json:"player_b"`
	BaselineProbability float64                    `json:"baseline_probability"`
	ImprovedProbability float64                    `json:"improved_probability"`
	Delta               float64                    `json:"delta"`
	Best                models.StrategyCandidate   `json:"best"`
	Candidates          []models.StrategyCandidate `json:"candidates"`
	BaselineParams      models.MatchupParams       `json:"baseline_params"`
	BestParams          models.MatchupParams       `json:"best_params"`
	Evaluated           int                        `json:"evaluated"`
	Dropped             int                        `json:"dropped"`
}

// Strategy evaluates the baseline matchup and a bounded grid of serve-mix
// and attack-rate perturbations for player A, ranking the survivors by
// verified win probability. Candidates whose engine run fails are dropped;
// if every candidate fails the search itself fails.
func (s *Service) Strategy(ctx context.Context, req StrategyRequest) (*StrategyResult, error) {
	run, err := s.newRun("strategy", req.RunID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithField("run_id", run.ID)

	baseline, matchupStats, err := s.estimate(req.PlayerA, req.PlayerB, req.Window, req.AsOf)
	if err != nil {
		return nil, err
	}
	if err := writeInputs(run.Dir, req.PlayerA, req.PlayerB, s.window(req.Window), s.asOf(req.AsOf), s.cfg); err != nil {
		return nil, err
	}
	if err := writeStats(run.Dir, matchupStats); err != nil {
		return nil, err
	}

	opts := s.engineOptions(req.Mode, req.EnginePath, req.Timeout)
	baselineExec, err := s.verify(ctx, baseline, req.Template,
		filepath.Join(run.Dir, "baseline.pcsp"),
		filepath.Join(run.Dir, "baseline"), opts)
	if err != nil {
		return nil, err
	}
	if !baselineExec.OK {
		return nil, &pat.ExecutionError{RunID: run.ID, Message: "baseline evaluation failed: " + baselineExec.Error}
	}

	budget := req.Budget
	if budget == 0 {
		budget = s.cfg.Strategy.Budget
	}
	l1Bound := req.L1Bound
	if l1Bound == 0 {
		l1Bound = s.cfg.Strategy.L1Bound
	}

	search, err := s.searchCandidates(ctx, run, baseline, req.Template, budget, l1Bound, opts, logger)
	if err != nil {
		return nil, err
	}

	best := search.ranked[0]
	result := &StrategyResult{
		RunID:               run.ID,
		RunDir:              run.Dir,
		PlayerA:             baseline.PlayerA.Name,
		PlayerB:             baseline.PlayerB.Name,
		BaselineProbability: *baselineExec.Probability,
		ImprovedProbability: best.Probability,
		Delta:               best.Probability - *baselineExec.Probability,
		Best:                best,
		Candidates:          search.ranked,
		BaselineParams:      baseline,
		BestParams:          search.bestParams,
		Evaluated:           search.evaluated,
		Dropped:             search.dropped,
	}
	if err := writeStrategyResult(run.Dir, result); err != nil {
		return nil, err
	}
	if err := writeTopAlternativesCSV(run.Dir, search.ranked); err != nil {
		return nil, err
	}
	if err := writeRunSummary(run.Dir, "strategy", run.ID, result.PlayerA, result.PlayerB,
		&result.Best.Probability, &result.BaselineProbability); err != nil {
		return nil, err
	}

	metrics.StrategySearchesTotal.Inc()
	logger.WithFields(logrus.Fields{
		"baseline":  result.BaselineProbability,
		"best":      result.Best.Probability,
		"evaluated": result.Evaluated,
		"dropped":   result.Dropped,
	}).Info("Strategy search complete")
	return result, nil
}

func (s *Service) estimate(playerA, playerB string, window int, asOf time.Time) (models.MatchupParams, *stats.MatchupStats, error) {
	format := models.GameFormat{
		Target: s.cfg.Format.Target,
		Cap:    s.cfg.Format.Cap,
		BestOf: s.cfg.Format.BestOf,
	}
	return s.estimator.MatchupParams(playerA, playerB, s.window(window), s.asOf(asOf), format)
}

// engineOptions are the per-invocation engine overrides, resolved against
// the configured defaults.
type engineOptions struct {
	mode       pat.Mode
	enginePath string
	timeout    time.Duration
}

func (s *Service) engineOptions(mode, enginePath string, timeout time.Duration) engineOptions {
	if mode == "" {
		mode = s.cfg.Engine.Mode
	}
	return engineOptions{mode: pat.Mode(mode), enginePath: enginePath, timeout: timeout}
}

func (s *Service) newRun(prefix, runID string) (*runs.Run, error) {
	if runID != "" {
		return runs.Existing(runID, s.cfg.Runs.Dir)
	}
	return runs.New(prefix, s.cfg.Runs.Dir)
}

// verify renders the model and runs the engine, with the invocation's
// artifacts rooted at artifactDir.
func (s *Service) verify(ctx context.Context, params models.MatchupParams, template, modelPath, artifactDir string, opts engineOptions) (*pat.Execution, error) {
	if template == "" {
		template = pcsp.DefaultTemplate
	}
	if _, err := pcsp.Build(params, template, modelPath); err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, pat.Request{
		ModelPath:   modelPath,
		OutputPath:  filepath.Join(artifactDir, "pat_out.txt"),
		Mode:        opts.mode,
		ConsolePath: opts.enginePath,
		Timeout:     opts.timeout,
	})
}

func (s *Service) window(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.cfg.Strategy.Window
}

func (s *Service) asOf(requested time.Time) time.Time {
	if !requested.IsZero() {
		return requested
	}
	return time.Now().UTC()
}
