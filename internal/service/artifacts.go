package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yourusername/rally-coach/internal/config"
	"github.com/yourusername/rally-coach/internal/models"
	"github.com/yourusername/rally-coach/internal/stats"
)

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeInputs records what the run was asked to do, so a run directory is
// self-describing without the process logs.
func writeInputs(runDir, playerA, playerB string, window int, asOf time.Time, cfg *config.Config) error {
	return writeJSON(filepath.Join(runDir, "inputs.json"), map[string]interface{}{
		"player_a": playerA,
		"player_b": playerB,
		"window":   window,
		"as_of":    asOf.Format(time.RFC3339),
		"format":   cfg.Format,
		"engine": map[string]interface{}{
			"mode":         cfg.Engine.Mode,
			"console_path": cfg.Engine.ConsolePath,
			"use_mono":     cfg.Engine.UseMono,
		},
	})
}

func writeStats(runDir string, matchupStats *stats.MatchupStats) error {
	return writeJSON(filepath.Join(runDir, "stats.json"), matchupStats)
}

func writePredictionResult(runDir string, result *PredictResult) error {
	return writeJSON(filepath.Join(runDir, "prediction_result.json"), result)
}

func writeStrategyResult(runDir string, result *StrategyResult) error {
	return writeJSON(filepath.Join(runDir, "strategy_result.json"), result)
}

// writeRunSummary is the one-glance record: operation, players, and the
// headline probabilities. It overwrites the runner's minimal summary.
func writeRunSummary(runDir, operation, runID, playerA, playerB string, probability, baseline *float64) error {
	payload := map[string]interface{}{
		"operation":   operation,
		"run_id":      runID,
		"player_a":    playerA,
		"player_b":    playerB,
		"probability": probability,
	}
	if baseline != nil {
		payload["baseline_probability"] = baseline
	}
	return writeJSON(filepath.Join(runDir, "summary.json"), payload)
}

// writeTopAlternativesCSV persists the ranked candidates in a
// spreadsheet-friendly form.
func writeTopAlternativesCSV(runDir string, ranked []models.StrategyCandidate) error {
	path := filepath.Join(runDir, "top_alternatives.csv")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"rank", "serve_short_delta", "attack_delta", "l1_change", "probability"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, c := range ranked {
		row := []string{
			strconv.Itoa(c.Rank),
			strconv.FormatFloat(c.ServeShortDelta, 'f', 2, 64),
			strconv.FormatFloat(c.AttackDelta, 'f', 2, 64),
			strconv.FormatFloat(c.L1Change, 'f', 6, 64),
			strconv.FormatFloat(c.Probability, 'f', 6, 64),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
