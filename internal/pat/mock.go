package pat

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// paramPattern pulls the named rally parameters back out of a rendered
// model description.
var paramPattern = regexp.MustCompile(`(?i)\b(pA_srv_win|pA_rcv_win|serve_mix_A_short|serve_mix_B_short|` +
	`rally_style_A_attack|rally_style_B_attack|rally_style_A_safe|rally_style_B_safe)\b` +
	`\s*[:=]\s*([+-]?(?:\d*\.\d+|\d+))`)

func logistic(value float64) float64 {
	return 1.0 / (1.0 + math.Exp(-value))
}

// MockProbability is a deterministic monotonic mapping from rally
// parameters to a match win probability. It stands in for the verification
// engine during tests and when the real engine is unavailable by choice.
func MockProbability(params map[string]float64) float64 {
	get := func(key string, fallback float64) float64 {
		if v, ok := params[key]; ok {
			return v
		}
		return fallback
	}

	pASrv := get("pA_srv_win", 0.5)
	pARcv := get("pA_rcv_win", 0.5)
	serveEdge := get("serve_mix_A_short", 0.5) - get("serve_mix_B_short", 0.5)
	attackEdge := get("rally_style_A_attack", 0.33) - get("rally_style_B_attack", 0.33)
	safeEdge := get("rally_style_B_safe", 0.33) - get("rally_style_A_safe", 0.33)

	linear := 2.8*(pASrv-0.5) +
		2.2*(pARcv-0.5) +
		0.7*serveEdge +
		0.9*attackEdge -
		0.6*safeEdge

	return math.Max(0.01, math.Min(0.99, logistic(linear)))
}

// ExtractModelParams scans a rendered model description for the named rally
// parameters.
func ExtractModelParams(modelText string) map[string]float64 {
	params := make(map[string]float64)
	for _, match := range paramPattern.FindAllStringSubmatch(modelText, -1) {
		value, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		params[match[1]] = value
	}
	return params
}

// mockRun computes the deterministic probability for the model file and
// writes a synthetic engine output file next to it.
func mockRun(modelPath, outPath string) (float64, string, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read model file: %w", err)
	}

	probability := MockProbability(ExtractModelParams(string(data)))

	outText := fmt.Sprintf("PAT Mock Verification Result\nwith prob %.6f\nmodule: -pcsp\n", probability)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, []byte(outText), 0o644); err != nil {
		return 0, "", fmt.Errorf("failed to write mock output: %w", err)
	}

	stdout := fmt.Sprintf("[mock] PAT finished for %s. Probability = %.6f\n", filepath.Base(modelPath), probability)
	return probability, stdout, nil
}
