package pcsp

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/rally-coach/internal/models"
)

//go:embed templates/*.pcsp
var templates embed.FS

// DefaultTemplate is the bundled rally-level badminton model.
const DefaultTemplate = "badminton_rally.pcsp"

// BuildResult records one render cycle: where the rendered model and its
// parameter snapshot were written.
type BuildResult struct {
	ModelPath  string            `json:"model_path"`
	ParamsPath string            `json:"params_path"`
	Context    map[string]string `json:"context"`
}

// LoadTemplate returns the text of a bundled template.
func LoadTemplate(name string) (string, error) {
	data, err := templates.ReadFile(filepath.Join("templates", name))
	if err != nil {
		return "", fmt.Errorf("template not found: %s: %w", name, err)
	}
	return string(data), nil
}

// Build renders the template for the matchup and writes the model file to
// modelPath, alongside a params.json snapshot of everything that went into
// it. The parent directory is created if needed.
func Build(params models.MatchupParams, templateName, modelPath string) (*BuildResult, error) {
	templateText, err := LoadTemplate(templateName)
	if err != nil {
		return nil, err
	}

	context := TemplateContext(params)
	rendered, err := Render(templateText, context)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(modelPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(modelPath, []byte(rendered), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write model file: %w", err)
	}

	paramsPath := filepath.Join(dir, "params.json")
	payload := map[string]interface{}{
		"player_a":                params.PlayerA,
		"player_b":                params.PlayerB,
		"weights":                 params.Weights,
		"format":                  params.Format,
		"effective_probabilities": params.EffectiveProbabilities(),
		"context":                 context,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params snapshot: %w", err)
	}
	if err := os.WriteFile(paramsPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write params snapshot: %w", err)
	}

	return &BuildResult{ModelPath: modelPath, ParamsPath: paramsPath, Context: context}, nil
}
