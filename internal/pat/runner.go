package pat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/rally-coach/internal/config"
	"github.com/yourusername/rally-coach/internal/metrics"
)

// Mode selects between the real engine and the deterministic mock.
type Mode string

const (
	ModeReal Mode = "real"
	ModeMock Mode = "mock"
)

// Console binary names searched when the configured path is a directory.
var consoleCandidates = []string{"PAT.Console.exe", "PAT3.Console.exe", "PAT4.Console.exe"}

// EngineUnavailableError means the engine could not be located or started.
// It is never silently downgraded to mock mode.
type EngineUnavailableError struct {
	Path   string
	Reason string
}

func (e *EngineUnavailableError) Error() string {
	return fmt.Sprintf("verification engine unavailable at %q: %s. "+
		"Download PAT from https://www.comp.nus.edu.sg/~pat/patdownload.htm, "+
		"set engine.console_path to PAT.Console.exe (or its directory), or use mock mode", e.Path, e.Reason)
}

// ExecutionError reports a failed engine run. The run's artifacts were
// persisted before this error was raised.
type ExecutionError struct {
	RunID   string
	Message string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("engine run %s failed: %s", e.RunID, e.Message)
}

// Attempt records one engine invocation inside a run.
type Attempt struct {
	Index      int      `json:"index"`
	Cmd        []string `json:"cmd"`
	ReturnCode int      `json:"returncode"`
	StdoutPath string   `json:"stdout_path"`
	StderrPath string   `json:"stderr_path"`
}

// Execution is the persisted record of one render+execute cycle. The last
// attempt is authoritative.
type Execution struct {
	OK              bool      `json:"ok"`
	ReturnCode      int       `json:"returncode"`
	Cmd             []string  `json:"cmd"`
	StdoutPath      string    `json:"stdout_path"`
	StderrPath      string    `json:"stderr_path"`
	OutputPath      string    `json:"pat_out_path"`
	Probability     *float64  `json:"probability"`
	Attempts        []Attempt `json:"attempts,omitempty"`
	FallbackApplied bool      `json:"fallback_applied,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Request describes one engine invocation.
type Request struct {
	ModelPath   string
	OutputPath  string
	Mode        Mode
	ConsolePath string        // overrides the configured engine path when set
	Timeout     time.Duration // zero means the configured timeout
}

// Runner executes the verification engine. It owns the fallback protocol:
// attempt, classify, maybe patch-and-retry once, select the last attempt.
type Runner struct {
	cfg    *config.Config
	logger *logrus.Logger

	// Signature decides when the mono compatibility fallback fires. It is
	// a value so alternative legacy-runtime signatures can be swapped in.
	Signature FallbackSignature
}

// NewRunner creates a runner bound to the process configuration.
func NewRunner(cfg *config.Config, logger *logrus.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger, Signature: DefaultFallbackSignature}
}

// Run executes the engine for one rendered model. The run directory is the
// parent of the output path; every artifact of the invocation is written
// there synchronously regardless of outcome, so a failed run is fully
// inspectable from disk.
func (r *Runner) Run(ctx context.Context, req Request) (*Execution, error) {
	runDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	timer := time.Now()
	defer func() { metrics.EngineRunDuration.Observe(time.Since(timer).Seconds()) }()
	metrics.EngineRunsTotal.WithLabelValues(string(req.Mode)).Inc()

	switch req.Mode {
	case ModeMock:
		return r.runMock(runDir, req)
	case ModeReal:
		return r.runReal(ctx, runDir, req)
	default:
		return nil, fmt.Errorf("mode must be %q or %q; got %q", ModeReal, ModeMock, req.Mode)
	}
}

func (r *Runner) runMock(runDir string, req Request) (*Execution, error) {
	probability, stdout, err := mockRun(req.ModelPath, req.OutputPath)
	if err != nil {
		return nil, err
	}

	execution := &Execution{
		OK:          true,
		ReturnCode:  0,
		Cmd:         []string{"mock_pat", "-pcsp", req.ModelPath, req.OutputPath},
		StdoutPath:  filepath.Join(runDir, "pat_stdout.txt"),
		StderrPath:  filepath.Join(runDir, "pat_stderr.txt"),
		OutputPath:  req.OutputPath,
		Probability: &probability,
	}
	if err := r.persist(runDir, execution, stdout, ""); err != nil {
		return nil, err
	}
	metrics.LastProbability.Set(probability)
	return execution, nil
}

func (r *Runner) runReal(ctx context.Context, runDir string, req Request) (*Execution, error) {
	consolePath := req.ConsolePath
	if consolePath == "" {
		consolePath = r.cfg.Engine.ConsolePath
	}
	if consolePath == "" {
		return nil, &EngineUnavailableError{Path: "", Reason: "no engine path configured"}
	}

	resolved, err := ResolveConsolePath(consolePath)
	if err != nil {
		return nil, err
	}

	useMono := r.resolveUseMono(resolved)
	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.cfg.EngineTimeout()
	}

	baseCmd := buildCommand(r.cfg.Engine.MonoPath, resolved, req.ModelPath, req.OutputPath, useMono)

	var attempts []commandResult
	var fallbackError string

	primary := runCommand(ctx, baseCmd, filepath.Dir(resolved), timeout, useMono)
	if primary.StartErr != nil {
		execution := &Execution{
			ReturnCode: -1,
			Cmd:        baseCmd,
			StdoutPath: filepath.Join(runDir, "pat_stdout.txt"),
			StderrPath: filepath.Join(runDir, "pat_stderr.txt"),
			OutputPath: req.OutputPath,
			Error: (&EngineUnavailableError{Path: resolved,
				Reason: fmt.Sprintf("command could not be started: %v (is mono installed and on PATH?)", primary.StartErr)}).Error(),
		}
		if err := r.persist(runDir, execution, "", ""); err != nil {
			return nil, err
		}
		metrics.EngineFailuresTotal.Inc()
		return execution, &EngineUnavailableError{Path: resolved, Reason: fmt.Sprintf("command could not be started: %v", primary.StartErr)}
	}
	attempts = append(attempts, primary)

	if primary.TimedOut {
		metrics.EngineTimeoutsTotal.Inc()
		execution := &Execution{
			ReturnCode: -1,
			Cmd:        baseCmd,
			StdoutPath: filepath.Join(runDir, "pat_stdout.txt"),
			StderrPath: filepath.Join(runDir, "pat_stderr.txt"),
			OutputPath: req.OutputPath,
			Error:      fmt.Sprintf("engine timed out after %s", timeout),
		}
		// Persist whatever the process printed before it was killed.
		if err := r.persist(runDir, execution, primary.Stdout, primary.Stderr); err != nil {
			return nil, err
		}
		metrics.EngineFailuresTotal.Inc()
		return execution, nil
	}

	if r.shouldAttemptFallback(resolved, useMono, primary, req.OutputPath) {
		metrics.FallbackAttemptsTotal.Inc()
		r.logger.WithField("console", resolved).Warn("Engine startup failure signature detected, attempting mono compatibility fallback")

		compatConsole, err := r.prepareCompatRuntime(ctx, resolved, runDir)
		if err != nil {
			fallbackError = err.Error()
		} else {
			compatCmd := buildCommand(r.cfg.Engine.MonoPath, compatConsole, req.ModelPath, req.OutputPath, useMono)
			compat := runCommand(ctx, compatCmd, filepath.Dir(compatConsole), timeout, useMono)
			if compat.StartErr != nil {
				fallbackError = compat.StartErr.Error()
			} else {
				attempts = append(attempts, compat)
			}
		}
	}

	attemptMeta, err := writeAttemptLogs(runDir, attempts)
	if err != nil {
		return nil, err
	}
	selected := attempts[len(attempts)-1]

	execution := r.classify(runDir, req.OutputPath, selected, fallbackError)
	execution.Attempts = attemptMeta
	execution.FallbackApplied = len(attempts) > 1

	if err := r.persist(runDir, execution, selected.Stdout, selected.Stderr); err != nil {
		return nil, err
	}
	if execution.OK {
		metrics.LastProbability.Set(*execution.Probability)
	} else {
		metrics.EngineFailuresTotal.Inc()
	}
	return execution, nil
}

// classify applies the success criteria: exit code 0, the output file
// exists and is non-empty, and a probability parses out of it.
func (r *Runner) classify(runDir, outputPath string, selected commandResult, fallbackError string) *Execution {
	modelError := extractModelError(selected.Stdout, selected.Stderr)

	var probability *float64
	if _, statErr := os.Stat(outputPath); statErr == nil {
		outText, readErr := ReadOutput(outputPath)
		if readErr != nil {
			outText = ""
		}
		if strings.TrimSpace(outText) == "" {
			if modelError == "" {
				modelError = "engine produced an empty output file"
			}
		} else if value, parseErr := ParseProbability(outText); parseErr == nil {
			probability = &value
		} else {
			metrics.ParseFailuresTotal.Inc()
			if modelError == "" {
				modelError = parseErr.Error()
			}
		}
	} else if selected.ReturnCode == 0 && modelError == "" {
		modelError = "engine did not produce the expected output file"
	}

	ok := selected.ReturnCode == 0 && probability != nil && modelError == ""

	execution := &Execution{
		OK:          ok,
		ReturnCode:  selected.ReturnCode,
		Cmd:         selected.Cmd,
		StdoutPath:  filepath.Join(runDir, "pat_stdout.txt"),
		StderrPath:  filepath.Join(runDir, "pat_stderr.txt"),
		OutputPath:  outputPath,
		Probability: probability,
	}
	if !ok {
		message := "engine execution failed; check pat_stdout.txt and pat_stderr.txt in the run directory"
		detail := modelError
		if detail == "" {
			detail = firstNonEmptyLine(selected.Stderr)
		}
		if detail == "" {
			detail = firstNonEmptyLine(selected.Stdout)
		}
		if detail != "" {
			message = fmt.Sprintf("%s. Detail: %s", message, detail)
		}
		if hint := inferHint(selected.Stdout, selected.Stderr); hint != "" {
			message = fmt.Sprintf("%s. Hint: %s", message, hint)
		}
		if fallbackError != "" {
			message = fmt.Sprintf("%s. Fallback detail: attempted mono compatibility shim but it failed: %s", message, fallbackError)
		}
		execution.Error = message
	}
	return execution
}

// persist writes the raw stdout/stderr, the structured invocation record,
// and the minimal summary record. Called on every path, success or failure.
func (r *Runner) persist(runDir string, execution *Execution, stdout, stderr string) error {
	if err := os.WriteFile(execution.StdoutPath, []byte(stdout), 0o644); err != nil {
		return fmt.Errorf("failed to write stdout artifact: %w", err)
	}
	if err := os.WriteFile(execution.StderrPath, []byte(stderr), 0o644); err != nil {
		return fmt.Errorf("failed to write stderr artifact: %w", err)
	}

	record, err := json.MarshalIndent(execution, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invocation record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "pat_run.json"), record, 0o644); err != nil {
		return fmt.Errorf("failed to write invocation record: %w", err)
	}

	summary, err := json.MarshalIndent(map[string]interface{}{"probability": execution.Probability}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "summary.json"), summary, 0o644); err != nil {
		return fmt.Errorf("failed to write summary record: %w", err)
	}
	return nil
}

func (r *Runner) resolveUseMono(consolePath string) bool {
	switch r.cfg.Engine.UseMono {
	case "always":
		return true
	case "never":
		return false
	default:
		return strings.EqualFold(filepath.Ext(consolePath), ".exe")
	}
}

// ResolveConsolePath accepts either the console executable itself or the
// engine installation directory, in which case the known binary names are
// searched, falling back to a unique *Console*.exe glob match.
func ResolveConsolePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &EngineUnavailableError{Path: path, Reason: "executable not found"}
	}
	if !info.IsDir() {
		return path, nil
	}

	for _, name := range consoleCandidates {
		candidate := filepath.Join(path, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	globbed, err := filepath.Glob(filepath.Join(path, "*Console*.exe"))
	if err == nil && len(globbed) == 1 {
		return globbed[0], nil
	}
	return "", &EngineUnavailableError{Path: path, Reason: "directory contains no recognizable console executable"}
}

func buildCommand(monoPath, consolePath, modelPath, outputPath string, useMono bool) []string {
	if useMono {
		if monoPath == "" {
			monoPath = "mono"
		}
		return []string{monoPath, consolePath, "-pcsp", modelPath, outputPath}
	}
	return []string{consolePath, "-pcsp", modelPath, outputPath}
}

// commandResult is the raw outcome of one subprocess invocation.
type commandResult struct {
	Cmd        []string
	ReturnCode int
	Stdout     string
	Stderr     string
	TimedOut   bool
	StartErr   error
}

func runCommand(ctx context.Context, cmdline []string, dir string, timeout time.Duration, useMono bool) commandResult {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(attemptCtx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	if useMono {
		// An inherited MONO_PATH can shadow the engine's bundled assemblies.
		env := os.Environ()
		filtered := env[:0]
		for _, kv := range env {
			if !strings.HasPrefix(kv, "MONO_PATH=") {
				filtered = append(filtered, kv)
			}
		}
		cmd.Env = filtered
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Cmd:    cmdline,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ReturnCode = -1
		return result
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
		} else {
			result.ReturnCode = -1
			result.StartErr = err
		}
	}
	return result
}

func writeAttemptLogs(runDir string, attempts []commandResult) ([]Attempt, error) {
	meta := make([]Attempt, 0, len(attempts))
	for i, attempt := range attempts {
		index := i + 1
		outPath := filepath.Join(runDir, fmt.Sprintf("pat_stdout_attempt%d.txt", index))
		errPath := filepath.Join(runDir, fmt.Sprintf("pat_stderr_attempt%d.txt", index))
		if err := os.WriteFile(outPath, []byte(attempt.Stdout), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write attempt %d stdout: %w", index, err)
		}
		if err := os.WriteFile(errPath, []byte(attempt.Stderr), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write attempt %d stderr: %w", index, err)
		}
		meta = append(meta, Attempt{
			Index:      index,
			Cmd:        attempt.Cmd,
			ReturnCode: attempt.ReturnCode,
			StdoutPath: outPath,
			StderrPath: errPath,
		})
	}
	return meta, nil
}

// modelErrorSignals are line prefixes/fragments the engine emits when the
// model itself is rejected.
var modelErrorSignals = []string{
	"parsing error:",
	"runtime exception occurred:",
	"error occurred:",
	"invalid file name:",
	"invalid folder name:",
	"invalid arguments.",
}

func extractModelError(stdout, stderr string) string {
	for _, raw := range strings.Split(stdout+"\n"+stderr, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lowered := strings.ToLower(line)
		for _, signal := range modelErrorSignals {
			if strings.Contains(lowered, signal) {
				return line
			}
		}
	}
	return ""
}

func inferHint(stdout, stderr string) string {
	combined := strings.ToLower(stdout + "\n" + stderr)
	if strings.Contains(combined, "invalid arguments. invalid image") {
		return "PAT3.Console under mono can fail its NESC startup checks; the runner attempts a compatibility shim automatically. If this still fails, install full mono (with mcs) or use PAT4"
	}
	if strings.Contains(combined, "object reference not set to an instance of an object") {
		return "this is usually a PAT3 NESC startup failure on mono; point engine.console_path at PAT3.Console.exe and let the runner apply the compatibility fallback"
	}
	return ""
}

func firstNonEmptyLine(text string) string {
	for _, raw := range strings.Split(text, "\n") {
		if line := strings.TrimSpace(raw); line != "" {
			return line
		}
	}
	return ""
}
