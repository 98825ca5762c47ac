package pat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// FallbackSignature decides whether a failed invocation matches a known
// startup failure of a legacy engine runtime that the runner can patch
// around. Swapping the value swaps the recognized failure class.
type FallbackSignature struct {
	// Name labels the signature in logs and the invocation record.
	Name string
	// Matches inspects a failed primary attempt.
	Matches func(consolePath string, useMono bool, result commandResult, outputExists bool) bool
}

// DefaultFallbackSignature recognizes the PAT3 console failing its NESC
// module startup checks under mono: the run aborts before verification, so
// the usage banner and an argument rejection appear together with a runtime
// load error, and no output file is produced.
var DefaultFallbackSignature = FallbackSignature{
	Name: "pat3-nesc-mono",
	Matches: func(consolePath string, useMono bool, result commandResult, outputExists bool) bool {
		if !useMono || outputExists {
			return false
		}
		if !strings.Contains(strings.ToLower(filepath.Base(consolePath)), "pat3.console") {
			return false
		}
		combined := strings.ToLower(result.Stdout + "\n" + result.Stderr)
		if !strings.Contains(combined, "for all modules except uml:") {
			return false
		}
		if !strings.Contains(combined, "invalid arguments.") {
			return false
		}
		return strings.Contains(combined, "invalid image") ||
			strings.Contains(combined, "object reference not set to an instance of an object")
	},
}

func (r *Runner) shouldAttemptFallback(consolePath string, useMono bool, primary commandResult, outputPath string) bool {
	if primary.ReturnCode == 0 || r.Signature.Matches == nil {
		return false
	}
	_, statErr := os.Stat(outputPath)
	return r.Signature.Matches(consolePath, useMono, primary, statErr == nil)
}

// nescShimSource is a minimal stand-in for the NESC module assembly whose
// startup checks break under mono. The console only touches the buffer-size
// and abstraction-level setters before verification starts, so no-op bodies
// are sufficient for PCSP models.
const nescShimSource = `using System;
using PAT.Common.Classes.ModuleInterface;

namespace PAT.NESC
{
    public class NCSetting
    {
        public static void SetBufferSize(int size) { }
        public static void SetAbstractionLevel(int level) { }
    }

    public class ModuleFacade : ModuleFacadeBase
    {
        public ModuleFacade() { }
    }
}
`

// prepareCompatRuntime builds a patched copy of the engine installation
// inside the run directory: the install tree is copied, a replacement NESC
// module assembly is compiled from the shim source, and the path to the
// copied console is returned. Compile transcripts are persisted alongside
// the other run artifacts.
func (r *Runner) prepareCompatRuntime(ctx context.Context, consolePath, runDir string) (string, error) {
	installDir := filepath.Dir(consolePath)
	compatDir := filepath.Join(runDir, "pat_compat")
	if err := copyTree(installDir, compatDir); err != nil {
		return "", fmt.Errorf("failed to copy engine installation for patching: %w", err)
	}

	shimPath := filepath.Join(runDir, "nesc_shim.cs")
	if err := os.WriteFile(shimPath, []byte(nescShimSource), 0o644); err != nil {
		return "", fmt.Errorf("failed to write compatibility shim source: %w", err)
	}

	moduleDir := filepath.Join(compatDir, "Modules", "NESC")
	if err := os.MkdirAll(moduleDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create patched module directory: %w", err)
	}

	compiler := r.resolveCSharpCompiler()
	targetDLL := filepath.Join(moduleDir, "PAT.Module.NESC.dll")
	compileCmd := []string{
		compiler,
		"-target:library",
		"-out:" + targetDLL,
		"-r:" + filepath.Join(compatDir, "PAT.Common.dll"),
		shimPath,
	}

	compileCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(compileCtx, compileCmd[0], compileCmd[1:]...)
	cmd.Dir = compatDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	_ = os.WriteFile(filepath.Join(runDir, "shim_compile_cmd.txt"), []byte(strings.Join(compileCmd, " ")+"\n"), 0o644)
	_ = os.WriteFile(filepath.Join(runDir, "shim_compile_stdout.txt"), stdout.Bytes(), 0o644)
	_ = os.WriteFile(filepath.Join(runDir, "shim_compile_stderr.txt"), stderr.Bytes(), 0o644)

	if runErr != nil {
		detail := firstNonEmptyLine(stderr.String())
		if detail == "" {
			detail = firstNonEmptyLine(stdout.String())
		}
		if detail == "" {
			detail = runErr.Error()
		}
		return "", fmt.Errorf("compatibility shim compilation with %s failed: %s", compiler, detail)
	}

	return filepath.Join(compatDir, filepath.Base(consolePath)), nil
}

// resolveCSharpCompiler prefers the mcs shipped next to an explicitly
// configured mono binary, then one on PATH, then the bare name so the start
// error surfaces what is missing.
func (r *Runner) resolveCSharpCompiler() string {
	if monoPath := r.cfg.Engine.MonoPath; monoPath != "" && filepath.IsAbs(monoPath) {
		sibling := filepath.Join(filepath.Dir(monoPath), "mcs")
		if _, err := os.Stat(sibling); err == nil {
			return sibling
		}
	}
	if found, err := exec.LookPath("mcs"); err == nil {
		return found
	}
	return "mcs"
}

// copyTree copies a directory tree, preserving file modes. Symlinks are
// skipped; engine installations do not rely on them.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
