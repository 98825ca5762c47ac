// Package runs creates the per-invocation artifact directories. Every
// predict or strategy invocation owns exactly one run directory; retention
// of old runs is an external concern.
package runs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Run is a unique identifier plus an exclusively owned artifact directory.
type Run struct {
	ID  string
	Dir string
}

// New creates a run directory under root. The identifier combines a UTC
// timestamp with a random suffix so two runs started within the same second
// cannot collide.
func New(prefix, root string) (*Run, error) {
	timestamp := time.Now().UTC().Format("20060102_150405")
	suffix := uuid.New().String()[:8]
	id := fmt.Sprintf("%s_%s_%s", prefix, timestamp, suffix)

	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	return &Run{ID: id, Dir: dir}, nil
}

// Existing reuses a caller-supplied run identifier, creating its directory
// if needed.
func Existing(id, root string) (*Run, error) {
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
	}
	return &Run{ID: id, Dir: dir}, nil
}
