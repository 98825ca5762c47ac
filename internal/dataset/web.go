package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// WebSource fetches player and match tables from a remote stats service,
// caching the JSON payloads on disk. It is a sync-time companion to the
// CSVAdapter, not a per-query data path: Fetch* populate the cache and the
// caller feeds the result into a local adapter.
type WebSource struct {
	baseURL  string
	cacheDir string
	client   *retryablehttp.Client
	limiter  *rate.Limiter
	logger   *logrus.Logger
}

// NewWebSource creates a rate-limited, retrying web source. requestsPerSec
// bounds the request rate against the remote service.
func NewWebSource(baseURL, cacheDir string, requestsPerSec float64, logger *logrus.Logger) *WebSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	if requestsPerSec <= 0 {
		requestsPerSec = 2.0
	}

	return &WebSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		cacheDir: cacheDir,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		logger:   logger,
	}
}

func (w *WebSource) cachePath(name string) string {
	safe := strings.Join(strings.Fields(strings.ToLower(name)), "_")
	return filepath.Join(w.cacheDir, safe+".json")
}

// FetchPlayer returns the remote player record, preferring the disk cache.
func (w *WebSource) FetchPlayer(ctx context.Context, name string) (PlayerRecord, error) {
	var record PlayerRecord
	err := w.fetchJSON(ctx, "/players/"+name, w.cachePath("player_"+name), &record)
	if err != nil {
		return PlayerRecord{}, err
	}
	return record, nil
}

// FetchMatches downloads the match table for a player and returns the local
// path of the cached JSON payload.
func (w *WebSource) FetchMatches(ctx context.Context, playerID string) (string, error) {
	cache := w.cachePath("matches_" + playerID)
	var raw json.RawMessage
	if err := w.fetchJSON(ctx, "/players/"+playerID+"/matches", cache, &raw); err != nil {
		return "", err
	}
	return cache, nil
}

// Sync refreshes the disk cache for the given player references: each
// player's record and match table are fetched (or revalidated from cache)
// and the cached payload paths returned in fetch order.
func (w *WebSource) Sync(ctx context.Context, refs []string) ([]string, error) {
	var paths []string
	for _, ref := range refs {
		record, err := w.FetchPlayer(ctx, ref)
		if err != nil {
			return nil, err
		}
		matchesPath, err := w.FetchMatches(ctx, record.PlayerID)
		if err != nil {
			return nil, err
		}
		paths = append(paths, w.cachePath("player_"+ref), matchesPath)
		w.logger.WithFields(logrus.Fields{
			"player":  record.PlayerID,
			"matches": matchesPath,
		}).Info("Synced player dataset")
	}
	return paths, nil
}

func (w *WebSource) fetchJSON(ctx context.Context, path, cachePath string, out interface{}) error {
	if data, err := os.ReadFile(cachePath); err == nil {
		return json.Unmarshal(data, out)
	}

	if w.baseURL == "" {
		return &DataError{Message: "web source is not configured; use the local CSV source or set data.web_base_url"}
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter interrupted: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	w.logger.WithField("url", w.baseURL+path).Debug("Fetching remote dataset payload")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("web source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DataError{Message: fmt.Sprintf("web source returned status %d for %s", resp.StatusCode, path)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}
