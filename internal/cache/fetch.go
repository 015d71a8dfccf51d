package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resultsbakery/internal"
	"resultsbakery/internal/config"
	"resultsbakery/internal/logging"
)

// Fetcher downloads a mapping's raw_url into the local cache directory.
type Fetcher struct {
	local       *LocalSource
	httpClient  *http.Client
	limiter     *RateLimiter
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type FetchResult struct {
	Path       string
	Downloaded bool
	Bytes      int64
}

func NewFetcher(cfg config.Config, logger *slog.Logger) *Fetcher {
	attempts := cfg.FetchMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Fetcher{
		local:       NewLocalSource(cfg.CacheDir),
		httpClient:  &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.FetchRateLimitRPS),
		maxAttempts: attempts,
		backoff:     250 * time.Millisecond,
		logger:      logging.OrNop(logger),
	}
}

// Fetch is a no-op when the file is already cached.
func (f *Fetcher) Fetch(ctx context.Context, m internal.Mapping) (FetchResult, error) {
	dest := f.local.Path(m)
	if info, err := os.Stat(dest); err == nil {
		return FetchResult{Path: dest, Bytes: info.Size()}, nil
	}
	if strings.TrimSpace(m.RawURL) == "" {
		return FetchResult{}, fmt.Errorf("%w: %s has no raw_url", internal.ErrSourceUnavailable, m.GeneratedFilename)
	}

	body, err := f.get(ctx, m.RawURL)
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %s: %v", internal.ErrSourceUnavailable, m.GeneratedFilename, err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return FetchResult{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return FetchResult{}, err
	}
	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return FetchResult{}, fmt.Errorf("write %s: %w", dest, errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return FetchResult{}, err
	}

	f.logger.Info("fetched raw file", "file", m.GeneratedFilename, "bytes", n)
	return FetchResult{Path: dest, Downloaded: true, Bytes: n}, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp.Body, nil
			}
			_ = resp.Body.Close()
			if !isRetryableStatus(resp.StatusCode) {
				return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
			}
			lastErr = fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
		}

		if attempt < f.maxAttempts {
			wait := f.backoff*time.Duration(1<<(attempt-1)) + time.Duration(rand.Intn(100))*time.Millisecond/10
			f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
