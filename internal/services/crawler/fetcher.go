package crawler

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/models"
)

// HTTPFetcher fetches URLs with the configured client profile and a
// jittered exponential-backoff retry loop.
type HTTPFetcher struct {
	client            *http.Client
	userAgent         string
	followRedirects   bool
	maxRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
	logger            arbor.ILogger
}

// NewHTTPFetcher builds a fetcher from the application config.
func NewHTTPFetcher(cfg *common.Config, logger arbor.ILogger) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTP.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTP.MaxIdleConnsPerHost,
		IdleConnTimeout:     common.DurationOr(cfg.HTTP.IdleConnTimeout, 90*time.Second),
	}

	client := &http.Client{
		Timeout:   common.DurationOr(cfg.HTTP.Timeout, 30*time.Second),
		Transport: transport,
	}

	maxRedirects := cfg.HTTP.MaxRedirects
	if cfg.HTTP.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if maxRedirects > 0 && len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &HTTPFetcher{
		client:            client,
		userAgent:         cfg.HTTP.UserAgent,
		followRedirects:   cfg.HTTP.FollowRedirects,
		maxRetries:        cfg.Crawl.MaxRetries,
		initialRetryDelay: common.DurationOr(cfg.Crawl.InitialRetryDelay, time.Second),
		maxRetryDelay:     common.DurationOr(cfg.Crawl.MaxRetryDelay, 30*time.Second),
		logger:            logger,
	}
}

// FetchOnce performs one GET attempt. Transport failures yield status 0
// with a descriptive error.
func (f *HTTPFetcher) FetchOnce(ctx context.Context, rawURL string) *models.FetchResult {
	result := &models.FetchResult{FinalURL: rawURL}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("invalid request: %v", err)
		result.ResponseTimeMs = time.Since(start).Milliseconds()
		return result
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	result.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.FinalURL = resp.Request.URL.String()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read body: %v", err)
		return result
	}
	result.Body = string(body)

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		result.IsRedirect = true
		if loc := resp.Header.Get("Location"); loc != "" {
			if abs, rerr := common.ResolveURL(rawURL, loc); rerr == nil {
				result.FinalURL = abs
			} else {
				result.FinalURL = loc
			}
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
	} else if result.Error == "" {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	return result
}

// FetchWithRetry performs up to maxRetries+1 attempts, backing off
// between retryable failures by min(initial·2^(attempt−1), max) with
// ±10% jitter. Returns the last result and the attempt count.
func (f *HTTPFetcher) FetchWithRetry(ctx context.Context, rawURL string) (*models.FetchResult, int) {
	maxAttempts := f.maxRetries + 1
	var result *models.FetchResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result = f.FetchOnce(ctx, rawURL)
		if result.Success || !result.IsRetryable() {
			return result, attempt
		}
		if attempt == maxAttempts {
			break
		}

		backoff := f.calculateBackoff(attempt)
		f.logger.Debug().
			Str("url", rawURL).
			Int("attempt", attempt).
			Int("status_code", result.StatusCode).
			Dur("backoff", backoff).
			Msg("Retrying fetch after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Error = ctx.Err().Error()
			return result, attempt
		case <-timer.C:
		}
	}

	f.logger.Warn().
		Str("url", rawURL).
		Int("attempts", maxAttempts).
		Int("status_code", result.StatusCode).
		Str("error", result.Error).
		Msg("All fetch attempts exhausted")

	return result, maxAttempts
}

func (f *HTTPFetcher) calculateBackoff(attempt int) time.Duration {
	backoff := float64(f.initialRetryDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(f.maxRetryDelay) {
		backoff = float64(f.maxRetryDelay)
	}
	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// ClassifyFetchError maps a failed fetch to a domain error type.
func ClassifyFetchError(result *models.FetchResult) models.ErrorType {
	if result.StatusCode == 0 {
		if isTimeoutMessage(result.Error) {
			return models.ErrorTimeout
		}
		return models.ErrorNetwork
	}
	if result.StatusCode == 429 {
		return models.ErrorRateLimited
	}
	return models.ErrorHTTP
}

func isTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded")
}
