package interfaces

import (
	"context"

	"github.com/ternarybob/scrawl/internal/models"
)

// Fetcher retrieves URLs over HTTP. Implementations are stateless beyond
// their configuration and safe for concurrent use.
type Fetcher interface {
	// FetchOnce performs a single attempt.
	FetchOnce(ctx context.Context, rawURL string) *models.FetchResult

	// FetchWithRetry performs up to maxRetries+1 attempts with jittered
	// exponential backoff between retryable failures, returning the last
	// attempt's result and the number of attempts made.
	FetchWithRetry(ctx context.Context, rawURL string) (*models.FetchResult, int)
}

// RateLimiter spaces requests per origin host.
type RateLimiter interface {
	WaitForHost(ctx context.Context, host string) error
	ResetHost(host string)
}
