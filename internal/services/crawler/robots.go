package crawler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/interfaces"
)

// RobotsManager fetches and caches robots.txt per origin and answers
// allow/disallow queries for the crawl's user-agent. A missing or
// unfetchable robots.txt allows everything.
type RobotsManager struct {
	fetcher   interfaces.Fetcher
	userAgent string
	logger    arbor.ILogger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData // origin -> parsed data, nil = allow all
}

// NewRobotsManager creates a manager using the shared fetcher.
func NewRobotsManager(fetcher interfaces.Fetcher, userAgent string, logger arbor.ILogger) *RobotsManager {
	return &RobotsManager{
		fetcher:   fetcher,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether the crawl's user-agent may fetch rawURL.
func (r *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	c, err := common.ParseURL(rawURL)
	if err != nil {
		return false
	}

	data := r.dataForOrigin(ctx, c.Scheme, c.Host, c.Port)
	if data == nil {
		return true
	}

	path := c.Path
	if path == "" {
		path = "/"
	}
	if c.Query != "" {
		path += "?" + c.Query
	}
	return data.TestAgent(path, r.userAgent)
}

// Sitemaps returns the deduplicated, sorted sitemap URLs seen across all
// fetched robots.txt files.
func (r *RobotsManager) Sitemaps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	for _, data := range r.cache {
		if data == nil {
			continue
		}
		for _, sm := range data.Sitemaps {
			seen[sm] = true
		}
	}

	sitemaps := make([]string, 0, len(seen))
	for sm := range seen {
		sitemaps = append(sitemaps, sm)
	}
	sort.Strings(sitemaps)
	return sitemaps
}

func (r *RobotsManager) dataForOrigin(ctx context.Context, scheme, host, port string) *robotstxt.RobotsData {
	origin := scheme + "://" + host
	if port != "" {
		origin += ":" + port
	}

	r.mu.Lock()
	data, cached := r.cache[origin]
	r.mu.Unlock()
	if cached {
		return data
	}

	data = r.fetchRobots(ctx, origin)

	r.mu.Lock()
	r.cache[origin] = data
	r.mu.Unlock()
	return data
}

func (r *RobotsManager) fetchRobots(ctx context.Context, origin string) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s/robots.txt", origin)
	result := r.fetcher.FetchOnce(ctx, robotsURL)

	if !result.Success {
		r.logger.Debug().
			Str("origin", origin).
			Int("status_code", result.StatusCode).
			Msg("No usable robots.txt, allowing all paths")
		return nil
	}

	data, err := robotstxt.FromBytes([]byte(result.Body))
	if err != nil {
		r.logger.Warn().Str("origin", origin).Err(err).Msg("Failed to parse robots.txt, allowing all paths")
		return nil
	}

	r.logger.Debug().
		Str("origin", origin).
		Int("sitemaps", len(data.Sitemaps)).
		Msg("Loaded robots.txt")
	return data
}
