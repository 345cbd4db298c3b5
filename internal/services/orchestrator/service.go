package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/interfaces"
	"github.com/ternarybob/scrawl/internal/models"
	"github.com/ternarybob/scrawl/internal/services/crawler"
	"github.com/ternarybob/scrawl/internal/storage/badger"
)

// Service runs crawls for a set of site keys in parallel. Each site gets
// its own store, fetcher, rate limiter, and crawler; nothing crawl-scoped
// is shared across sites.
type Service struct {
	cfg     *common.Config
	logger  arbor.ILogger
	history interfaces.HistoryStore
}

// NewService creates the orchestrator. history may be nil when run
// summaries should not be persisted.
func NewService(cfg *common.Config, history interfaces.HistoryStore, logger arbor.ILogger) *Service {
	return &Service{cfg: cfg, logger: logger, history: history}
}

// Run crawls every named site concurrently and returns per-site results
// in the order the keys were given.
func (s *Service) Run(ctx context.Context, siteKeys []string, opts crawler.Options) []models.SiteResult {
	results := make([]models.SiteResult, len(siteKeys))
	var wg sync.WaitGroup

	for i, key := range siteKeys {
		wg.Add(1)
		go func(idx int, siteKey string) {
			defer wg.Done()
			results[idx] = s.runSite(ctx, siteKey, opts)
		}(i, key)
	}

	wg.Wait()
	return results
}

func (s *Service) runSite(ctx context.Context, siteKey string, opts crawler.Options) models.SiteResult {
	start := time.Now()
	result := models.SiteResult{SiteKey: siteKey}

	site, ok := s.cfg.Sites[siteKey]
	if !ok {
		result.Error = fmt.Sprintf("unknown site key %q", siteKey)
		return result
	}

	run := &models.CrawlRun{
		ID:          uuid.NewString(),
		SiteKey:     siteKey,
		StartedAt:   models.Now(),
		Resumed:     opts.Resume,
		Incremental: opts.Incremental,
	}

	pages, sitemaps, err := s.crawlSite(ctx, siteKey, &site, opts)
	result.PagesProcessed = pages
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		s.logger.Error().Str("site", siteKey).Err(err).Msg("Site crawl failed")
	} else {
		result.Success = true
	}

	run.FinishedAt = models.Now()
	run.PagesProcessed = pages
	run.Success = result.Success
	run.Error = result.Error
	run.Sitemaps = sitemaps
	if s.history != nil {
		if err := s.history.SaveRun(run); err != nil {
			s.logger.Warn().Str("site", siteKey).Err(err).Msg("Failed to persist crawl run")
		}
	}

	return result
}

// crawlSite builds the per-site dependency graph, runs the crawl, and
// tears the store down afterwards.
func (s *Service) crawlSite(ctx context.Context, siteKey string, site *common.SiteConfig, opts crawler.Options) (int, []string, error) {
	store, err := badger.NewVisitedStore(s.logger, s.cfg.Output.StateDir, site.AllowedDomain, opts.Resume)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to open visited store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			s.logger.Warn().Str("site", siteKey).Err(cerr).Msg("Failed to close visited store")
		}
	}()

	fetcher := crawler.NewHTTPFetcher(s.cfg, s.logger)
	limiter := crawler.NewHostRateLimiter(s.cfg.DelayForSite(site))
	robots := crawler.NewRobotsManager(fetcher, s.cfg.HTTP.UserAgent, s.logger)

	service, err := crawler.NewService(siteKey, s.cfg, site, store, fetcher, limiter, robots, s.logger, opts)
	if err != nil {
		return 0, nil, err
	}

	pages, err := service.Run(ctx)
	return pages, service.Sitemaps(), err
}
