package crawler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/interfaces"
	"github.com/ternarybob/scrawl/internal/models"
)

const (
	popTimeout      = 200 * time.Millisecond
	monitorInterval = 50 * time.Millisecond
)

// Options toggles crawl behavior beyond the site config.
type Options struct {
	Resume      bool
	Incremental bool
}

// Service crawls one site: it owns the work queue, the worker pool, and
// the monitor that detects quiescence.
type Service struct {
	siteKey   string
	cfg       *common.Config
	site      *common.SiteConfig
	store     interfaces.VisitedStore
	fetcher   interfaces.Fetcher
	limiter   interfaces.RateLimiter
	robots    *RobotsManager
	queue     *PriorityQueue
	processor *ContentProcessor
	logger    arbor.ILogger
	opts      Options

	wg             sync.WaitGroup
	completed      atomic.Int64
	pagesProcessed atomic.Int64
	requestCount   atomic.Int64
	shuttingDown   atomic.Bool

	fatalMu  sync.Mutex
	fatalErr error
}

// NewService wires a site crawler. The site's output directory is
// created up front so pipeline writes cannot race its existence.
func NewService(siteKey string, cfg *common.Config, site *common.SiteConfig,
	store interfaces.VisitedStore, fetcher interfaces.Fetcher, limiter interfaces.RateLimiter,
	robots *RobotsManager, logger arbor.ILogger, opts Options) (*Service, error) {

	outputDir := filepath.Join(cfg.Output.BaseDir, site.AllowedDomain)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	return &Service{
		siteKey:   siteKey,
		cfg:       cfg,
		site:      site,
		store:     store,
		fetcher:   fetcher,
		limiter:   limiter,
		robots:    robots,
		queue:     NewPriorityQueue(),
		processor: NewContentProcessor(site, cfg.Output.BaseDir, store, logger),
		logger:    logger,
		opts:      opts,
	}, nil
}

// SeedQueue pushes every in-scope seed URL at depth 0.
func (s *Service) SeedQueue() {
	for _, seed := range s.site.StartURLs {
		if !common.InScope(seed, s.site.AllowedDomain, s.site.AllowedPathPrefix) {
			s.logger.Warn().Str("url", seed).Msg("Seed URL out of scope, skipping")
			continue
		}
		s.queue.Push(models.NewWorkItem(seed, 0))
	}
}

// Run executes the crawl to quiescence and returns the number of pages
// processed.
func (s *Service) Run(ctx context.Context) (int, error) {
	if timeout := common.DurationOr(s.cfg.Crawl.GlobalCrawlTimeout, 0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.SeedQueue()
	if s.opts.Resume {
		requeued, err := s.store.RequeueIncomplete(func(item models.WorkItem) {
			s.queue.Push(item)
		})
		if err != nil {
			return 0, fmt.Errorf("resume scan failed: %w", err)
		}
		s.logger.Info().Str("site", s.siteKey).Int("requeued", requeued).Msg("Requeued incomplete pages")
	}

	workers := s.cfg.Crawl.NumWorkers
	if workers < 1 {
		workers = 1
	}
	s.logger.Info().
		Str("site", s.siteKey).
		Str("domain", s.site.AllowedDomain).
		Int("workers", workers).
		Int("queued", s.queue.Size()).
		Msg("Starting crawl")

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.workerLoop(ctx, id)
		}(i)
	}

	s.monitor(ctx)
	s.wg.Wait()

	if s.site.WriteVisitedLog {
		logPath := filepath.Join(s.cfg.Output.StateDir, s.site.AllowedDomain, "visited.log")
		if err := s.store.WriteVisitedLog(logPath); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write visited log")
		}
	}

	stats := s.queue.Stats()
	s.logger.Info().
		Str("site", s.siteKey).
		Int64("pages_processed", s.pagesProcessed.Load()).
		Int("pushed", stats.TotalPushed).
		Int("popped", stats.TotalPopped).
		Msg("Crawl finished")

	s.fatalMu.Lock()
	err := s.fatalErr
	s.fatalMu.Unlock()
	return int(s.pagesProcessed.Load()), err
}

// Shutdown stops the crawl: idempotent, closes the queue, and waits for
// workers to drain.
func (s *Service) Shutdown() {
	if s.shuttingDown.Swap(true) {
		return
	}
	s.queue.Close()
	s.wg.Wait()
}

// PagesProcessed returns the success counter.
func (s *Service) PagesProcessed() int {
	return int(s.pagesProcessed.Load())
}

// Sitemaps returns sitemap URLs discovered via robots.txt.
func (s *Service) Sitemaps() []string {
	return s.robots.Sitemaps()
}

// monitor closes the queue once the crawl is quiescent: the queue is
// empty and every popped item has been completed. The pop counter
// advances under the queue lock before a worker ever holds the item, so
// popped == completed with an empty queue leaves no window where a
// worker holds work the counters cannot see. New pushes only happen
// during processing of a popped item, which the same condition rules
// out.
func (s *Service) monitor(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.queue.Close()
			return
		case <-ticker.C:
			if s.shuttingDown.Load() {
				s.queue.Close()
				return
			}
			// Stats must be read before completed: completed only grows,
			// so catching up to the earlier pop snapshot proves all held
			// items are done.
			stats := s.queue.Stats()
			if stats.CurrentSize == 0 && s.completed.Load() == int64(stats.TotalPopped) {
				s.queue.Close()
				return
			}
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, id int) {
	for {
		if s.shuttingDown.Load() || ctx.Err() != nil {
			return
		}

		item, ok := s.queue.TryPop(popTimeout)
		if !ok {
			if s.queue.IsClosed() {
				return
			}
			continue
		}

		s.processPage(ctx, item)
		s.completed.Add(1)
	}
}

func (s *Service) processPage(ctx context.Context, item models.WorkItem) {
	if s.site.MaxDepth > 0 && item.Depth > s.site.MaxDepth {
		return
	}

	normalized, err := common.NormalizeURL(item.URL)
	if err != nil {
		s.logger.Debug().Str("url", item.URL).Err(err).Msg("Dropping unparseable URL")
		return
	}

	record := s.claim(normalized, item)
	if record == nil {
		return
	}

	if s.site.RespectRobotsTxt && !s.robots.IsAllowed(ctx, item.URL) {
		record.Status = models.PageStatusRobotsDisallowed
		record.ErrorType = models.ErrorRobotsDisallowed
		record.ProcessedAt = models.Now()
		s.persist(normalized, record)
		s.logger.Debug().Str("url", item.URL).Msg("Disallowed by robots.txt")
		return
	}

	if max := s.cfg.Crawl.MaxRequests; max > 0 && s.requestCount.Load() >= int64(max) {
		s.logger.Warn().Str("site", s.siteKey).Int("max_requests", max).Msg("Request budget exhausted, stopping")
		s.queue.Close()
		return
	}

	if host := common.ExtractDomain(item.URL); host != "" {
		if err := s.limiter.WaitForHost(ctx, host); err != nil {
			return
		}
	}

	s.requestCount.Add(1)
	result, attempts := s.fetcher.FetchWithRetry(ctx, item.URL)
	record.AttemptCount += attempts
	record.LastAttempt = models.Now()
	record.FinalURL = result.FinalURL

	if !result.Success {
		if result.StatusCode == 404 {
			record.Status = models.PageStatusNotFound
			record.ErrorType = models.ErrorHTTP
			record.ErrorMessage = result.Error
			record.ProcessedAt = models.Now()
		} else {
			record.MarkFailure(ClassifyFetchError(result), result.Error)
		}
		s.persist(normalized, record)
		s.logger.Debug().
			Str("url", item.URL).
			Int("status_code", result.StatusCode).
			Str("error", result.Error).
			Msg("Fetch failed")
		return
	}

	if !result.IsHTML() {
		record.MarkSuccess("", "", 0)
		s.persist(normalized, record)
		s.logger.Trace().Str("url", item.URL).Str("content_type", result.ContentType).Msg("Skipping non-HTML body")
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.Body))
	if err != nil {
		record.MarkFailure(models.ErrorParse, err.Error())
		s.persist(normalized, record)
		return
	}

	priorHash := ""
	if s.opts.Incremental {
		priorHash, _ = s.store.GetPageContentHash(normalized)
	}

	extraction := s.processor.Process(doc, result.Body, result.FinalURL, priorHash)
	if !extraction.Success {
		record.MarkFailure(models.ErrorContentEmpty, extraction.Error)
		s.persist(normalized, record)
		s.logger.Debug().Str("url", item.URL).Str("error", extraction.Error).Msg("Content extraction failed")
	} else {
		record.MarkSuccess(extraction.ContentHash, extraction.LocalFilePath, extraction.TokenCount)
		s.persist(normalized, record)
		s.pagesProcessed.Add(1)
		s.logger.Info().
			Str("url", item.URL).
			Str("title", extraction.Title).
			Int("depth", item.Depth).
			Int("tokens", extraction.TokenCount).
			Msg("Page processed")
	}

	s.enqueueLinks(item, extraction.ExtractedLinks)
}

// claim secures exclusive responsibility for a URL. For fresh items this
// is the insert-if-absent store claim; requeued items already own a
// Pending or Failure record and reuse it.
func (s *Service) claim(normalized string, item models.WorkItem) *models.PageRecord {
	if item.Requeued {
		status, record, err := s.store.CheckPageStatus(normalized)
		if err != nil {
			s.fail(err)
			return nil
		}
		if record == nil {
			record = models.NewPageRecord(normalized, item.Depth)
		} else if status != models.PageStatusPending && status != models.PageStatusFailure {
			return nil // finished by an earlier run after the scan
		}
		return record
	}

	first, err := s.store.MarkPageVisited(normalized, item.Depth)
	if err != nil {
		s.fail(err)
		return nil
	}
	if !first {
		return nil
	}
	return models.NewPageRecord(normalized, item.Depth)
}

func (s *Service) persist(normalized string, record *models.PageRecord) {
	if err := s.store.UpdatePageStatus(normalized, record); err != nil {
		s.fail(err)
	}
}

// fail records a fatal store error and stops the crawl; the orchestrator
// surfaces it as the site's result.
func (s *Service) fail(err error) {
	s.fatalMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.fatalMu.Unlock()
	s.logger.Error().Err(err).Str("site", s.siteKey).Msg("Store failure, aborting crawl")
	s.queue.Close()
	s.shuttingDown.Store(true)
}

// enqueueLinks resolves harvested links against the page URL and pushes
// every in-scope survivor at depth+1. Parse failures, scope rejects, and
// disallowed paths drop silently.
func (s *Service) enqueueLinks(item models.WorkItem, links []string) {
	for _, link := range links {
		abs, err := common.ResolveURL(item.URL, link)
		if err != nil {
			continue
		}
		if !common.InScope(abs, s.site.AllowedDomain, s.site.AllowedPathPrefix) {
			continue
		}
		if !s.site.IsPathAllowed(common.ExtractPath(abs)) {
			continue
		}
		s.queue.Push(models.NewWorkItem(abs, item.Depth+1))
	}
}
