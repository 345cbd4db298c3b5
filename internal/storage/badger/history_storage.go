package badger

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/scrawl/internal/interfaces"
	"github.com/ternarybob/scrawl/internal/models"
)

// HistoryStorage keeps crawl run summaries in a badgerhold store shared
// across sites, so past runs stay queryable after the crawl.
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage opens (or creates) the history database under
// <stateDir>/history.
func NewHistoryStorage(logger arbor.ILogger, stateDir string) (interfaces.HistoryStore, error) {
	db, err := NewBadgerDB(logger, filepath.Join(stateDir, "history"), false)
	if err != nil {
		return nil, err
	}
	return &HistoryStorage{db: db, logger: logger}, nil
}

// SaveRun inserts or updates a run summary.
func (h *HistoryStorage) SaveRun(run *models.CrawlRun) error {
	if err := h.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}
	return nil
}

// GetRun fetches a run summary by ID.
func (h *HistoryStorage) GetRun(id string) (*models.CrawlRun, error) {
	var run models.CrawlRun
	err := h.db.Store().Get(id, &run)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}
	return &run, nil
}

// ListRuns returns run summaries for a site, newest first. An empty
// siteKey lists every run.
func (h *HistoryStorage) ListRuns(siteKey string) ([]models.CrawlRun, error) {
	var runs []models.CrawlRun
	var query *badgerhold.Query
	if siteKey != "" {
		query = badgerhold.Where("SiteKey").Eq(siteKey)
	}
	if err := h.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt.Time)
	})
	return runs, nil
}

// Close closes the history database.
func (h *HistoryStorage) Close() error {
	return h.db.Close()
}
