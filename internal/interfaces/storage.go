package interfaces

import (
	"errors"

	"github.com/ternarybob/scrawl/internal/models"
)

// ErrStoreClosed is returned by store operations after Close.
var ErrStoreClosed = errors.New("visited store is closed")

// ErrRecordNotFound is returned when a page or image record is absent.
var ErrRecordNotFound = errors.New("record not found")

// VisitedStore is the persistent crawl state for one site: page and
// image records keyed by hash of the normalized URL, plus the admin
// surface used for resume and audit. Implementations are safe for
// concurrent use by crawl workers.
type VisitedStore interface {
	// MarkPageVisited atomically claims a URL: when no record exists, a
	// Pending record is written and true is returned. An existing record
	// is left untouched and false is returned.
	MarkPageVisited(normalizedURL string, depth int) (bool, error)
	CheckPageStatus(normalizedURL string) (models.PageStatus, *models.PageRecord, error)
	UpdatePageStatus(normalizedURL string, record *models.PageRecord) error
	GetPageContentHash(normalizedURL string) (string, error)

	MarkImageVisited(normalizedURL string) (bool, error)
	CheckImageStatus(normalizedURL string) (models.ImageStatus, *models.ImageRecord, error)
	UpdateImageStatus(normalizedURL string, record *models.ImageRecord) error

	GetVisitedCount() (int, error)
	RequeueIncomplete(enqueue func(item models.WorkItem)) (int, error)
	WriteVisitedLog(path string) error
	Close() error
}

// HistoryStore persists crawl run summaries across invocations.
type HistoryStore interface {
	SaveRun(run *models.CrawlRun) error
	GetRun(id string) (*models.CrawlRun, error)
	ListRuns(siteKey string) ([]models.CrawlRun, error)
	Close() error
}
