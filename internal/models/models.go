package models

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is ISO-8601 with millisecond precision, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp wraps time.Time with millisecond ISO-8601 JSON serialization.
// The zero value serializes as an empty string and parses back to zero.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{time.Now().UTC()}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.UTC().Format(timestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		// Tolerate timestamps written with other sub-second precision
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// PageStatus is the lifecycle state of a crawled page record.
type PageStatus string

const (
	PageStatusPending          PageStatus = "pending"
	PageStatusInProgress       PageStatus = "in_progress"
	PageStatusSuccess          PageStatus = "success"
	PageStatusFailure          PageStatus = "failure"
	PageStatusNotFound         PageStatus = "not_found"
	PageStatusOutOfScope       PageStatus = "out_of_scope"
	PageStatusRobotsDisallowed PageStatus = "robots_disallowed"
	PageStatusUnknown          PageStatus = "unknown"
)

// ParsePageStatus maps a serialized token back to a PageStatus.
// Unrecognized tokens map to PageStatusUnknown.
func ParsePageStatus(s string) PageStatus {
	switch PageStatus(s) {
	case PageStatusPending, PageStatusInProgress, PageStatusSuccess,
		PageStatusFailure, PageStatusNotFound, PageStatusOutOfScope,
		PageStatusRobotsDisallowed:
		return PageStatus(s)
	default:
		return PageStatusUnknown
	}
}

// IsTerminal reports whether the status ends the page lifecycle.
func (s PageStatus) IsTerminal() bool {
	switch s {
	case PageStatusSuccess, PageStatusFailure, PageStatusNotFound,
		PageStatusOutOfScope, PageStatusRobotsDisallowed:
		return true
	}
	return false
}

// ImageStatus is the lifecycle state of an image record.
type ImageStatus string

const (
	ImageStatusPending       ImageStatus = "pending"
	ImageStatusInProgress    ImageStatus = "in_progress"
	ImageStatusSuccess       ImageStatus = "success"
	ImageStatusFailure       ImageStatus = "failure"
	ImageStatusSkipped       ImageStatus = "skipped"
	ImageStatusTooLarge      ImageStatus = "too_large"
	ImageStatusInvalidDomain ImageStatus = "invalid_domain"
	ImageStatusUnknown       ImageStatus = "unknown"
)

// ParseImageStatus maps a serialized token back to an ImageStatus.
func ParseImageStatus(s string) ImageStatus {
	switch ImageStatus(s) {
	case ImageStatusPending, ImageStatusInProgress, ImageStatusSuccess,
		ImageStatusFailure, ImageStatusSkipped, ImageStatusTooLarge,
		ImageStatusInvalidDomain:
		return ImageStatus(s)
	default:
		return ImageStatusUnknown
	}
}

// ErrorType classifies why a fetch or processing step failed.
type ErrorType string

const (
	ErrorNone               ErrorType = "none"
	ErrorNetwork            ErrorType = "network_error"
	ErrorTimeout            ErrorType = "timeout_error"
	ErrorHTTP               ErrorType = "http_error"
	ErrorParse              ErrorType = "parse_error"
	ErrorSelectorNotFound   ErrorType = "selector_not_found"
	ErrorContentEmpty       ErrorType = "content_empty"
	ErrorIO                 ErrorType = "io_error"
	ErrorRateLimited        ErrorType = "rate_limited"
	ErrorRobotsDisallowed   ErrorType = "robots_disallowed"
	ErrorOutOfScope         ErrorType = "out_of_scope"
	ErrorMaxRetriesExceeded ErrorType = "max_retries_exceeded"
	ErrorUnknown            ErrorType = "unknown"
)

// ParseErrorType maps a serialized token back to an ErrorType.
func ParseErrorType(s string) ErrorType {
	switch ErrorType(s) {
	case ErrorNone, ErrorNetwork, ErrorTimeout, ErrorHTTP, ErrorParse,
		ErrorSelectorNotFound, ErrorContentEmpty, ErrorIO, ErrorRateLimited,
		ErrorRobotsDisallowed, ErrorOutOfScope, ErrorMaxRetriesExceeded:
		return ErrorType(s)
	default:
		return ErrorUnknown
	}
}

// WorkItem is a unit of crawl work. Priority defaults to depth, which
// yields breadth-first ordering; lower values are more urgent.
type WorkItem struct {
	URL           string    `json:"url"`
	NormalizedURL string    `json:"normalized_url,omitempty"`
	Depth         int       `json:"depth"`
	Priority      int       `json:"priority"`
	DiscoveredAt  Timestamp `json:"discovered_at"`
	Referrer      string    `json:"referrer,omitempty"`

	// Requeued marks an item restored from the visited store at resume.
	// Its record already exists, so the worker skips the insert claim.
	Requeued bool `json:"requeued,omitempty"`
}

// NewWorkItem builds a work item at the given depth with BFS priority.
func NewWorkItem(url string, depth int) WorkItem {
	return WorkItem{
		URL:          url,
		Depth:        depth,
		Priority:     depth,
		DiscoveredAt: Now(),
	}
}

// PageRecord is the persisted state of one normalized URL.
type PageRecord struct {
	Status        PageStatus `json:"status"`
	ErrorType     ErrorType  `json:"error_type"`
	ErrorMessage  string     `json:"error_message"`
	CreatedAt     Timestamp  `json:"created_at"`
	ProcessedAt   Timestamp  `json:"processed_at"`
	LastAttempt   Timestamp  `json:"last_attempt"`
	Depth         int        `json:"depth"`
	AttemptCount  int        `json:"attempt_count"`
	ContentHash   string     `json:"content_hash"`
	NormalizedURL string     `json:"normalized_url"`
	FinalURL      string     `json:"final_url"`
	LocalFilePath string     `json:"local_file_path"`
	TokenCount    int        `json:"token_count"`
}

// NewPageRecord creates a Pending record for a freshly claimed URL.
func NewPageRecord(normalizedURL string, depth int) *PageRecord {
	return &PageRecord{
		Status:        PageStatusPending,
		ErrorType:     ErrorNone,
		CreatedAt:     Now(),
		Depth:         depth,
		NormalizedURL: normalizedURL,
	}
}

// MarkInProgress records a worker pickup.
func (r *PageRecord) MarkInProgress() {
	r.Status = PageStatusInProgress
	r.LastAttempt = Now()
	r.AttemptCount++
}

// MarkSuccess finalizes the record after a page was processed.
func (r *PageRecord) MarkSuccess(contentHash, localFilePath string, tokenCount int) {
	r.Status = PageStatusSuccess
	r.ErrorType = ErrorNone
	r.ErrorMessage = ""
	r.ContentHash = contentHash
	r.LocalFilePath = localFilePath
	r.TokenCount = tokenCount
	r.ProcessedAt = Now()
}

// MarkFailure finalizes the record with an error classification.
func (r *PageRecord) MarkFailure(errType ErrorType, message string) {
	r.Status = PageStatusFailure
	r.ErrorType = errType
	r.ErrorMessage = message
	r.ProcessedAt = Now()
}

// ImageRecord is the persisted state of one discovered image URL.
// Downloads may be deferred; the record exists for dedup and audit.
type ImageRecord struct {
	Status       ImageStatus `json:"status"`
	ErrorType    ErrorType   `json:"error_type"`
	ErrorMessage string      `json:"error_message"`
	CreatedAt    Timestamp   `json:"created_at"`
	ProcessedAt  Timestamp   `json:"processed_at"`
	LastAttempt  Timestamp   `json:"last_attempt"`
	AttemptCount int         `json:"attempt_count"`
	OriginalURL  string      `json:"original_url"`
	LocalPath    string      `json:"local_path"`
	Caption      string      `json:"caption"`
	FileSize     int64       `json:"file_size"`
	ContentType  string      `json:"content_type"`
}

// NewImageRecord creates a Pending record for a discovered image.
func NewImageRecord(originalURL, localPath, caption string) *ImageRecord {
	return &ImageRecord{
		Status:      ImageStatusPending,
		ErrorType:   ErrorNone,
		CreatedAt:   Now(),
		OriginalURL: originalURL,
		LocalPath:   localPath,
		Caption:     caption,
	}
}

// FetchResult is the transient outcome of one HTTP fetch (possibly retried).
// StatusCode 0 means the request never produced an HTTP response.
type FetchResult struct {
	StatusCode     int
	Body           string
	FinalURL       string
	ContentType    string
	Error          string
	ResponseTimeMs int64
	Success        bool
	IsRedirect     bool
}

// IsHTML reports whether the response body is an HTML document.
func (f *FetchResult) IsHTML() bool {
	return strings.Contains(strings.ToLower(f.ContentType), "text/html")
}

// IsRetryable reports whether another attempt could succeed: transport
// failures, 429, and 5xx qualify.
func (f *FetchResult) IsRetryable() bool {
	if f.StatusCode == 0 || f.StatusCode == 429 {
		return true
	}
	return f.StatusCode >= 500 && f.StatusCode < 600
}

// ImageData describes an image discovered inside a page's content region.
type ImageData struct {
	OriginalURL string
	LocalPath   string
	Caption     string
}

// ExtractionResult is the transient output of the content pipeline.
type ExtractionResult struct {
	Title          string
	Markdown       string
	ExtractedLinks []string
	Images         []ImageData
	ContentHash    string
	TokenCount     int
	LocalFilePath  string
	Success        bool
	Error          string
}

// SiteResult summarizes one site's crawl for the orchestrator.
type SiteResult struct {
	SiteKey        string
	Success        bool
	Error          string
	PagesProcessed int
	Duration       time.Duration
}

// CrawlRun is the persisted summary of one crawl invocation for a site.
type CrawlRun struct {
	ID             string    `badgerhold:"key" json:"id"`
	SiteKey        string    `json:"site_key"`
	StartedAt      Timestamp `json:"started_at"`
	FinishedAt     Timestamp `json:"finished_at"`
	PagesProcessed int       `json:"pages_processed"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	Sitemaps       []string  `json:"sitemaps,omitempty"`
	Resumed        bool      `json:"resumed"`
	Incremental    bool      `json:"incremental"`
}

// EstimateTokens approximates token count as one token per four
// characters, rounded up. Empty text counts zero.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return len(text)/4 + 1
}
