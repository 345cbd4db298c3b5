package crawler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/scrawl/internal/models"
)

// memStore is an in-memory VisitedStore for pipeline tests.
type memStore struct {
	mu     sync.Mutex
	pages  map[string]*models.PageRecord
	images map[string]*models.ImageRecord
}

func newMemStore() *memStore {
	return &memStore{
		pages:  make(map[string]*models.PageRecord),
		images: make(map[string]*models.ImageRecord),
	}
}

func (m *memStore) MarkPageVisited(normalizedURL string, depth int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[normalizedURL]; ok {
		return false, nil
	}
	m.pages[normalizedURL] = models.NewPageRecord(normalizedURL, depth)
	return true, nil
}

func (m *memStore) CheckPageStatus(normalizedURL string) (models.PageStatus, *models.PageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.pages[normalizedURL]
	if !ok {
		return models.PageStatusUnknown, nil, nil
	}
	copied := *record
	return record.Status, &copied, nil
}

func (m *memStore) UpdatePageStatus(normalizedURL string, record *models.PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.pages[normalizedURL] = &copied
	return nil
}

func (m *memStore) GetPageContentHash(normalizedURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.pages[normalizedURL]; ok {
		return record.ContentHash, nil
	}
	return "", nil
}

func (m *memStore) MarkImageVisited(normalizedURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[normalizedURL]; ok {
		return false, nil
	}
	m.images[normalizedURL] = models.NewImageRecord(normalizedURL, "", "")
	return true, nil
}

func (m *memStore) CheckImageStatus(normalizedURL string) (models.ImageStatus, *models.ImageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.images[normalizedURL]
	if !ok {
		return models.ImageStatusUnknown, nil, nil
	}
	copied := *record
	return record.Status, &copied, nil
}

func (m *memStore) UpdateImageStatus(normalizedURL string, record *models.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.images[normalizedURL] = &copied
	return nil
}

func (m *memStore) GetVisitedCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages), nil
}

func (m *memStore) RequeueIncomplete(enqueue func(item models.WorkItem)) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	requeued := 0
	for url, record := range m.pages {
		if record.Status == models.PageStatusPending || record.Status == models.PageStatusFailure {
			enqueue(models.WorkItem{
				URL:           url,
				NormalizedURL: url,
				Depth:         record.Depth,
				Priority:      record.Depth,
				DiscoveredAt:  models.Now(),
				Requeued:      true,
			})
			requeued++
		}
	}
	return requeued, nil
}

func (m *memStore) WriteVisitedLog(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, 0, len(m.pages))
	for url := range m.pages {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	var out string
	for _, url := range urls {
		out += fmt.Sprintf("%s\t%s\n", url, m.pages[url].Status)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(out), 0644)
}

func (m *memStore) Close() error { return nil }

// statusCounts summarizes page records by status for assertions.
func (m *memStore) statusCounts() map[models.PageStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.PageStatus]int)
	for _, record := range m.pages {
		counts[record.Status]++
	}
	return counts
}

// pageByURL returns a copy of the record for a normalized URL.
func (m *memStore) pageByURL(normalizedURL string) *models.PageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.pages[normalizedURL]; ok {
		copied := *record
		return &copied
	}
	return nil
}
