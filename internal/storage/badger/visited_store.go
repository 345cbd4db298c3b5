package badger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrawl/internal/common"
	"github.com/ternarybob/scrawl/internal/interfaces"
	"github.com/ternarybob/scrawl/internal/models"
)

// Key prefixes for the two record namespaces.
const (
	pagePrefix  = "p:"
	imagePrefix = "i:"
)

// VisitedStore persists page and image records for one site, keyed by
// prefix plus md5 hex of the normalized URL. It is the dedup and resume
// primitive for the crawl.
type VisitedStore struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
	closed bool
}

// NewVisitedStore opens the per-site store rooted at
// <stateDir>/<siteDir>. With resume=false any previous state for the
// site is destroyed first.
func NewVisitedStore(logger arbor.ILogger, stateDir, siteDir string, resume bool) (*VisitedStore, error) {
	path := filepath.Join(stateDir, siteDir)
	db, err := NewBadgerDB(logger, path, !resume)
	if err != nil {
		return nil, err
	}
	return &VisitedStore{db: db, logger: logger}, nil
}

func pageKey(normalizedURL string) []byte {
	return []byte(pagePrefix + common.URLHash(normalizedURL))
}

func imageKey(normalizedURL string) []byte {
	return []byte(imagePrefix + common.URLHash(normalizedURL))
}

func (s *VisitedStore) guard() error {
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}

// MarkPageVisited claims a URL: writes a Pending record and returns true
// when none exists, otherwise leaves the record alone and returns false.
func (s *VisitedStore) MarkPageVisited(normalizedURL string, depth int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return false, err
	}

	key := pageKey(normalizedURL)
	claimed := false

	err := s.db.Badger().Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already claimed
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record := models.NewPageRecord(normalizedURL, depth)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		claimed = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim page %s: %w", normalizedURL, err)
	}
	return claimed, nil
}

// CheckPageStatus returns the stored status and record for a URL.
// Missing records yield (Unknown, nil) without error.
func (s *VisitedStore) CheckPageStatus(normalizedURL string) (models.PageStatus, *models.PageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return models.PageStatusUnknown, nil, err
	}

	var record *models.PageRecord
	err := s.db.Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(normalizedURL))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r models.PageRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			record = &r
			return nil
		})
	})
	if err != nil {
		return models.PageStatusUnknown, nil, fmt.Errorf("failed to read page %s: %w", normalizedURL, err)
	}
	if record == nil {
		return models.PageStatusUnknown, nil, nil
	}
	return record.Status, record, nil
}

// UpdatePageStatus overwrites the record for a URL.
func (s *VisitedStore) UpdatePageStatus(normalizedURL string, record *models.PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize page record: %w", err)
	}
	err = s.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Set(pageKey(normalizedURL), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write page %s: %w", normalizedURL, err)
	}
	return nil
}

// GetPageContentHash returns the stored content hash, or "" when the
// record is missing or has no hash. Used by incremental re-crawls.
func (s *VisitedStore) GetPageContentHash(normalizedURL string) (string, error) {
	_, record, err := s.CheckPageStatus(normalizedURL)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", nil
	}
	return record.ContentHash, nil
}

// MarkImageVisited mirrors MarkPageVisited for image records.
func (s *VisitedStore) MarkImageVisited(normalizedURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return false, err
	}

	key := imageKey(normalizedURL)
	claimed := false

	err := s.db.Badger().Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		record := models.NewImageRecord(normalizedURL, "", "")
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		claimed = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("failed to claim image %s: %w", normalizedURL, err)
	}
	return claimed, nil
}

// CheckImageStatus returns the stored status and record for an image URL.
func (s *VisitedStore) CheckImageStatus(normalizedURL string) (models.ImageStatus, *models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return models.ImageStatusUnknown, nil, err
	}

	var record *models.ImageRecord
	err := s.db.Badger().View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(normalizedURL))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r models.ImageRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			record = &r
			return nil
		})
	})
	if err != nil {
		return models.ImageStatusUnknown, nil, fmt.Errorf("failed to read image %s: %w", normalizedURL, err)
	}
	if record == nil {
		return models.ImageStatusUnknown, nil, nil
	}
	return record.Status, record, nil
}

// UpdateImageStatus overwrites the record for an image URL.
func (s *VisitedStore) UpdateImageStatus(normalizedURL string, record *models.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize image record: %w", err)
	}
	err = s.db.Badger().Update(func(txn *badger.Txn) error {
		return txn.Set(imageKey(normalizedURL), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write image %s: %w", normalizedURL, err)
	}
	return nil
}

// GetVisitedCount counts page records.
func (s *VisitedStore) GetVisitedCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.Badger().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count visited pages: %w", err)
	}
	return count, nil
}

// RequeueIncomplete scans page records and re-enqueues every Pending or
// Failure record with a non-empty normalized URL. Returns the number of
// items enqueued. Used at resume.
func (s *VisitedStore) RequeueIncomplete(enqueue func(item models.WorkItem)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return 0, err
	}

	requeued := 0
	err := s.db.Badger().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pagePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record models.PageRecord
				if err := json.Unmarshal(val, &record); err != nil {
					// Corrupt record: skip rather than abort the resume
					s.logger.Warn().Str("key", string(it.Item().Key())).Msg("Skipping unreadable page record")
					return nil
				}
				if record.NormalizedURL == "" {
					return nil
				}
				if record.Status == models.PageStatusPending || record.Status == models.PageStatusFailure {
					enqueue(models.WorkItem{
						URL:           record.NormalizedURL,
						NormalizedURL: record.NormalizedURL,
						Depth:         record.Depth,
						Priority:      record.Depth,
						DiscoveredAt:  models.Now(),
						Requeued:      true,
					})
					requeued++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return requeued, fmt.Errorf("failed to scan for incomplete pages: %w", err)
	}
	return requeued, nil
}

// WriteVisitedLog dumps every record as a key\tvalue line in key order.
func (s *VisitedStore) WriteVisitedLog(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create visited log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	err = s.db.Badger().View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				_, werr := fmt.Fprintf(w, "%s\t%s\n", item.Key(), val)
				return werr
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write visited log: %w", err)
	}
	return w.Flush()
}

// Close closes the store. Idempotent; later operations fail.
func (s *VisitedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
