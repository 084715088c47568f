// Package memory provides an in-memory scan.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/croftbar/leadscan/internal/scan"
)

type resultKey struct {
	scanID     string
	businessID int64
}

// Store keeps all rows in process memory. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	scans      map[string]scan.Scan
	businesses map[string]scan.Business // keyed by place id
	nextBizID  int64
	results    map[resultKey]scan.Result
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		scans:      make(map[string]scan.Scan),
		businesses: make(map[string]scan.Business),
		results:    make(map[resultKey]scan.Result),
	}
}

// CreateScan stores a new scan record.
func (s *Store) CreateScan(_ context.Context, sc scan.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scans[sc.ID]; exists {
		return fmt.Errorf("scan %s already exists", sc.ID)
	}
	s.scans[sc.ID] = sc
	return nil
}

// GetScan fetches a scan by id.
func (s *Store) GetScan(_ context.Context, scanID string) (scan.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return scan.Scan{}, fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	return sc, nil
}

// ListScans returns scans ordered newest first.
func (s *Store) ListScans(_ context.Context, limit, offset int) ([]scan.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]scan.Scan, 0, len(s.scans))
	for _, sc := range s.scans {
		all = append(all, sc)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []scan.Scan{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// UpdateScanStatus sets the status and error message of a scan.
func (s *Store) UpdateScanStatus(_ context.Context, scanID string, status scan.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	sc.Status = status
	sc.ErrorMessage = errMsg
	sc.UpdatedAt = time.Now().UTC()
	s.scans[scanID] = sc
	return nil
}

// UpdateScanCounters replaces the aggregate counters of a scan.
func (s *Store) UpdateScanCounters(_ context.Context, scanID string, counters scan.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scans[scanID]
	if !ok {
		return fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	sc.Counters = counters
	sc.UpdatedAt = time.Now().UTC()
	s.scans[scanID] = sc
	return nil
}

// UpsertBusiness creates the row for the place id or overwrites its
// mutable fields, preserving id, first-seen scan, and creation time.
func (s *Store) UpsertBusiness(_ context.Context, b scan.Business) (int64, error) {
	if b.PlaceID == "" {
		return 0, fmt.Errorf("place id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.businesses[b.PlaceID]; ok {
		b.ID = existing.ID
		b.FirstSeenScanID = existing.FirstSeenScanID
		b.CreatedAt = existing.CreatedAt
		s.businesses[b.PlaceID] = b
		return existing.ID, nil
	}

	s.nextBizID++
	b.ID = s.nextBizID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.businesses[b.PlaceID] = b
	return b.ID, nil
}

// HasResult reports whether a (scan, business) association exists.
func (s *Store) HasResult(_ context.Context, scanID string, businessID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.results[resultKey{scanID: scanID, businessID: businessID}]
	return ok, nil
}

// InsertResult records a (scan, business) association. Inserting the
// same pair twice is a no-op, keeping the association unique.
func (s *Store) InsertResult(_ context.Context, res scan.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{scanID: res.ScanID, businessID: res.BusinessID}
	if _, ok := s.results[key]; ok {
		return nil
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	s.results[key] = res
	return nil
}

// ListResults returns the businesses a scan observed, optionally only
// those that had no website at scan time.
func (s *Store) ListResults(_ context.Context, scanID string, noWebsiteOnly bool) ([]scan.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.scans[scanID]; !ok {
		return nil, fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}

	byID := make(map[int64]scan.Business, len(s.businesses))
	for _, b := range s.businesses {
		byID[b.ID] = b
	}

	var out []scan.Business
	for key, res := range s.results {
		if key.scanID != scanID {
			continue
		}
		if noWebsiteOnly && res.HadWebsite {
			continue
		}
		if b, ok := byID[key.businessID]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// BusinessCount reports the number of distinct stored businesses.
// Exposed for tests asserting upsert idempotency.
func (s *Store) BusinessCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.businesses)
}

// ResultCount reports the number of stored scan results for a scan.
func (s *Store) ResultCount(scanID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.results {
		if key.scanID == scanID {
			n++
		}
	}
	return n
}
