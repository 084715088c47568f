package scan

import (
	"context"
	"time"
)

// Store persists scans, businesses, and scan results. Each call is
// durable once it returns; the core never assumes atomicity across a
// whole scan.
type Store interface {
	CreateScan(ctx context.Context, sc Scan) error
	GetScan(ctx context.Context, scanID string) (Scan, error)
	ListScans(ctx context.Context, limit, offset int) ([]Scan, error)
	UpdateScanStatus(ctx context.Context, scanID string, status Status, errMsg string) error
	UpdateScanCounters(ctx context.Context, scanID string, counters Counters) error

	// UpsertBusiness creates the row for the place id or overwrites all
	// mutable fields of the existing one, returning the row id.
	UpsertBusiness(ctx context.Context, b Business) (int64, error)

	// HasResult reports whether a (scan, business) association exists.
	HasResult(ctx context.Context, scanID string, businessID int64) (bool, error)
	InsertResult(ctx context.Context, res Result) error
	ListResults(ctx context.Context, scanID string, noWebsiteOnly bool) ([]Business, error)
}

// SearchProvider abstracts the external place-search API.
type SearchProvider interface {
	// SearchByCity runs a paginated text search for a category in a
	// city and returns at most maxResults candidate summaries.
	SearchByCity(ctx context.Context, city, state, category string, maxResults int) ([]PlaceSummary, error)

	// GetDetails fetches the full detail record for one place id.
	GetDetails(ctx context.Context, placeID string) (PlaceDetails, error)
}

// Queue provides enqueue/dequeue semantics for scan ids. Enqueue never
// blocks on execution; Dequeue blocks until work or context end.
type Queue interface {
	Enqueue(ctx context.Context, scanID string) error
	Dequeue(ctx context.Context) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
