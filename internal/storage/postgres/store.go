// Package postgres provides the Postgres-backed scan.Store.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/croftbar/leadscan/internal/scan"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists scans, businesses, and scan results in Postgres.
type Store struct {
	pool dbPool
}

// New creates a Store backed by a new pgx pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateScan inserts a new scan row.
func (s *Store) CreateScan(ctx context.Context, sc scan.Scan) error {
	cities, err := json.Marshal(sc.Definition.Cities)
	if err != nil {
		return fmt.Errorf("marshal cities: %w", err)
	}
	categories, err := json.Marshal(sc.Definition.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	const query = `
INSERT INTO scans (
	id, status, state, cities, categories, min_rating, min_reviews,
	processed, with_website, without_website, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = s.pool.Exec(ctx, query,
		sc.ID,
		string(sc.Status),
		sc.Definition.State,
		cities,
		categories,
		sc.Definition.MinRating,
		sc.Definition.MinReviews,
		sc.Counters.Processed,
		sc.Counters.WithWebsite,
		sc.Counters.WithoutWebsite,
		sc.ErrorMessage,
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

const scanColumns = `id, status, state, cities, categories, min_rating, min_reviews,
	processed, with_website, without_website, error_message, created_at, updated_at`

func scanRow(row pgx.Row) (scan.Scan, error) {
	var (
		sc         scan.Scan
		status     string
		cities     []byte
		categories []byte
	)
	err := row.Scan(
		&sc.ID,
		&status,
		&sc.Definition.State,
		&cities,
		&categories,
		&sc.Definition.MinRating,
		&sc.Definition.MinReviews,
		&sc.Counters.Processed,
		&sc.Counters.WithWebsite,
		&sc.Counters.WithoutWebsite,
		&sc.ErrorMessage,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		return scan.Scan{}, err
	}
	sc.Status = scan.Status(status)
	if err := json.Unmarshal(cities, &sc.Definition.Cities); err != nil {
		return scan.Scan{}, fmt.Errorf("unmarshal cities: %w", err)
	}
	if err := json.Unmarshal(categories, &sc.Definition.Categories); err != nil {
		return scan.Scan{}, fmt.Errorf("unmarshal categories: %w", err)
	}
	return sc, nil
}

// GetScan fetches a scan by id.
func (s *Store) GetScan(ctx context.Context, scanID string) (scan.Scan, error) {
	query := fmt.Sprintf("SELECT %s FROM scans WHERE id = $1", scanColumns)
	sc, err := scanRow(s.pool.QueryRow(ctx, query, scanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scan.Scan{}, fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	if err != nil {
		return scan.Scan{}, fmt.Errorf("select scan: %w", err)
	}
	return sc, nil
}

// ListScans returns scans ordered newest first.
func (s *Store) ListScans(ctx context.Context, limit, offset int) ([]scan.Scan, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM scans ORDER BY created_at DESC LIMIT $1 OFFSET $2", scanColumns)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []scan.Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans rows: %w", err)
	}
	return out, nil
}

// UpdateScanStatus sets the status and error message of a scan.
func (s *Store) UpdateScanStatus(ctx context.Context, scanID string, status scan.Status, errMsg string) error {
	const query = `UPDATE scans SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, scanID, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update scan status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	return nil
}

// UpdateScanCounters replaces the aggregate counters of a scan.
func (s *Store) UpdateScanCounters(ctx context.Context, scanID string, counters scan.Counters) error {
	const query = `
UPDATE scans SET processed = $2, with_website = $3, without_website = $4, updated_at = now()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, scanID, counters.Processed, counters.WithWebsite, counters.WithoutWebsite)
	if err != nil {
		return fmt.Errorf("update scan counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan %s: %w", scanID, scan.ErrNotFound)
	}
	return nil
}

// UpsertBusiness creates the row for the place id or overwrites all
// mutable fields of the existing one, returning the row id. The first
// scan to see a place keeps the first_seen_scan_id credit.
func (s *Store) UpsertBusiness(ctx context.Context, b scan.Business) (int64, error) {
	if b.PlaceID == "" {
		return 0, fmt.Errorf("place id is required")
	}
	categories, err := json.Marshal(b.Categories)
	if err != nil {
		return 0, fmt.Errorf("marshal categories: %w", err)
	}
	const query = `
INSERT INTO businesses (
	place_id, name, formatted_address, city, state, country,
	latitude, longitude, phone, website, rating, user_ratings_total,
	business_status, categories, first_seen_scan_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (place_id) DO UPDATE SET
	name = EXCLUDED.name,
	formatted_address = EXCLUDED.formatted_address,
	city = EXCLUDED.city,
	state = EXCLUDED.state,
	country = EXCLUDED.country,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	phone = EXCLUDED.phone,
	website = EXCLUDED.website,
	rating = EXCLUDED.rating,
	user_ratings_total = EXCLUDED.user_ratings_total,
	business_status = EXCLUDED.business_status,
	categories = EXCLUDED.categories
RETURNING id`
	var id int64
	err = s.pool.QueryRow(ctx, query,
		b.PlaceID,
		b.Name,
		b.FormattedAddress,
		b.City,
		b.State,
		b.Country,
		b.Latitude,
		b.Longitude,
		b.Phone,
		b.Website,
		b.Rating,
		b.ReviewCount,
		b.BusinessStatus,
		categories,
		b.FirstSeenScanID,
		b.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert business: %w", err)
	}
	return id, nil
}

// HasResult reports whether a (scan, business) association exists.
func (s *Store) HasResult(ctx context.Context, scanID string, businessID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM scan_results WHERE scan_id = $1 AND business_id = $2)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, scanID, businessID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check scan result: %w", err)
	}
	return exists, nil
}

// InsertResult records a (scan, business) association. The primary key
// keeps the pair unique; re-inserting is a no-op so the original
// snapshot survives.
func (s *Store) InsertResult(ctx context.Context, res scan.Result) error {
	const query = `
INSERT INTO scan_results (scan_id, business_id, had_website, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (scan_id, business_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, res.ScanID, res.BusinessID, res.HadWebsite, res.CreatedAt); err != nil {
		return fmt.Errorf("insert scan result: %w", err)
	}
	return nil
}

// ListResults returns the businesses a scan observed, optionally only
// those without a website at scan time.
func (s *Store) ListResults(ctx context.Context, scanID string, noWebsiteOnly bool) ([]scan.Business, error) {
	query := `
SELECT b.id, b.place_id, b.name, b.formatted_address, b.city, b.state, b.country,
	b.latitude, b.longitude, b.phone, b.website, b.rating, b.user_ratings_total,
	b.business_status, b.categories, b.first_seen_scan_id, b.created_at
FROM businesses b
JOIN scan_results r ON r.business_id = b.id
WHERE r.scan_id = $1`
	if noWebsiteOnly {
		query += " AND r.had_website = FALSE"
	}
	query += " ORDER BY b.id"

	rows, err := s.pool.Query(ctx, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("list scan results: %w", err)
	}
	defer rows.Close()

	var out []scan.Business
	for rows.Next() {
		var (
			b          scan.Business
			categories []byte
			firstSeen  *string
		)
		err := rows.Scan(
			&b.ID,
			&b.PlaceID,
			&b.Name,
			&b.FormattedAddress,
			&b.City,
			&b.State,
			&b.Country,
			&b.Latitude,
			&b.Longitude,
			&b.Phone,
			&b.Website,
			&b.Rating,
			&b.ReviewCount,
			&b.BusinessStatus,
			&categories,
			&firstSeen,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan business row: %w", err)
		}
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &b.Categories); err != nil {
				return nil, fmt.Errorf("unmarshal categories: %w", err)
			}
		}
		if firstSeen != nil {
			b.FirstSeenScanID = *firstSeen
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scan results rows: %w", err)
	}
	return out, nil
}
