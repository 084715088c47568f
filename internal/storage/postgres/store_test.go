package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/croftbar/leadscan/internal/scan"
)

func TestCreateScanInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	sc := scan.Scan{
		ID:     "scan-1",
		Status: scan.StatusQueued,
		Definition: scan.Definition{
			State:      "CA",
			Cities:     []string{"Austin"},
			Categories: []string{"bakery"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectExec("INSERT INTO scans").
		WithArgs(
			"scan-1",
			"queued",
			"CA",
			[]byte(`["Austin"]`),
			[]byte(`["bakery"]`),
			(*float64)(nil),
			(*int)(nil),
			0, 0, 0,
			"",
			now,
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateScan(context.Background(), sc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScanNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM scans WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetScan(context.Background(), "missing")
	require.ErrorIs(t, err, scan.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScanStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scans SET status").
		WithArgs("scan-1", "failed", "provider quota exhausted").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateScanStatus(context.Background(), "scan-1", scan.StatusFailed, "provider quota exhausted")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScanStatusUnknownScan(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scans SET status").
		WithArgs("missing", "running", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateScanStatus(context.Background(), "missing", scan.StatusRunning, "")
	require.ErrorIs(t, err, scan.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScanCounters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE scans SET processed").
		WithArgs("scan-1", 10, 4, 6).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.UpdateScanCounters(context.Background(), "scan-1", scan.Counters{
		Processed:      10,
		WithWebsite:    4,
		WithoutWebsite: 6,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBusinessReturnsID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	b := scan.Business{
		PlaceID:         "place-1",
		Name:            "Blue Door Bakery",
		City:            "Austin",
		State:           "TX",
		Country:         "US",
		Website:         "https://bluedoor.example",
		BusinessStatus:  "OPERATIONAL",
		Categories:      []string{"bakery"},
		FirstSeenScanID: "scan-1",
		CreatedAt:       now,
	}

	mock.ExpectQuery("INSERT INTO businesses").
		WithArgs(
			"place-1",
			"Blue Door Bakery",
			"", "Austin", "TX", "US",
			(*float64)(nil), (*float64)(nil),
			"",
			"https://bluedoor.example",
			(*float64)(nil), (*int)(nil),
			"OPERATIONAL",
			[]byte(`["bakery"]`),
			"scan-1",
			now,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.UpsertBusiness(context.Background(), b)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertResultIgnoresConflict(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO scan_results").
		WithArgs("scan-1", int64(42), false, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.InsertResult(context.Background(), scan.Result{
		ScanID:     "scan-1",
		BusinessID: 42,
		HadWebsite: false,
		CreatedAt:  now,
	})
	require.NoError(t, err, "conflict-skipped insert is not an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasResult(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("scan-1", int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.HasResult(context.Background(), "scan-1", 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}
