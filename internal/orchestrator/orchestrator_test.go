package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/croftbar/leadscan/internal/scan"
	storememory "github.com/croftbar/leadscan/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type stubProvider struct {
	summaries  map[string][]scan.PlaceSummary
	searchErrs map[string]error
	details    map[string]scan.PlaceDetails
	detailErrs map[string]error
	queries    []string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		summaries:  make(map[string][]scan.PlaceSummary),
		searchErrs: make(map[string]error),
		details:    make(map[string]scan.PlaceDetails),
		detailErrs: make(map[string]error),
	}
}

func pairKey(city, category string) string { return city + "/" + category }

func (p *stubProvider) SearchByCity(_ context.Context, city, _, category string, _ int) ([]scan.PlaceSummary, error) {
	key := pairKey(city, category)
	p.queries = append(p.queries, key)
	if err, ok := p.searchErrs[key]; ok {
		return nil, err
	}
	return p.summaries[key], nil
}

func (p *stubProvider) GetDetails(_ context.Context, placeID string) (scan.PlaceDetails, error) {
	if err, ok := p.detailErrs[placeID]; ok {
		return scan.PlaceDetails{}, err
	}
	d, ok := p.details[placeID]
	if !ok {
		return scan.PlaceDetails{}, &scan.ProviderError{Status: "NOT_FOUND"}
	}
	return d, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func operationalDetails(placeID, website string) scan.PlaceDetails {
	return scan.PlaceDetails{
		PlaceID:        placeID,
		Name:           "Shop " + placeID,
		BusinessStatus: "OPERATIONAL",
		Website:        website,
		Rating:         floatPtr(4.2),
		ReviewCount:    intPtr(80),
	}
}

func newTestScan(cities, categories []string) scan.Scan {
	return scan.Scan{
		ID:     "scan-1",
		Status: scan.StatusRunning,
		Definition: scan.Definition{
			State:      "CA",
			Cities:     cities,
			Categories: categories,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func newOrchestrator(t *testing.T, store scan.Store, provider scan.SearchProvider) *Orchestrator {
	t.Helper()
	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	return New(store, provider, clock, Config{MaxResultsPerSearch: 60, FlushEvery: 10}, nil)
}

func TestExecuteEndToEnd(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{
		{PlaceID: "p-without"},
		{PlaceID: "p-with"},
	}
	provider.details["p-without"] = operationalDetails("p-without", "")
	provider.details["p-with"] = operationalDetails("p-with", "https://x.com")

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc))

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Counters.Processed)
	require.Equal(t, 1, got.Counters.WithoutWebsite)
	require.Equal(t, 1, got.Counters.WithWebsite)
	require.Equal(t, got.Counters.Processed, got.Counters.WithWebsite+got.Counters.WithoutWebsite)

	require.Equal(t, 2, store.BusinessCount())
	require.Equal(t, 2, store.ResultCount(sc.ID))

	missing, err := store.ListResults(context.Background(), sc.ID, true)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	require.Equal(t, "p-without", missing[0].PlaceID)
}

func TestExecuteWalksPairsInSuppliedOrder(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin", "Dallas"}, []string{"bakery", "florist"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc))

	require.Equal(t, []string{
		"Austin/bakery",
		"Austin/florist",
		"Dallas/bakery",
		"Dallas/florist",
	}, provider.queries)
}

func TestExecuteDeduplicatesWithinScan(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin"}, []string{"bakery", "cafe"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	// The same place surfaces under both categories.
	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{{PlaceID: "p-1"}}
	provider.summaries[pairKey("Austin", "cafe")] = []scan.PlaceSummary{{PlaceID: "p-1"}}
	provider.details["p-1"] = operationalDetails("p-1", "")

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc))

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.Processed, "repeat observation increments nothing")
	require.Equal(t, 1, store.BusinessCount())
	require.Equal(t, 1, store.ResultCount(sc.ID))
}

func TestExecuteUpsertsAcrossScans(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	ctx := context.Background()

	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{{PlaceID: "p-1"}}
	provider.details["p-1"] = operationalDetails("p-1", "")

	first := newTestScan([]string{"Austin"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(ctx, first))
	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(ctx, first))

	// Second scan sees the same place, now with a website. The entity
	// row is updated in place; the first scan's snapshot is untouched.
	provider.details["p-1"] = operationalDetails("p-1", "https://new.example")
	second := newTestScan([]string{"Austin"}, []string{"bakery"})
	second.ID = "scan-2"
	require.NoError(t, store.CreateScan(ctx, second))
	require.NoError(t, o.Execute(ctx, second))

	require.Equal(t, 1, store.BusinessCount(), "one row per place id across scans")

	firstMissing, err := store.ListResults(ctx, first.ID, true)
	require.NoError(t, err)
	require.Len(t, firstMissing, 1, "first scan still records the no-website observation")

	secondMissing, err := store.ListResults(ctx, "scan-2", true)
	require.NoError(t, err)
	require.Empty(t, secondMissing)
}

func TestExecuteSkipsPairOnProviderError(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin", "Dallas"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	provider.searchErrs[pairKey("Austin", "bakery")] = &scan.ProviderError{Status: "OVER_QUERY_LIMIT"}
	provider.summaries[pairKey("Dallas", "bakery")] = []scan.PlaceSummary{{PlaceID: "p-1"}}
	provider.details["p-1"] = operationalDetails("p-1", "")

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc), "a provider error never aborts the scan")

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.Processed)
}

func TestExecuteSkipsCandidateOnDetailError(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{
		{PlaceID: "p-broken"},
		{PlaceID: "p-ok"},
	}
	provider.detailErrs["p-broken"] = &scan.ProviderError{Status: "INVALID_REQUEST"}
	provider.details["p-ok"] = operationalDetails("p-ok", "")

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc))

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.Processed)
}

func TestExecuteExcludesFilteredCandidates(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin"}, []string{"bakery"})
	sc.Definition.MinRating = floatPtr(4.0)
	require.NoError(t, store.CreateScan(context.Background(), sc))

	lowRated := operationalDetails("p-low", "")
	lowRated.Rating = floatPtr(3.9)
	closed := operationalDetails("p-closed", "")
	closed.BusinessStatus = "CLOSED_TEMPORARILY"

	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{
		{PlaceID: "p-low"},
		{PlaceID: "p-closed"},
		{PlaceID: "p-keep"},
	}
	provider.details["p-low"] = lowRated
	provider.details["p-closed"] = closed
	provider.details["p-keep"] = operationalDetails("p-keep", "")

	o := newOrchestrator(t, store, provider)
	require.NoError(t, o.Execute(context.Background(), sc))

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.Processed, "filtered candidates touch no counters")
	require.Equal(t, 1, store.BusinessCount())
}

func TestExecuteFatalErrorPreservesPartialProgress(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin", "Dallas"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	provider.summaries[pairKey("Austin", "bakery")] = []scan.PlaceSummary{
		{PlaceID: "p-1"},
		{PlaceID: "p-2"},
	}
	provider.details["p-1"] = operationalDetails("p-1", "")
	provider.details["p-2"] = operationalDetails("p-2", "https://x.com")
	// Not a ProviderError: escapes the per-pair handling.
	provider.searchErrs[pairKey("Dallas", "bakery")] = errors.New("provider client wedged")

	o := newOrchestrator(t, store, provider)
	err := o.Execute(context.Background(), sc)
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider client wedged")

	got, getErr := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, getErr)
	require.Equal(t, 2, got.Counters.Processed, "first pair's progress survives the failure")
	require.Equal(t, 1, got.Counters.WithWebsite)
	require.Equal(t, 1, got.Counters.WithoutWebsite)
}

func TestExecuteFlushesPeriodically(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	provider := newStubProvider()
	sc := newTestScan([]string{"Austin"}, []string{"bakery"})
	require.NoError(t, store.CreateScan(context.Background(), sc))

	var summaries []scan.PlaceSummary
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("p-%d", i)
		summaries = append(summaries, scan.PlaceSummary{PlaceID: id})
		provider.details[id] = operationalDetails(id, "")
	}
	provider.summaries[pairKey("Austin", "bakery")] = summaries

	clock := &fixedClock{now: time.Unix(1700000000, 0).UTC()}
	o := New(store, provider, clock, Config{MaxResultsPerSearch: 60, FlushEvery: 3}, nil)
	require.NoError(t, o.Execute(context.Background(), sc))

	got, err := store.GetScan(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.Counters.Processed, "final flush covers the partial batch")
}
