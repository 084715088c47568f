// Package orchestrator drives a single scan: it walks the city×category
// combinations, pulls candidates from the search provider, filters and
// upserts them, and keeps the scan's counters current in the store.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/croftbar/leadscan/internal/metrics"
	"github.com/croftbar/leadscan/internal/scan"
)

// Config controls Orchestrator behavior.
type Config struct {
	// MaxResultsPerSearch caps each text search.
	MaxResultsPerSearch int
	// FlushEvery sets how many newly processed places accumulate before
	// counters are persisted. Cadence only; final state is always flushed.
	FlushEvery int
}

// Orchestrator executes scans sequentially. It holds no per-scan state,
// so a single instance serves the whole worker loop.
type Orchestrator struct {
	store    scan.Store
	provider scan.SearchProvider
	clock    scan.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Orchestrator.
func New(store scan.Store, provider scan.SearchProvider, clock scan.Clock, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		provider: provider,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs the scan to completion or failure. Counters, businesses,
// and results are written as it proceeds, not atomically. Provider
// errors are contained to the pair or candidate that triggered them;
// anything else aborts the scan after a best-effort counter flush, so a
// failed scan keeps the progress collected up to that point.
func (o *Orchestrator) Execute(ctx context.Context, sc scan.Scan) error {
	filter := sc.Filter()
	var counters scan.Counters
	sinceFlush := 0

	flush := func() error {
		if err := o.store.UpdateScanCounters(ctx, sc.ID, counters); err != nil {
			return fmt.Errorf("persist counters: %w", err)
		}
		sinceFlush = 0
		return nil
	}

	// fail preserves partial progress before surfacing the fatal error.
	fail := func(err error) error {
		if flushErr := flush(); flushErr != nil {
			o.logger.Error("counter flush during failure",
				zap.String("scan_id", sc.ID), zap.Error(flushErr))
		}
		return err
	}

	for _, city := range sc.Definition.Cities {
		for _, category := range sc.Definition.Categories {
			o.logger.Info("scanning pair",
				zap.String("scan_id", sc.ID),
				zap.String("city", city),
				zap.String("category", category),
			)

			summaries, err := o.provider.SearchByCity(ctx, city, sc.Definition.State, category, o.cfg.MaxResultsPerSearch)
			if err != nil {
				if !scan.IsProviderError(err) {
					return fail(fmt.Errorf("search %s/%s: %w", city, category, err))
				}
				o.logger.Warn("search failed, skipping pair",
					zap.String("scan_id", sc.ID),
					zap.String("city", city),
					zap.String("category", category),
					zap.Error(err),
				)
				continue
			}

			for _, cand := range summaries {
				if cand.PlaceID == "" {
					continue
				}
				newlyProcessed, err := o.processCandidate(ctx, sc, filter, cand.PlaceID, &counters)
				if err != nil {
					return fail(err)
				}
				if !newlyProcessed {
					continue
				}
				sinceFlush++
				if sinceFlush >= o.cfg.FlushEvery {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	o.logger.Info("scan finished",
		zap.String("scan_id", sc.ID),
		zap.Int("processed", counters.Processed),
		zap.Int("without_website", counters.WithoutWebsite),
		zap.Int("with_website", counters.WithWebsite),
	)
	return nil
}

// processCandidate fetches details for one candidate and records it.
// It returns true when the candidate produced a new scan result.
// Provider errors and filter rejections are absorbed here; store errors
// propagate because a store that stops acknowledging writes leaves no
// sane way to continue.
func (o *Orchestrator) processCandidate(
	ctx context.Context,
	sc scan.Scan,
	filter scan.Filter,
	placeID string,
	counters *scan.Counters,
) (bool, error) {
	details, err := o.provider.GetDetails(ctx, placeID)
	if err != nil {
		if !scan.IsProviderError(err) {
			return false, fmt.Errorf("details %s: %w", placeID, err)
		}
		o.logger.Warn("detail fetch failed, skipping candidate",
			zap.String("scan_id", sc.ID),
			zap.String("place_id", placeID),
			zap.Error(err),
		)
		metrics.ObservePlaceSkipped("detail_error")
		return false, nil
	}

	if !filter.Accepts(details) {
		metrics.ObservePlaceSkipped("filtered")
		return false, nil
	}

	hadWebsite := scan.HasWebsite(details.Website)

	businessID, err := o.store.UpsertBusiness(ctx, businessFromDetails(details, sc.ID, o.clock))
	if err != nil {
		return false, fmt.Errorf("upsert business %s: %w", placeID, err)
	}

	exists, err := o.store.HasResult(ctx, sc.ID, businessID)
	if err != nil {
		return false, fmt.Errorf("check result %s: %w", placeID, err)
	}
	if exists {
		// Same place surfacing under another category of this scan.
		metrics.ObservePlaceSkipped("already_recorded")
		return false, nil
	}

	err = o.store.InsertResult(ctx, scan.Result{
		ScanID:     sc.ID,
		BusinessID: businessID,
		HadWebsite: hadWebsite,
		CreatedAt:  o.clock.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("insert result %s: %w", placeID, err)
	}

	counters.Processed++
	if hadWebsite {
		counters.WithWebsite++
	} else {
		counters.WithoutWebsite++
	}
	metrics.ObservePlaceProcessed()
	return true, nil
}

// businessFromDetails maps a detail record onto the stored business
// shape, taking the latest observation for every mutable field.
func businessFromDetails(d scan.PlaceDetails, scanID string, clock scan.Clock) scan.Business {
	loc := scan.ExtractLocation(d)
	country := loc.Country
	if country == "" {
		country = "US"
	}
	return scan.Business{
		PlaceID:          d.PlaceID,
		Name:             d.Name,
		FormattedAddress: d.FormattedAddress,
		City:             loc.City,
		State:            loc.State,
		Country:          country,
		Latitude:         d.Geometry.Location.Lat,
		Longitude:        d.Geometry.Location.Lng,
		Phone:            d.Phone,
		Website:          d.Website,
		Rating:           d.Rating,
		ReviewCount:      d.ReviewCount,
		BusinessStatus:   d.BusinessStatus,
		Categories:       d.Types,
		FirstSeenScanID:  scanID,
		CreatedAt:        clock.Now(),
	}
}
