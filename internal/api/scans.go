package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/croftbar/leadscan/internal/scan"
)

// createScanRequest is the submission payload.
type createScanRequest struct {
	State      string   `json:"state"`
	Cities     []string `json:"cities"`
	Categories []string `json:"categories"`
	MinRating  *float64 `json:"min_rating"`
	MinReviews *int     `json:"min_reviews"`
}

// validate normalizes the request into a scan definition or reports the
// first problem found.
func (req createScanRequest) validate() (scan.Definition, error) {
	state := strings.ToUpper(strings.TrimSpace(req.State))
	if len(state) != 2 {
		return scan.Definition{}, errors.New("state must be a two-letter code")
	}

	var cities []string
	for _, c := range req.Cities {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	if len(cities) == 0 {
		return scan.Definition{}, errors.New("at least one city is required")
	}

	var categories []string
	for _, c := range req.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	if len(categories) == 0 {
		return scan.Definition{}, errors.New("at least one category is required")
	}

	if req.MinRating != nil && (*req.MinRating < 0 || *req.MinRating > 5) {
		return scan.Definition{}, errors.New("min_rating must be between 0 and 5")
	}
	if req.MinReviews != nil && *req.MinReviews < 0 {
		return scan.Definition{}, errors.New("min_reviews must not be negative")
	}

	return scan.Definition{
		State:      state,
		Cities:     cities,
		Categories: categories,
		MinRating:  req.MinRating,
		MinReviews: req.MinReviews,
	}, nil
}

// createScan accepts a scan definition, persists it as Queued, and hands
// the id to the worker queue. The 202 acknowledges acceptance only;
// execution happens asynchronously.
func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	def, err := req.validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate scan id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := s.clock.Now()
	sc := scan.Scan{
		ID:         id,
		Definition: def,
		Status:     scan.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateScan(r.Context(), sc); err != nil {
		s.logger.Error("create scan failed", zap.String("scan_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create scan")
		return
	}

	enqCtx, cancel := context.WithTimeout(r.Context(), s.cfg.EnqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(enqCtx, id); err != nil {
		// The scan row exists but never reached the worker. Mark it so
		// the submitter is not left polling a scan that will never run.
		s.logger.Error("enqueue scan failed", zap.String("scan_id", id), zap.Error(err))
		if updErr := s.store.UpdateScanStatus(r.Context(), id, scan.StatusFailed, "queue full"); updErr != nil {
			s.logger.Error("mark scan failed after enqueue error",
				zap.String("scan_id", id), zap.Error(updErr))
		}
		writeError(w, http.StatusServiceUnavailable, "scan queue is full, try again later")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"scan_id": id,
		"status":  string(scan.StatusQueued),
	})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	scans, err := s.store.ListScans(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list scans failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []scan.Scan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")

	sc, err := s.store.GetScan(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		s.logger.Error("get scan failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// businessView augments the stored business with its maps link.
type businessView struct {
	scan.Business
	MapsURL string `json:"maps_url"`
}

func (s *Server) getScanResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")

	if _, err := s.store.GetScan(r.Context(), scanID); err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		s.logger.Error("get scan failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}

	// Missing leads are the point of the service, so the filter is on
	// unless explicitly disabled.
	noWebsiteOnly := r.URL.Query().Get("no_website_only") != "false"

	businesses, err := s.store.ListResults(r.Context(), scanID, noWebsiteOnly)
	if err != nil {
		s.logger.Error("list results failed", zap.String("scan_id", scanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		s.writeResultsCSV(w, scanID, businesses)
		return
	}

	views := make([]businessView, 0, len(businesses))
	for _, b := range businesses {
		views = append(views, businessView{Business: b, MapsURL: b.MapsURL()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": scanID,
		"count":   len(views),
		"results": views,
	})
}

var csvHeader = []string{
	"name", "phone", "formatted_address", "city", "state", "country",
	"latitude", "longitude", "rating", "review_count", "website", "maps_url",
}

func (s *Server) writeResultsCSV(w http.ResponseWriter, scanID string, businesses []scan.Business) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "scan-"+scanID+"-results.csv"))

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		s.logger.Error("write CSV header failed", zap.Error(err))
		return
	}
	for _, b := range businesses {
		row := []string{
			b.Name,
			b.Phone,
			b.FormattedAddress,
			b.City,
			b.State,
			b.Country,
			formatFloat(b.Latitude),
			formatFloat(b.Longitude),
			formatFloat(b.Rating),
			formatInt(b.ReviewCount),
			b.Website,
			b.MapsURL(),
		}
		if err := cw.Write(row); err != nil {
			s.logger.Error("write CSV row failed", zap.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("flush CSV failed", zap.Error(err))
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
