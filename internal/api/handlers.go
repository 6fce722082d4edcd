package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ratewatch/internal/domain"
	"ratewatch/internal/listing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleRegisterListing validates the URL, creates a bare pending record
// and queues the scrape. The response never waits for the scrape itself.
func (s *Server) handleRegisterListing(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !listing.Validate(req.URL) {
		s.respondWithJSON(w, http.StatusBadRequest, domain.RegisterResponse{
			Accepted: false,
			Reason:   "URL is not a listing page on the monitored site",
		})
		return
	}

	l, isNew, err := s.pgStore.UpsertListing(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("failed to upsert listing", zap.String("url", req.URL), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not register listing")
		return
	}

	s.scraper.Submit(domain.ScrapeTask{ListingID: l.ID, URL: l.URL, Force: isNew})

	s.respondWithJSON(w, http.StatusAccepted, domain.RegisterResponse{
		Accepted: true,
		Listing:  &l,
	})
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.pgStore.ListListings(r.Context())
	if err != nil {
		s.logger.Error("failed to list listings", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list listings")
		return
	}
	s.respondWithJSON(w, http.StatusOK, listings)
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, ok := s.listingFromPath(w, r)
	if !ok {
		return
	}
	s.respondWithJSON(w, http.StatusOK, l)
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idFromPath(w, r)
	if !ok {
		return
	}
	if err := s.pgStore.DeleteListing(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Listing not found")
			return
		}
		s.logger.Error("failed to delete listing", zap.Int64("id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not delete listing")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRescrape runs one synchronous scrape attempt and reports its
// outcome. Failures are reflected in the outcome body, not the HTTP
// status: the listing keeps its prior data either way.
func (s *Server) handleRescrape(w http.ResponseWriter, r *http.Request) {
	l, ok := s.listingFromPath(w, r)
	if !ok {
		return
	}
	outcome := s.scraper.Rescrape(r.Context(), l)
	s.respondWithJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idFromPath(w, r)
	if !ok {
		return
	}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid date in range: "+d)
			return
		}
	}
	prices, err := s.pgStore.GetPricePoints(r.Context(), id, from, to)
	if err != nil {
		s.logger.Error("failed to get price points", zap.Int64("id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve prices")
		return
	}
	s.respondWithJSON(w, http.StatusOK, prices)
}

// handleImportHistory bulk-replaces the operator's own pricing history
// for a listing.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	l, ok := s.listingFromPath(w, r)
	if !ok {
		return
	}

	var records []domain.HistoricalRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for _, rec := range records {
		if _, err := time.Parse("2006-01-02", rec.Date); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid date in record: "+rec.Date)
			return
		}
	}

	if err := s.pgStore.ReplaceHistoricalRecords(r.Context(), l.ID, records); err != nil {
		s.logger.Error("failed to import history", zap.Int64("id", l.ID), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not import records")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.redisStore.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	isHealthy := healthStatus["postgres"] == "healthy" && healthStatus["redis"] == "healthy"
	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}

	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) idFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid listing id")
		return 0, false
	}
	return id, true
}

func (s *Server) listingFromPath(w http.ResponseWriter, r *http.Request) (domain.Listing, bool) {
	id, ok := s.idFromPath(w, r)
	if !ok {
		return domain.Listing{}, false
	}
	l, err := s.pgStore.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Listing not found")
			return domain.Listing{}, false
		}
		s.logger.Error("failed to get listing", zap.Int64("id", id), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not retrieve listing")
		return domain.Listing{}, false
	}
	return l, true
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
