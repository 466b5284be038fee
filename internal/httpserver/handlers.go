package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-upstream-guard/internal/analytics"
	"go-upstream-guard/internal/auth"
	"go-upstream-guard/internal/blob"
	"go-upstream-guard/internal/places"
	"go-upstream-guard/internal/quota"
	"go-upstream-guard/internal/utils"
)

// handlePlace handles place detail lookups
func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	placeID := mux.Vars(r)["placeID"]

	lookup, err := s.services.Places.Lookup(r.Context(), placeID)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if lookup.Source != places.SourceFallback {
		s.services.Analytics.Record(analytics.EventPlaceLookup)
	}

	s.writeResponse(w, PlaceResponse{
		Place:     lookup.Place,
		Source:    lookup.Source,
		PhotoRefs: places.PhotoRefs(lookup.Place),
	})
}

// handlePhoto resolves a place photo to its public URL
func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result := s.services.Photos.PhotoURL(r.Context(), vars["placeID"], vars["photoRef"])
	if !result.Fallback {
		s.services.Analytics.Record(analytics.EventPhotoServed)
	}

	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, result.URL, http.StatusFound)
		return
	}

	s.writeResponse(w, PhotoResponse{URL: result.URL, Fallback: result.Fallback})
}

// handleScore scores a place for the authenticated user, gated by the usage quota
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		s.writeErrorResponse(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	lookup, err := s.services.Places.Lookup(r.Context(), mux.Vars(r)["placeID"])
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if lookup.Place.Unavailable {
		s.writeErrorResponse(w, "place details unavailable", http.StatusBadGateway)
		return
	}

	outcome, err := s.services.Scoring.Score(r.Context(), userID, lookup.Place)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if outcome.LimitReached {
		if seconds := utils.DurationCeilSeconds(outcome.Usage.ResetsAt.Sub(s.clock.Now())); seconds > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
		s.writeStatusResponse(w, http.StatusTooManyRequests, UsageLimitResponse{
			Error:     "usage limit reached",
			Remaining: outcome.Usage.Remaining,
			ResetAt:   outcome.Usage.ResetsAt,
			Usage:     outcome.Usage,
		})
		return
	}

	if !outcome.Cached && !outcome.Score.Unavailable {
		s.services.Analytics.Record(analytics.EventScoreComputed)
	}

	s.writeResponse(w, ScoreResponse{
		Score:  outcome.Score,
		Usage:  outcome.Usage,
		Cached: outcome.Cached,
	})
}

// handleUsage returns the authenticated user's usage status
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		s.writeErrorResponse(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := s.services.Quota.CheckLimit(r.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrInvalidUserID) {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.writeErrorResponse(w, "usage unavailable", http.StatusInternalServerError)
		return
	}

	s.writeResponse(w, status)
}

// handleBlob serves public-read blobs so that derived public URLs resolve
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	path, err := blob.CleanPath(mux.Vars(r)["path"])
	if err != nil {
		s.writeErrorResponse(w, "invalid path", http.StatusBadRequest)
		return
	}

	data, contentType, public, err := s.services.Blobs.Get(r.Context(), path)
	if errors.Is(err, blob.ErrNotFound) || (err == nil && !public) {
		s.writeErrorResponse(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("Failed to read blob", zap.String("path", path), zap.Error(err))
		s.writeErrorResponse(w, "blob store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("Failed to write blob", zap.String("path", path), zap.Error(err))
	}
}
