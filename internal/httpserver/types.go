package httpserver

import (
	"time"

	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/places"
)

// ErrorResponse is the body of every non-2xx JSON answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// PlaceResponse answers GET /v1/places/{placeID}
type PlaceResponse struct {
	Place     *models.Place `json:"place"`
	Source    places.Source `json:"source"`
	PhotoRefs []string      `json:"photoRefs,omitempty"`
}

// PhotoResponse answers GET /v1/places/{placeID}/photos/{photoRef}
type PhotoResponse struct {
	URL      string `json:"url"`
	Fallback bool   `json:"fallback"`
}

// ScoreResponse answers POST /v1/places/{placeID}/score
type ScoreResponse struct {
	Score  *models.Score      `json:"score"`
	Usage  models.UsageStatus `json:"usage"`
	Cached bool               `json:"cached"`
}

// UsageLimitResponse is the 429 body when the usage quota is exhausted
type UsageLimitResponse struct {
	Error     string             `json:"error"`
	Remaining int                `json:"remaining"`
	ResetAt   time.Time          `json:"resetAt"`
	Usage     models.UsageStatus `json:"usage"`
}
