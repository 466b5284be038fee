package interfaces

import (
	"context"

	"go-upstream-guard/internal/models"
)

//go:generate mockgen -package=mock -source=upstream.go -destination=mock/upstream.go

// PlacesProvider is the upstream place data and photo provider
type PlacesProvider interface {
	PlaceDetails(ctx context.Context, placeID string) (*models.Place, error)
	// PhotoMedia downloads the binary photo and returns it with its content type
	PhotoMedia(ctx context.Context, photoName string, maxWidthPx int) ([]byte, string, error)
}

// Scorer is the generative AI provider used for place scoring
type Scorer interface {
	// Score sends prompt and returns the raw JSON text produced by the model
	Score(ctx context.Context, prompt string) (string, error)
}
