package places

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"go-upstream-guard/internal/cache/service"
	"go-upstream-guard/internal/fetcher"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
)

var ErrInvalidPlaceID = errors.New("place id cannot be empty")

// Source tells where a lookup was answered from
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

// Lookup is the outcome of a place lookup
type Lookup struct {
	Place  *models.Place `json:"place"`
	Source Source        `json:"source"`
}

// Service serves place details from the TTL cache and coalesces misses
// into one upstream call per place
type Service struct {
	cache    *service.CacheService
	provider interfaces.PlacesProvider
	fetcher  *fetcher.Fetcher[*models.Place]
	logger   *zap.Logger
}

// NewService creates the place lookup service
func NewService(cache *service.CacheService, provider interfaces.PlacesProvider, f *fetcher.Fetcher[*models.Place], logger *zap.Logger) *Service {
	return &Service{
		cache:    cache,
		provider: provider,
		fetcher:  f,
		logger:   logger,
	}
}

// Lookup returns the details of a place. Upstream failures produce a place
// marked Unavailable, which is never cached.
func (s *Service) Lookup(ctx context.Context, placeID string) (Lookup, error) {
	if placeID == "" {
		return Lookup{}, ErrInvalidPlaceID
	}

	var cached models.Place
	if s.cache.GetJSON(ctx, models.NamespacePlaces, placeID, &cached) {
		return Lookup{Place: &cached, Source: SourceCache}, nil
	}

	fallback := &models.Place{ID: placeID, Unavailable: true}
	res := s.fetcher.FetchOrCompute(ctx, "place:"+placeID, func(ctx context.Context) (*models.Place, error) {
		place, err := s.provider.PlaceDetails(ctx, placeID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetJSON(ctx, models.NamespacePlaces, placeID, place); err != nil {
			s.logger.Warn("Failed to cache place", zap.String("place_id", placeID), zap.Error(err))
		}
		return place, nil
	}, fallback)

	if res.Fallback {
		return Lookup{Place: res.Value, Source: SourceFallback}, nil
	}
	return Lookup{Place: res.Value, Source: SourceUpstream}, nil
}

// PhotoRefs returns the photo references of a place, used to resolve
// photo requests against the place they belong to
func PhotoRefs(place *models.Place) []string {
	if place == nil {
		return nil
	}
	refs := make([]string, 0, len(place.Photos))
	for _, photo := range place.Photos {
		refs = append(refs, photoRef(photo.Name))
	}
	return refs
}

// photoRef strips "places/{id}/photos/" from a photo resource name
func photoRef(name string) string {
	return name[strings.LastIndex(name, "/")+1:]
}
