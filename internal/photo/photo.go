package photo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-upstream-guard/internal/blob"
	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/fetcher"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/lease"
	"go-upstream-guard/internal/utils"
)

// Result is the URL served for a photo request
type Result struct {
	URL string `json:"url"`
	// Fallback is set when URL is the placeholder image
	Fallback bool `json:"fallback"`
}

// Service resolves place photos to durable public URLs, downloading each
// photo from the provider at most once per process at a time
type Service struct {
	blobs          interfaces.BlobStore
	places         interfaces.PlacesProvider
	fetcher        *fetcher.Fetcher[string]
	leases         *lease.Manager
	pollInterval   time.Duration
	placeholderURL string
	maxWidthPx     int
	logger         *zap.Logger
}

// NewService creates the photo service. leases may be nil, which keeps
// coalescing process-local.
func NewService(
	blobs interfaces.BlobStore,
	places interfaces.PlacesProvider,
	f *fetcher.Fetcher[string],
	leases *lease.Manager,
	cfg *config.PhotoConfig,
	pollInterval time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		blobs:          blobs,
		places:         places,
		fetcher:        f,
		leases:         leases,
		pollInterval:   pollInterval,
		placeholderURL: cfg.PlaceholderURL,
		maxWidthPx:     cfg.MaxWidthPx,
		logger:         logger,
	}
}

// BlobPath is the durable location of a place photo
func BlobPath(placeID, photoRef string) (string, error) {
	if placeID == "" || photoRef == "" || strings.ContainsAny(placeID+photoRef, "/\\") {
		return "", fmt.Errorf("%w: place %q photo %q", blob.ErrInvalidPath, placeID, photoRef)
	}
	return blob.CleanPath("places/" + placeID + "/" + photoRef + ".jpg")
}

// PhotoURL returns the public URL of the photo, or the placeholder when it
// cannot be produced
func (s *Service) PhotoURL(ctx context.Context, placeID, photoRef string) Result {
	path, err := BlobPath(placeID, photoRef)
	if err != nil {
		s.logger.Warn("Rejected photo reference", zap.Error(err))
		return Result{URL: s.placeholderURL, Fallback: true}
	}

	res := s.fetcher.FetchOrCompute(ctx, path, func(ctx context.Context) (string, error) {
		return s.populate(ctx, path, placeID, photoRef)
	}, s.placeholderURL)

	return Result{URL: res.Value, Fallback: res.Fallback}
}

// populate is the computation behind PhotoURL: blob hit, or download and store
func (s *Service) populate(ctx context.Context, path, placeID, photoRef string) (string, error) {
	exists, err := s.blobs.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to check blob %s: %w", path, err)
	}
	if exists {
		return s.blobs.PublicURL(path), nil
	}

	if s.leases != nil {
		release, done := s.coordinate(ctx, path)
		if done {
			return s.blobs.PublicURL(path), nil
		}
		defer release()
	}

	photoName := "places/" + placeID + "/photos/" + photoRef
	data, contentType, err := s.places.PhotoMedia(ctx, photoName, s.maxWidthPx)
	if err != nil {
		return "", fmt.Errorf("failed to download photo %s: %w", photoName, err)
	}

	contentType, err = imageContentType(data, contentType)
	if err != nil {
		return "", fmt.Errorf("photo %s: %w", photoName, err)
	}

	if err := s.blobs.Put(ctx, path, data, contentType, true); err != nil {
		return "", fmt.Errorf("failed to store photo %s: %w", path, err)
	}

	s.logger.Debug("Stored photo",
		zap.String("path", path),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)))
	return s.blobs.PublicURL(path), nil
}

// coordinate takes the cross-instance lease for path. When another instance
// holds it, it waits for that instance's blob write; done reports that the
// blob appeared. Lease failures never block the download.
func (s *Service) coordinate(ctx context.Context, path string) (release func(), done bool) {
	noop := func() {}

	acquired, err := s.leases.Acquire(ctx, path)
	if err != nil {
		s.logger.Warn("Photo lease unavailable, downloading without it",
			zap.String("path", path),
			zap.Error(err))
		return noop, false
	}

	if !acquired {
		ready := s.leases.Await(ctx, path, s.pollInterval, func(ctx context.Context) bool {
			exists, err := s.blobs.Exists(ctx, path)
			return err == nil && exists
		})
		if ready {
			return noop, true
		}
		// the holder gave up or expired, do the work here
		return noop, false
	}

	return func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), path); err != nil {
			s.logger.Warn("Failed to release photo lease", zap.String("path", path), zap.Error(err))
		}
	}, false
}

// imageContentType validates the payload and returns the content type to store
func imageContentType(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	sniffed := http.DetectContentType(data)
	if !utils.IsImageContentType(sniffed) {
		return "", fmt.Errorf("payload is %s, not an image", sniffed)
	}
	if utils.IsImageContentType(declared) {
		return declared, nil
	}
	return sniffed, nil
}
