package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"go-upstream-guard/internal/cache/service"
	"go-upstream-guard/internal/fetcher"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/quota"
)

// promptVersion is part of the cache key; bump it when the prompt changes
const promptVersion = 1

var ErrInvalidPlace = errors.New("place is required for scoring")

// Outcome is the result of a scoring request
type Outcome struct {
	Score *models.Score      `json:"score,omitempty"`
	Usage models.UsageStatus `json:"usage"`
	// LimitReached is set when the quota denied the request; Score is nil then
	LimitReached bool `json:"limitReached"`
	Cached       bool `json:"cached"`
}

// scoreParams identifies a score in the cache
type scoreParams struct {
	Version          int      `json:"v"`
	PlaceID          string   `json:"placeId"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formattedAddress"`
	Types            []string `json:"types"`
	Rating           float64  `json:"rating"`
}

type modelAnswer struct {
	Score      *float64 `json:"score" validate:"required,gte=0,lte=10"`
	Summary    string   `json:"summary" validate:"max=500"`
	Highlights []string `json:"highlights" validate:"max=3,dive,max=120"`
}

// Service scores places with the AI provider behind the usage quota.
// Scores are cached per place parameters; only freshly computed scores use quota.
type Service struct {
	cache    *service.CacheService
	scorer   interfaces.Scorer
	quota    *quota.Tracker
	fetcher  *fetcher.Fetcher[*models.Score]
	validate *validator.Validate
	logger   *zap.Logger
}

// NewService creates the scoring service
func NewService(cache *service.CacheService, scorer interfaces.Scorer, tracker *quota.Tracker, f *fetcher.Fetcher[*models.Score], logger *zap.Logger) *Service {
	return &Service{
		cache:    cache,
		scorer:   scorer,
		quota:    tracker,
		fetcher:  f,
		validate: validator.New(),
		logger:   logger,
	}
}

// Score returns the score of place for userID, checking the quota first
func (s *Service) Score(ctx context.Context, userID string, place *models.Place) (Outcome, error) {
	if place == nil || place.ID == "" {
		return Outcome{}, ErrInvalidPlace
	}

	if err := s.quota.EnsureRecord(ctx, userID); err != nil {
		if errors.Is(err, quota.ErrInvalidUserID) {
			return Outcome{}, err
		}
		s.logger.Warn("Failed to initialize usage record", zap.String("user_id", userID), zap.Error(err))
	}

	usage, err := s.quota.CheckLimit(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	if usage.LimitReached {
		return Outcome{Usage: usage, LimitReached: true}, nil
	}

	params := paramsFor(place)
	key, err := s.cache.KeyFromParams(params)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build score key: %w", err)
	}

	var cached models.Score
	if s.cache.GetJSON(ctx, models.NamespaceScores, key, &cached) {
		return Outcome{Score: &cached, Usage: usage, Cached: true}, nil
	}

	// the unit is taken before the provider runs so concurrent requests
	// cannot all pass on the last remaining unit
	reservation, err := s.quota.Reserve(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	if !reservation.Granted {
		return Outcome{Usage: reservation.Status, LimitReached: true}, nil
	}

	fallback := &models.Score{PlaceID: place.ID, Unavailable: true}
	res := s.fetcher.FetchOrCompute(ctx, key, func(ctx context.Context) (*models.Score, error) {
		return s.compute(ctx, key, params)
	}, fallback)

	if res.Fallback {
		if err := s.quota.Release(context.WithoutCancel(ctx), reservation); err != nil {
			s.logger.Error("Failed to release usage", zap.String("user_id", userID), zap.Error(err))
		}
		return Outcome{Score: res.Value, Usage: usage}, nil
	}

	return Outcome{Score: res.Value, Usage: reservation.Status}, nil
}

func (s *Service) compute(ctx context.Context, key string, params scoreParams) (*models.Score, error) {
	raw, err := s.scorer.Score(ctx, buildPrompt(params))
	if err != nil {
		return nil, err
	}

	score, err := s.parse(params.PlaceID, raw)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, models.NamespaceScores, key, score); err != nil {
		s.logger.Warn("Failed to cache score", zap.String("place_id", params.PlaceID), zap.Error(err))
	}
	return score, nil
}

// parse validates the model output. Anything but a well-formed answer is an error.
func (s *Service) parse(placeID, raw string) (*models.Score, error) {
	text := strings.TrimSpace(raw)
	// models sometimes wrap JSON in a markdown fence
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var answer modelAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &answer); err != nil {
		return nil, fmt.Errorf("malformed score response: %w", err)
	}
	if err := s.validate.Struct(answer); err != nil {
		return nil, fmt.Errorf("invalid score response: %w", err)
	}

	return &models.Score{
		PlaceID:    placeID,
		Score:      *answer.Score,
		Summary:    strings.TrimSpace(answer.Summary),
		Highlights: answer.Highlights,
	}, nil
}

func paramsFor(place *models.Place) scoreParams {
	return scoreParams{
		Version:          promptVersion,
		PlaceID:          place.ID,
		Name:             place.Name,
		FormattedAddress: place.FormattedAddress,
		Types:            place.Types,
		Rating:           place.Rating,
	}
}

func buildPrompt(p scoreParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate this place for a visitor.\nName: %s\n", p.Name)
	if p.FormattedAddress != "" {
		fmt.Fprintf(&b, "Address: %s\n", p.FormattedAddress)
	}
	if len(p.Types) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(p.Types, ", "))
	}
	if p.Rating > 0 {
		fmt.Fprintf(&b, "Average user rating: %.1f\n", p.Rating)
	}
	return b.String()
}

