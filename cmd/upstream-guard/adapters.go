package main

import (
	"context"
	"errors"

	"go-upstream-guard/internal/interfaces"
)

var errScoringDisabled = errors.New("AI scoring is not configured")

// disabledScorer stands in for the AI provider when no API key is configured.
// Every score resolves to the unavailable fallback and no quota is consumed.
type disabledScorer struct{}

func (disabledScorer) Score(context.Context, string) (string, error) {
	return "", errScoringDisabled
}

var _ interfaces.Scorer = disabledScorer{}
