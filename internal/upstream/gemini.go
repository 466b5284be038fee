package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
)

const scoringInstruction = `You rate places for visitors. Answer with a single JSON object:
{"score": <number from 0 to 10>, "summary": <one sentence>, "highlights": [<up to 3 short strings>]}`

// GeminiScorer produces place scores with a Gemini model
type GeminiScorer struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiScorer creates a scorer. baseURL is empty outside of tests.
func NewGeminiScorer(cfg *config.GeminiConfig, baseURL string, logger *zap.Logger) (*GeminiScorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	// constructors don't take a context; the client does no I/O here
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiScorer{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Score returns the model's JSON answer for prompt
func (g *GeminiScorer) Score(ctx context.Context, prompt string) (string, error) {
	status := "error"
	done := metrics.TimeUpstreamRequest("gemini", "score")
	defer func() { done(status) }()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: scoringInstruction}}},
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		status = "empty"
		return "", fmt.Errorf("empty response from Gemini")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		status = "empty"
		return "", fmt.Errorf("Gemini returned no text")
	}

	status = "ok"
	g.logger.Debug("Gemini score generated", zap.String("model", g.model), zap.Int("length", len(text)))
	return text, nil
}

var _ interfaces.Scorer = (*GeminiScorer)(nil)
