package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// maxPhotoBytes caps a photo download
const maxPhotoBytes = 10 << 20

var ErrNotFound = errors.New("upstream resource not found")

// PlacesClient talks to the Places HTTP API
type PlacesClient struct {
	baseURL   string
	apiKey    string
	fieldMask string
	client    *http.Client
	logger    *zap.Logger
}

// NewPlacesClient creates a Places API client. Every request is bounded by cfg.Timeout.
func NewPlacesClient(cfg *config.PlacesConfig, logger *zap.Logger) *PlacesClient {
	return &PlacesClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		fieldMask: cfg.FieldMask,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

type placeResponse struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string            `json:"formattedAddress"`
	Rating           float64           `json:"rating"`
	UserRatingCount  int               `json:"userRatingCount"`
	Types            []string          `json:"types"`
	Location         *models.LatLng    `json:"location"`
	Photos           []models.PhotoRef `json:"photos"`
}

// PlaceDetails fetches the details of one place
func (p *PlacesClient) PlaceDetails(ctx context.Context, placeID string) (*models.Place, error) {
	if placeID == "" {
		return nil, fmt.Errorf("place id cannot be empty")
	}

	status := "error"
	done := metrics.TimeUpstreamRequest("places", "details")
	defer func() { done(status) }()

	endpoint := p.baseURL + "/v1/places/" + url.PathEscape(placeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.authorize(req)
	if p.fieldMask != "" {
		req.Header.Set("X-Goog-FieldMask", p.fieldMask)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		status = strconv.Itoa(resp.StatusCode)
		return nil, err
	}

	var body placeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status = "malformed"
		return nil, fmt.Errorf("failed to parse place response: %w", err)
	}
	if body.ID == "" {
		status = "malformed"
		return nil, fmt.Errorf("place response has no id")
	}

	status = "ok"
	return &models.Place{
		ID:               body.ID,
		Name:             body.DisplayName.Text,
		FormattedAddress: body.FormattedAddress,
		Rating:           body.Rating,
		UserRatingCount:  body.UserRatingCount,
		Types:            body.Types,
		Location:         body.Location,
		Photos:           body.Photos,
	}, nil
}

// PhotoMedia downloads a photo. photoName is the resource name returned with
// the place details, e.g. "places/X/photos/abc".
func (p *PlacesClient) PhotoMedia(ctx context.Context, photoName string, maxWidthPx int) ([]byte, string, error) {
	if photoName == "" {
		return nil, "", fmt.Errorf("photo name cannot be empty")
	}

	status := "error"
	done := metrics.TimeUpstreamRequest("places", "photo")
	defer func() { done(status) }()

	query := url.Values{}
	if maxWidthPx > 0 {
		query.Set("maxWidthPx", strconv.Itoa(maxWidthPx))
	}
	endpoint := p.baseURL + "/v1/" + strings.TrimLeft(photoName, "/") + "/media?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		status = strconv.Itoa(resp.StatusCode)
		return nil, "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		status = "too_large"
		return nil, "", fmt.Errorf("photo exceeds %d bytes", maxPhotoBytes)
	}

	status = "ok"
	return data, resp.Header.Get("Content-Type"), nil
}

func (p *PlacesClient) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("X-Goog-Api-Key", p.apiKey)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	// drain a little of the body for the error message
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

var _ interfaces.PlacesProvider = (*PlacesClient)(nil)
