package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"go-upstream-guard/internal/analytics"
	"go-upstream-guard/internal/auth"
	"go-upstream-guard/internal/blob/bucket"
	"go-upstream-guard/internal/cache/l2"
	"go-upstream-guard/internal/cache/noop"
	"go-upstream-guard/internal/cache/service"
	"go-upstream-guard/internal/cache_rules"
	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/fetcher"
	"go-upstream-guard/internal/interfaces/mock"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/photo"
	"go-upstream-guard/internal/places"
	"go-upstream-guard/internal/quota"
	"go-upstream-guard/internal/ratelimit"
	"go-upstream-guard/internal/scoring"
	"go-upstream-guard/internal/store/memory"
)

const placeholderURL = "http://localhost:8080/static/placeholder.svg"

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type testServer struct {
	handler  http.Handler
	places   *mock.MockPlacesProvider
	scorer   *mock.MockScorer
	tracker  *quota.Tracker
	verifier *auth.Verifier
	blobs    *bucket.Store
	store    *memory.Store
	clock    *clock.Mock
}

func newTestServer(t *testing.T, rateLimit config.RateLimitConfig) *testServer {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	logger := zaptest.NewLogger(t)
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore()

	blobs, err := bucket.OpenDir(t.TempDir(), "http://localhost:8080/blobs", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	policy := cache_rules.NewCacheConfig(nil, zap.NewNop())
	cacheService := service.NewCacheService(
		noop.NewNoOpCache(),
		l2.NewDurableCache(store, mockClock, time.Second, zap.NewNop()),
		policy, false, mockClock, zap.NewNop(),
	)

	placesProvider := mock.NewMockPlacesProvider(ctrl)
	scorer := mock.NewMockScorer(ctrl)
	tracker := quota.NewTracker(store, &config.QuotaConfig{FreeLimit: 2, ResetPeriod: 30 * 24 * time.Hour}, mockClock, zap.NewNop())

	verifier, err := auth.NewVerifier("test-secret", time.Hour, mockClock)
	require.NoError(t, err)

	recorder := analytics.NewRecorder(store, 16, mockClock, zap.NewNop())
	t.Cleanup(func() { _ = recorder.Close(context.Background()) })

	services := Services{
		Places: places.NewService(cacheService, placesProvider, fetcher.New[*models.Place]("place", time.Second, zap.NewNop()), zap.NewNop()),
		Photos: photo.NewService(blobs, placesProvider, fetcher.New[string]("photo", time.Second, zap.NewNop()), nil,
			&config.PhotoConfig{PlaceholderURL: placeholderURL, MaxWidthPx: 800}, time.Millisecond, zap.NewNop()),
		Scoring:   scoring.NewService(cacheService, scorer, tracker, fetcher.New[*models.Score]("score", time.Second, zap.NewNop()), zap.NewNop()),
		Quota:     tracker,
		Blobs:     blobs,
		Limiter:   ratelimit.NewLimiter(store, mockClock, zap.NewNop()),
		Verifier:  verifier,
		Analytics: recorder,
	}

	return &testServer{
		handler:  NewServer(services, rateLimit, mockClock, logger).Handler(),
		places:   placesProvider,
		scorer:   scorer,
		tracker:  tracker,
		verifier: verifier,
		blobs:    blobs,
		store:    store,
		clock:    mockClock,
	}
}

func (ts *testServer) do(t *testing.T, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "1.2.3.4:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) token(t *testing.T, userID string) string {
	token, _, err := ts.verifier.Generate(userID)
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	rec := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPlaceLookup(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.places.EXPECT().PlaceDetails(gomock.Any(), "abc").Return(&models.Place{
		ID:     "abc",
		Name:   "Cafe",
		Photos: []models.PhotoRef{{Name: "places/abc/photos/p1"}},
	}, nil).Times(1)

	rec := ts.do(t, http.MethodGet, "/v1/places/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body PlaceResponse
	decode(t, rec, &body)
	assert.Equal(t, places.SourceUpstream, body.Source)
	assert.Equal(t, "Cafe", body.Place.Name)
	assert.Equal(t, []string{"p1"}, body.PhotoRefs)

	rec = ts.do(t, http.MethodGet, "/v1/places/abc", "")
	decode(t, rec, &body)
	assert.Equal(t, places.SourceCache, body.Source)
}

func TestPlaceLookup_RateLimited(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute})
	ts.places.EXPECT().PlaceDetails(gomock.Any(), "abc").Return(&models.Place{ID: "abc"}, nil).AnyTimes()

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/v1/places/abc", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/v1/places/abc", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// health stays outside the limiter
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "").Code)

	ts.clock.Add(time.Minute + time.Millisecond)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/places/abc", "").Code)
}

func TestPhoto_DownloadStoreAndServe(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.places.EXPECT().PhotoMedia(gomock.Any(), "places/X/photos/abc", 800).Return(jpeg, "image/jpeg", nil).Times(1)

	rec := ts.do(t, http.MethodGet, "/v1/places/X/photos/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body PhotoResponse
	decode(t, rec, &body)
	assert.Equal(t, "http://localhost:8080/blobs/places/X/abc.jpg", body.URL)
	assert.False(t, body.Fallback)

	rec = ts.do(t, http.MethodGet, "/v1/places/X/photos/abc?redirect=true", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://localhost:8080/blobs/places/X/abc.jpg", rec.Header().Get("Location"))

	rec = ts.do(t, http.MethodGet, "/blobs/places/X/abc.jpg", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, jpeg, rec.Body.Bytes())
}

func TestPhoto_FallbackToPlaceholder(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.places.EXPECT().PhotoMedia(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, "", errors.New("503"))

	rec := ts.do(t, http.MethodGet, "/v1/places/X/photos/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body PhotoResponse
	decode(t, rec, &body)
	assert.Equal(t, placeholderURL, body.URL)
	assert.True(t, body.Fallback)

	placeholder, err := url.Parse(body.URL)
	require.NoError(t, err)
	rec = ts.do(t, http.MethodGet, placeholder.Path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaceholder_DefaultURLResolves(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	placeholder, err := url.Parse(config.Default().Photo.PlaceholderURL)
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, placeholder.Path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	rec = ts.do(t, http.MethodHead, placeholder.Path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestBlobs(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ctx := context.Background()
	require.NoError(t, ts.blobs.Put(ctx, "private/doc.jpg", jpeg, "image/jpeg", false))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/blobs/missing.jpg", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/blobs/private/doc.jpg", "").Code)
}

func TestScore(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	token := ts.token(t, "user-1")

	ts.places.EXPECT().PlaceDetails(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, id string) (*models.Place, error) {
			return &models.Place{ID: id, Name: "Place " + id}, nil
		}).AnyTimes()
	ts.scorer.EXPECT().Score(gomock.Any(), gomock.Any()).Return(`{"score": 8}`, nil).Times(2)

	// free limit is 2 in this fixture
	for _, id := range []string{"a", "b"} {
		rec := ts.do(t, http.MethodPost, "/v1/places/"+id+"/score", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body ScoreResponse
		decode(t, rec, &body)
		assert.Equal(t, 8.0, body.Score.Score)
		assert.False(t, body.Cached)
	}

	rec := ts.do(t, http.MethodPost, "/v1/places/c/score", token)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var limited UsageLimitResponse
	decode(t, rec, &limited)
	assert.Equal(t, "usage limit reached", limited.Error)
	assert.Equal(t, 0, limited.Remaining)
	assert.True(t, limited.Usage.LimitReached)

	rec = ts.do(t, http.MethodGet, "/v1/usage", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	var usage models.UsageStatus
	decode(t, rec, &usage)
	assert.Equal(t, 2, usage.Count)
	assert.Equal(t, models.TierFree, usage.Tier)
}

func TestScore_PlaceUnavailable(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})
	ts.places.EXPECT().PlaceDetails(gomock.Any(), "abc").Return(nil, errors.New("503"))

	rec := ts.do(t, http.MethodPost, "/v1/places/abc/score", ts.token(t, "user-1"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, config.RateLimitConfig{})

	for _, target := range []string{"/v1/usage", "/v1/places/abc/score"} {
		method := http.MethodGet
		if strings.HasSuffix(target, "/score") {
			method = http.MethodPost
		}
		rec := ts.do(t, method, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := ts.do(t, http.MethodGet, "/v1/usage", "forged.token.value")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthNotConfigured(t *testing.T) {
	server := NewServer(Services{}, config.RateLimitConfig{}, clock.NewMock(), zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStopWithoutStart(t *testing.T) {
	server := NewServer(Services{}, config.RateLimitConfig{}, clock.NewMock(), zap.NewNop())
	assert.NoError(t, server.Stop(context.Background()))
}
