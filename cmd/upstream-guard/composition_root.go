package main

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/analytics"
	"go-upstream-guard/internal/auth"
	"go-upstream-guard/internal/blob/bucket"
	blobkeydb "go-upstream-guard/internal/blob/keydb"
	"go-upstream-guard/internal/cache/l1"
	"go-upstream-guard/internal/cache/l2"
	"go-upstream-guard/internal/cache/noop"
	"go-upstream-guard/internal/cache/service"
	"go-upstream-guard/internal/cache_rules"
	"go-upstream-guard/internal/config"
	"go-upstream-guard/internal/fetcher"
	"go-upstream-guard/internal/httpserver"
	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/keydb"
	"go-upstream-guard/internal/lease"
	"go-upstream-guard/internal/models"
	"go-upstream-guard/internal/photo"
	"go-upstream-guard/internal/places"
	"go-upstream-guard/internal/quota"
	"go-upstream-guard/internal/ratelimit"
	"go-upstream-guard/internal/scoring"
	keydbstore "go-upstream-guard/internal/store/keydb"
	"go-upstream-guard/internal/store/memory"
	"go-upstream-guard/internal/store/sqlstore"
	"go-upstream-guard/internal/upstream"
)

// l2Timeout bounds each durable cache round trip so a slow store degrades to a miss
const l2Timeout = 2 * time.Second

// analyticsDrainTimeout bounds how long shutdown waits for buffered events
const analyticsDrainTimeout = 5 * time.Second

// CompositionRoot holds all application dependencies and is the single place
// where they are created and wired together.
type CompositionRoot struct {
	// Configuration
	Config      *config.Config
	Logger      *zap.Logger
	CachePolicy interfaces.CachePolicy
	Clock       clock.Clock

	// Storage
	KeyDB     interfaces.KeyDbClient
	Store     interfaces.DocumentStore
	BlobStore interfaces.BlobStore
	sqlStore  *sqlstore.Store
	bucket    *bucket.Store

	// Cache components
	L1Cache interfaces.Cache
	L2Cache interfaces.Cache

	// Services
	CacheService *service.CacheService
	Limiter      *ratelimit.Limiter
	Quota        *quota.Tracker
	Leases       *lease.Manager
	Places       *places.Service
	Photos       *photo.Service
	Scoring      *scoring.Service
	Verifier     *auth.Verifier
	Analytics    *analytics.Recorder
	HTTPServer   *httpserver.Server
}

// NewCompositionRoot creates and initializes all application dependencies.
//
// Initialization order:
// 1. Logger (needed by all other components)
// 2. Configuration and cache policy
// 3. Storage (KeyDB connection, document store, blob store)
// 4. Cache components (L1, L2, CacheService)
// 5. Services (limiter, quota, places, photos, scoring, auth, analytics)
// 6. HTTP Server (uses all above components)
func NewCompositionRoot(configPath string, dev bool) (*CompositionRoot, error) {
	root := &CompositionRoot{Clock: clock.New()}

	// Initialize logger first
	if err := root.initLogger(dev); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := loadConfig(configPath, root.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	root.Config = cfg

	if err := root.loadCachePolicy(); err != nil {
		return nil, fmt.Errorf("failed to load cache rules: %w", err)
	}

	if err := root.initStorage(); err != nil {
		_ = root.Cleanup()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := root.initCacheComponents(); err != nil {
		_ = root.Cleanup()
		return nil, fmt.Errorf("failed to initialize cache components: %w", err)
	}

	if err := root.initServices(); err != nil {
		_ = root.Cleanup()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	root.initHTTPServer()

	return root, nil
}

// initLogger initializes the application logger
func (r *CompositionRoot) initLogger(dev bool) error {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

// loadConfig reads the configuration file, or returns the defaults when no path is given
func loadConfig(configPath string, logger *zap.Logger) (*config.Config, error) {
	if configPath == "" {
		logger.Info("No configuration file given, using defaults")
		return config.Default(), nil
	}
	return config.LoadConfig(configPath, logger)
}

// loadCachePolicy builds the namespace TTL policy
func (r *CompositionRoot) loadCachePolicy() error {
	if r.Config.CacheRulesPath == "" {
		r.CachePolicy = cache_rules.NewCacheConfig(&r.Config.CacheRules, r.Logger)
		return nil
	}

	policy, err := cache_rules.LoadCacheRulesConfig(r.Config.CacheRulesPath, r.Logger)
	if err != nil {
		return err
	}
	r.CachePolicy = policy
	return nil
}

func (r *CompositionRoot) needsKeyDB() bool {
	return r.Config.Store.Backend == "keydb" || r.Config.Blob.Backend == "keydb"
}

// initStorage connects the durable backends selected in the configuration
func (r *CompositionRoot) initStorage() error {
	if r.needsKeyDB() {
		keydbURL := GetKeyDBURL(r.Config.KeyDB.URL, r.Logger)
		client, err := keydb.NewRedisKeyDbClient(&r.Config.KeyDB, keydbURL, r.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to KeyDB: %w", err)
		}
		r.KeyDB = client
		r.Logger.Info("KeyDB connected")
	}

	if err := r.initDocumentStore(); err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}

	if err := r.initBlobStore(); err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	return nil
}

// initDocumentStore initializes the transactional document store
func (r *CompositionRoot) initDocumentStore() error {
	switch r.Config.Store.Backend {
	case "keydb":
		r.Store = keydbstore.NewStore(r.KeyDB, r.Config.KeyDB.Prefix+"doc:", r.Logger)
	case "sql":
		store, err := sqlstore.Open(r.Config.Store.SQL.Driver, r.Config.Store.SQL.DSN, r.Logger)
		if err != nil {
			return err
		}
		r.sqlStore = store
		r.Store = store
	default:
		r.Logger.Warn("Using in-memory document store, state is lost on restart and not shared between instances")
		r.Store = memory.NewStore()
	}

	r.Logger.Info("Document store initialized", zap.String("backend", r.Config.Store.Backend))
	return nil
}

// initBlobStore initializes the durable photo storage
func (r *CompositionRoot) initBlobStore() error {
	switch r.Config.Blob.Backend {
	case "keydb":
		r.BlobStore = blobkeydb.NewStore(r.KeyDB, r.Config.KeyDB.Prefix+"blob:", r.Config.Blob.PublicBaseURL, r.Logger)
	case "bucket":
		store, err := bucket.OpenURL(context.Background(), r.Config.Blob.URL, r.Config.Blob.PublicBaseURL, r.Logger)
		if err != nil {
			return err
		}
		r.bucket = store
		r.BlobStore = store
	default:
		store, err := bucket.OpenDir(r.Config.Blob.Dir, r.Config.Blob.PublicBaseURL, r.Logger)
		if err != nil {
			return err
		}
		r.bucket = store
		r.BlobStore = store
	}

	r.Logger.Info("Blob store initialized", zap.String("backend", r.Config.Blob.Backend))
	return nil
}

// initCacheComponents initializes all cache-related components
func (r *CompositionRoot) initCacheComponents() error {
	if err := r.initL1Cache(); err != nil {
		return fmt.Errorf("failed to initialize L1 cache: %w", err)
	}

	r.initL2Cache()

	r.CacheService = service.NewCacheService(
		r.L1Cache,
		r.L2Cache,
		r.CachePolicy,
		r.Config.MultiCache.EnablePropagation,
		r.Clock,
		r.Logger,
	)
	return nil
}

// initL1Cache initializes the L1 cache (BigCache)
func (r *CompositionRoot) initL1Cache() error {
	if r.Config.BigCache.Enabled {
		l1Cache, err := l1.NewBigCache(&r.Config.BigCache, r.Clock, r.Logger)
		if err != nil {
			return err
		}
		r.L1Cache = l1Cache
		r.Logger.Info("BigCache (L1) initialized", zap.Int("size_mb", r.Config.BigCache.Size))
	} else {
		r.L1Cache = noop.NewNoOpCache()
		r.Logger.Info("BigCache (L1) disabled")
	}
	return nil
}

// initL2Cache initializes the L2 cache on top of the document store
func (r *CompositionRoot) initL2Cache() {
	if r.Config.MultiCache.L2Enabled {
		r.L2Cache = l2.NewDurableCache(r.Store, r.Clock, l2Timeout, r.Logger)
		r.Logger.Info("Durable cache (L2) initialized", zap.String("backend", r.Config.Store.Backend))
	} else {
		r.L2Cache = noop.NewNoOpCache()
		r.Logger.Info("Durable cache (L2) disabled")
	}
}

// initServices initializes application services
func (r *CompositionRoot) initServices() error {
	r.Limiter = ratelimit.NewLimiter(r.Store, r.Clock, r.Logger)
	r.Quota = quota.NewTracker(r.Store, &r.Config.Quota, r.Clock, r.Logger)

	if r.Config.Lease.Enabled {
		r.Leases = lease.NewManager(r.Store, r.Config.Lease.TTL, r.Clock, r.Logger)
		r.Logger.Info("Cross-instance photo leases enabled", zap.String("owner", r.Leases.Owner()))
	}

	if r.Config.Places.APIKey == "" {
		r.Logger.Warn("PLACES_API_KEY is not set, upstream place lookups will fail and serve fallbacks")
	}
	placesClient := upstream.NewPlacesClient(&r.Config.Places, r.Logger)

	scorer, err := r.newScorer()
	if err != nil {
		return err
	}

	timeout := r.Config.Fetcher.Timeout
	r.Places = places.NewService(
		r.CacheService,
		placesClient,
		fetcher.New[*models.Place]("places", timeout, r.Logger),
		r.Logger,
	)
	r.Photos = photo.NewService(
		r.BlobStore,
		placesClient,
		fetcher.New[string]("photos", timeout, r.Logger),
		r.Leases,
		&r.Config.Photo,
		r.Config.Lease.PollInterval,
		r.Logger,
	)
	r.Scoring = scoring.NewService(
		r.CacheService,
		scorer,
		r.Quota,
		fetcher.New[*models.Score]("scores", timeout, r.Logger),
		r.Logger,
	)

	if r.Config.Auth.JWTSecret != "" {
		verifier, err := newVerifier(r.Config)
		if err != nil {
			return err
		}
		r.Verifier = verifier
	} else {
		r.Logger.Warn("JWT_SECRET is not set, authenticated routes are unavailable")
	}

	if r.Config.Analytics.Enabled {
		r.Analytics = analytics.NewRecorder(r.Store, r.Config.Analytics.BufferSize, r.Clock, r.Logger)
	}

	return nil
}

// newScorer returns the Gemini scorer, or a stand-in that always fails when no key is set
func (r *CompositionRoot) newScorer() (interfaces.Scorer, error) {
	if r.Config.Gemini.APIKey == "" {
		r.Logger.Warn("GEMINI_API_KEY is not set, scoring will serve fallbacks")
		return disabledScorer{}, nil
	}

	scorer, err := upstream.NewGeminiScorer(&r.Config.Gemini, "", r.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini scorer: %w", err)
	}
	return scorer, nil
}

func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clock.New())
	if err != nil {
		return nil, fmt.Errorf("failed to create token verifier: %w", err)
	}
	return verifier, nil
}

// initHTTPServer initializes the HTTP server
func (r *CompositionRoot) initHTTPServer() {
	r.HTTPServer = httpserver.NewServer(
		httpserver.Services{
			Places:    r.Places,
			Photos:    r.Photos,
			Scoring:   r.Scoring,
			Quota:     r.Quota,
			Blobs:     r.BlobStore,
			Limiter:   r.Limiter,
			Verifier:  r.Verifier,
			Analytics: r.Analytics,
		},
		r.Config.RateLimit,
		r.Clock,
		r.Logger,
	)
}

// Cleanup performs cleanup of all resources
func (r *CompositionRoot) Cleanup() error {
	var errors []error

	// Flush buffered analytics before the store goes away
	if r.Analytics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), analyticsDrainTimeout)
		if err := r.Analytics.Close(ctx); err != nil {
			errors = append(errors, fmt.Errorf("failed to drain analytics: %w", err))
		}
		cancel()
	}

	// Close L1 cache
	if l1BigCache, ok := r.L1Cache.(*l1.BigCache); ok {
		if err := l1BigCache.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close L1 cache: %w", err))
		}
	}

	if r.bucket != nil {
		if err := r.bucket.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close blob bucket: %w", err))
		}
	}

	if r.sqlStore != nil {
		if err := r.sqlStore.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close SQL store: %w", err))
		}
	}

	if r.KeyDB != nil {
		if err := r.KeyDB.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close KeyDB client: %w", err))
		}
	}

	// Sync logger
	if r.Logger != nil {
		if err := r.Logger.Sync(); err != nil {
			errors = append(errors, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	// Return first error if any
	if len(errors) > 0 {
		return errors[0]
	}

	return nil
}
