package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/stamp-dispenser/internal/api"
	"github.com/eugenenazirov/stamp-dispenser/internal/cache"
	"github.com/eugenenazirov/stamp-dispenser/internal/config"
	"github.com/eugenenazirov/stamp-dispenser/internal/storage"
)

const redisPingTimeout = 2 * time.Second

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	cache   cache.Cache
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	store := storage.NewMemoryStorage()
	if err := store.SetDenominations(cfg.InitialDenominations); err != nil {
		return nil, fmt.Errorf("failed to apply initial denominations: %w", err)
	}

	resultCache := NewCache(cfg, logger)
	handler := api.NewHandler(store,
		api.WithCache(resultCache),
		api.WithMaxRequest(cfg.MaxRequest),
		api.WithHandlerLogger(logger),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage: store,
		cache:   resultCache,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// NewCache selects the result cache: Redis when an address is configured and
// reachable at startup, otherwise an in-process map.
func NewCache(cfg config.Config, logger *zap.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory result cache", zap.Int("max_entries", cfg.CacheMaxEntries))
		return cache.NewMemoryCache(cfg.CacheMaxEntries)
	}

	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, falling back to in-memory result cache",
			zap.String("addr", cfg.RedisAddr),
			zap.Int("max_entries", cfg.CacheMaxEntries),
			zap.Error(err),
		)
		if closeErr := redisCache.Close(); closeErr != nil {
			logger.Warn("failed to close redis client", zap.Error(closeErr))
		}
		return cache.NewMemoryCache(cfg.CacheMaxEntries)
	}

	logger.Info("using redis result cache",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.CacheTTL),
	)
	return redisCache
}

// BuildRootHandler routes API requests and answers the root path with an endpoint index.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(indexResponse{
			Service: "stamp-dispenser",
			Endpoints: []string{
				"GET /api/health",
				"GET /api/denominations",
				"PUT /api/denominations",
				"POST /api/dispense",
			},
		})
	}))
	return mux
}

type indexResponse struct {
	Service   string   `json:"service"`
	Endpoints []string `json:"endpoints"`
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Close releases the result cache.
func (a *App) Close() error {
	if a.cache == nil {
		return nil
	}
	if err := a.cache.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}
