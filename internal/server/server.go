package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/contextforge/corpus/config"
	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/indexer"
	"github.com/contextforge/corpus/internal/manage"
	"github.com/contextforge/corpus/internal/search"
	"github.com/contextforge/corpus/internal/store"
	"github.com/contextforge/corpus/internal/telemetry"
)

// Version is stamped at build time.
var Version = "dev"

// Run wires storage, the ingestion pipeline and the retrieval service into an
// HTTP API and blocks serving it.
func Run(cfg *appconfig.Config) error {
	e := newEcho()

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	if err := st.EnsureSchema(ctx, cfg.Embedding.Dimensions); err != nil {
		return fmt.Errorf("schema init: %w", err)
	}

	tele, _, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    "corpus",
		ServiceVersion: Version,
		Enabled:        cfg.Telemetry.Enabled,
		MetricsPort:    cfg.Telemetry.MetricsPort,
	})
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer func() { _ = tele.Shutdown(context.Background()) }()

	gen, err := embedding.NewDeterministic(cfg.Embedding.Dimensions)
	if err != nil {
		return err
	}

	ix := indexer.New(st, gen, indexer.Options{
		ChunkSize:         cfg.Indexing.ChunkSize,
		ChunkOverlap:      cfg.Indexing.ChunkOverlap,
		IncludeExtensions: cfg.Indexing.IncludeExtensions,
		ExcludeDirs:       cfg.Indexing.ExcludeDirs,
		MaxFileSizeBytes:  cfg.Indexing.MaxFileSizeBytes,
		FetchTimeout:      cfg.Indexing.FetchTimeout,
		MaxFetchChars:     cfg.Indexing.MaxFetchChars,
	}, nil)
	searchSvc := search.New(st, gen, search.Options{
		DefaultTopK:   cfg.Query.DefaultTopK,
		MaxTopK:       cfg.Query.MaxTopK,
		SnippetLength: cfg.Query.SnippetLength,
	}, nil)
	manageSvc := manage.New(st, nil)

	e.GET("/healthz", func(c echo.Context) error {
		if err := manageSvc.Health(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secret := []byte(cfg.Server.JWTSecret)
	api := e.Group("/api")
	(&IndexHandler{Indexer: ix}).Register(api.Group("/index"), secret)
	(&QueryHandler{Search: searchSvc, Chunks: st}).Register(api, secret)
	(&AdminHandler{Manage: manageSvc}).Register(api, secret)
	(&MemoryHandler{Store: st, Gen: gen}).Register(api.Group("/memories"), secret)

	if cfg.Scheduler.Enabled {
		var rdb *redis.Client
		if cfg.Storage.Redis.Host != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
			}
		}
		sched := &Scheduler{Indexer: ix, Cfg: cfg.Scheduler, Rdb: rdb, Stop: make(chan struct{})}
		sched.Start()
	}

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":10030"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// newEcho builds the router with the recover middleware, CORS and a unified
// JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	return e
}
