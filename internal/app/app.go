// Package app builds and runs the scrape agent service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blackbox-ai/scrape-agent/internal/api"
	blobgcs "github.com/blackbox-ai/scrape-agent/internal/blob/gcs"
	bloblocal "github.com/blackbox-ai/scrape-agent/internal/blob/local"
	blobmemory "github.com/blackbox-ai/scrape-agent/internal/blob/memory"
	"github.com/blackbox-ai/scrape-agent/internal/clock/system"
	"github.com/blackbox-ai/scrape-agent/internal/config"
	"github.com/blackbox-ai/scrape-agent/internal/crawl"
	"github.com/blackbox-ai/scrape-agent/internal/extract"
	collyfetcher "github.com/blackbox-ai/scrape-agent/internal/fetcher/colly"
	headlessfetcher "github.com/blackbox-ai/scrape-agent/internal/fetcher/headless"
	"github.com/blackbox-ai/scrape-agent/internal/hash/sha256"
	"github.com/blackbox-ai/scrape-agent/internal/headless/detector"
	"github.com/blackbox-ai/scrape-agent/internal/id/uuid"
	"github.com/blackbox-ai/scrape-agent/internal/llm"
	"github.com/blackbox-ai/scrape-agent/internal/logging"
	publishmemory "github.com/blackbox-ai/scrape-agent/internal/publish/memory"
	publishpubsub "github.com/blackbox-ai/scrape-agent/internal/publish/pubsub"
	"github.com/blackbox-ai/scrape-agent/internal/ratelimit"
	"github.com/blackbox-ai/scrape-agent/internal/relevance"
	"github.com/blackbox-ai/scrape-agent/internal/scraper"
	storefs "github.com/blackbox-ai/scrape-agent/internal/store/fs"
	storememory "github.com/blackbox-ai/scrape-agent/internal/store/memory"
	storepostgres "github.com/blackbox-ai/scrape-agent/internal/store/postgres"
	"github.com/blackbox-ai/scrape-agent/internal/telemetry"
)

// App contains the wired application dependencies.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	service *scraper.Service
	server  *api.Server

	headless  *headlessfetcher.Fetcher
	pgStore   *storepostgres.Store
	gcsBlob   *blobgcs.BlobStore
	publisher *publishpubsub.Publisher
}

// Build constructs the application from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	telemetry.Init()

	app := &App{cfg: cfg, logger: logger}

	store, err := app.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := app.setupBlob(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	logger.Info("using colly probe fetcher", zap.String("user_agent", cfg.Scraper.UserAgent))

	var headless scraper.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = hf
			headless = hf
			logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	var completer scraper.Completer
	llmClient := llm.New(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger.Named("llm"))
	if llmClient.Configured() {
		completer = llmClient
		logger.Info("llm backend configured", zap.String("model", cfg.LLM.Model))
	} else {
		logger.Warn("no llm backend configured, ai answers fall back to extraction")
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Scraper.RateLimitRPS,
		DefaultBurst: cfg.Scraper.RateLimitBurst,
	})

	crawler := crawl.New(crawl.Config{
		MaxDepth: cfg.Scraper.MaxDepthDefault,
		MaxPages: cfg.Scraper.MaxPagesDefault,
	}, logger.Named("crawl"))

	var extraHeaders http.Header
	if len(cfg.Scraper.Headers) > 0 {
		extraHeaders = http.Header{}
		for key, value := range cfg.Scraper.Headers {
			extraHeaders.Set(key, value)
		}
	}

	service, err := scraper.NewService(scraper.ServiceConfig{
		Concurrency:   cfg.Scraper.Concurrency,
		UserAgent:     cfg.Scraper.UserAgent,
		RespectRobots: cfg.Scraper.RespectRobots,
		ExtraHeaders:  extraHeaders,
		ArchiveRaw:    cfg.Scraper.ArchiveRaw,
	}, scraper.ServiceDeps{
		Fetcher:  probeFetcher,
		Headless: headless,
		Detector: detector.NewHeuristic(cfg.Headless.PromotionThresh),
		Limiter:  limiter,
		Extract: scraper.ExtractFuncs{
			Page:  extract.Page,
			Links: extract.Links,
		},
		Crawl: func(ctx context.Context, seedURL string, maxDepth, maxPages int, visit func(ctx context.Context, pageURL string, depth int) ([]string, error)) error {
			return crawler.Crawl(ctx, seedURL, maxDepth, maxPages, visit)
		},
		Store:     store,
		Blob:      blob,
		Publisher: publisher,
		Completer: completer,
		Relevance: scraper.RelevanceFuncs{
			FilterPages: relevance.FilterPages,
			Sentences:   relevance.Sentences,
			PageText:    relevance.PageText,
		},
		Prompts: scraper.PromptFuncs{
			BuildPagesPrompt: llm.BuildPagesPrompt,
			Unhelpful:        llm.Unhelpful,
		},
		Hasher: sha256.New(),
		Clock:  system.New(),
		IDs:    uuid.New(),
		Logger: logger.Named("scraper"),
	})
	if err != nil {
		return nil, fmt.Errorf("service init failed: %w", err)
	}

	app.service = service
	app.server = api.NewServer(service, cfg, logger.Named("api"))
	return app, nil
}

// Service exposes the scrape service for CLI use.
func (a *App) Service() *scraper.Service {
	return a.service
}

// Logger exposes the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()
	a.logger.Info("shutdown complete")
	return nil
}

// Close releases held clients and pools.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.gcsBlob != nil {
		if err := a.gcsBlob.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func (a *App) setupStore(ctx context.Context) (scraper.AgentStore, error) {
	switch a.cfg.Store.Provider {
	case "fs":
		a.logger.Info("using filesystem agent store", zap.String("data_dir", a.cfg.Store.DataDir))
		store, err := storefs.New(storefs.Config{DataDir: a.cfg.Store.DataDir}, a.logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("fs store init failed: %w", err)
		}
		return store, nil
	case "postgres":
		a.logger.Info("using postgres agent store", zap.String("table", a.cfg.Store.Table))
		store, err := storepostgres.New(ctx, storepostgres.Config{
			DSN:             a.cfg.Store.DSN,
			Table:           a.cfg.Store.Table,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = store
		return store, nil
	default:
		a.logger.Info("using in-memory agent store")
		return storememory.New(), nil
	}
}

func (a *App) setupBlob(ctx context.Context) (scraper.BlobStore, error) {
	switch a.cfg.Blob.Provider {
	case "gcs":
		a.logger.Info("using gcs blob store", zap.String("bucket", a.cfg.Blob.Bucket))
		blob, err := blobgcs.Connect(ctx, blobgcs.Config{Bucket: a.cfg.Blob.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcsBlob = blob
		return blob, nil
	case "local":
		a.logger.Info("using local blob store", zap.String("base_dir", a.cfg.Blob.BaseDir))
		blob, err := bloblocal.New(bloblocal.Config{BaseDir: a.cfg.Blob.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blob, nil
	case "memory":
		a.logger.Info("using in-memory blob store")
		return blobmemory.New(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (scraper.Publisher, error) {
	switch a.cfg.Publish.Provider {
	case "pubsub":
		a.logger.Info("using pubsub publisher", zap.String("project", a.cfg.Publish.ProjectID))
		pub, err := publishpubsub.Connect(ctx, publishpubsub.Config{ProjectID: a.cfg.Publish.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.publisher = pub
		return pub, nil
	case "memory":
		a.logger.Info("using in-memory publisher")
		return publishmemory.New(), nil
	default:
		return nil, nil
	}
}
