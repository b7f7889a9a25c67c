// The api server exposes the read API over the same database queue the
// worker uses: feed, article, categories, search, operational endpoints,
// schedule settings and stats.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	handler "newsflow/internal/handler/http"
	pgRepo "newsflow/internal/infra/adapter/persistence/postgres"
	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/db"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/filecache"
	"newsflow/internal/infra/httpclient"
	"newsflow/internal/infra/notifier"
	"newsflow/internal/infra/scraper"
	"newsflow/internal/observability/logging"
	"newsflow/internal/usecase/categories"
	"newsflow/internal/usecase/digest"
	"newsflow/internal/usecase/enrich"
	"newsflow/internal/usecase/orchestrator"
	"newsflow/internal/usecase/sources"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database := db.Open()
	defer func() { _ = database.Close() }()

	if err := db.NewManager(db.Migrations(), logger).Run(ctx, database); err != nil {
		logger.Error("migrations failed", slog.Any("error", err))
		os.Exit(1)
	}

	queue := dbqueue.New(database, dbqueue.DefaultConfig(), logger)
	queue.Start(ctx)
	defer queue.Stop()

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "./cache"
	}
	cache, err := filecache.New(cacheDir)
	if err != nil {
		logger.Error("cache init failed", slog.Any("error", err))
		os.Exit(1)
	}

	httpClient := httpclient.New(httpclient.LoadConfigFromEnv())

	aiCfg := ai.LoadConfigFromEnv()
	provider, err := ai.NewProvider(aiCfg, ai.ProviderDeps{HTTP: httpClient})
	if err != nil {
		logger.Warn("AI provider unavailable", slog.Any("error", err))
		provider = ai.NewNoOpProvider()
	}
	aiClient := ai.NewClient(provider, cache, logger)

	memory := extractor.NewMemoryStore(pgRepo.NewDomainMemoryRepo(queue))
	// The API process extracts without a browser; headless rendering stays
	// in the worker.
	ext := extractor.New(httpClient, nil, memory, aiClient,
		extractor.Config{LearningEnabled: true, BrowserEnabled: false}, logger)
	aiClient.SetExtractor(ext)

	articleRepo := pgRepo.NewArticleRepo(queue)
	sourceRepo := pgRepo.NewSourceRepo(queue)
	categoryRepo := pgRepo.NewCategoryRepo(queue)
	scheduleRepo := pgRepo.NewScheduleRepo(queue)
	statsRepo := pgRepo.NewStatsRepo(queue)

	deps := scraper.Deps{
		Client: httpClient, Extractor: ext, Analyzer: aiClient,
		Ads: aiClient, Snapshots: cache,
	}
	sourceMgr := sources.NewService(sourceRepo, articleRepo, scraper.NewRegistry(), deps, logger)
	enricher := enrich.NewService(articleRepo, aiClient, ext, logger)
	catService := categories.NewService(categoryRepo, logger)
	digestBuilder := digest.NewService(articleRepo, catService, aiClient, logger)

	var sender orchestrator.DigestSender
	if tgCfg := notifier.LoadTelegramConfigFromEnv(); tgCfg.Enabled {
		if tg, err := notifier.NewTelegram(tgCfg, logger); err == nil {
			sender = tg
		} else {
			logger.Warn("telegram init failed", slog.Any("error", err))
		}
	}
	orch := orchestrator.NewService(sourceMgr, enricher, digestBuilder, statsRepo, sender, aiClient, logger)
	orch.FeedURL = os.Getenv("FEED_PUBLIC_URL")

	mux := http.NewServeMux()
	root := handler.Register(mux, handler.Services{
		Articles:     articleRepo,
		Sources:      sourceRepo,
		Schedule:     scheduleRepo,
		Stats:        statsRepo,
		Categories:   catService,
		SourceMgr:    sourceMgr,
		Enrich:       enricher,
		Orchestrator: orch,
		Queue:        queue,
		Memory:       memory,
	})

	port := 8080
	if raw := os.Getenv("API_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			port = v
		}
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api server listening", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
	}
}
