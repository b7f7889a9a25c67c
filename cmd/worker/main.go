// The worker runs the ingestion pipeline: database queue, scheduler,
// orchestrator, and the Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsflow/internal/domain/entity"
	pgRepo "newsflow/internal/infra/adapter/persistence/postgres"
	"newsflow/internal/infra/ai"
	"newsflow/internal/infra/db"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/infra/filecache"
	"newsflow/internal/infra/httpclient"
	"newsflow/internal/infra/notifier"
	"newsflow/internal/infra/scheduler"
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
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Idempotent schema evolution before anything touches the tables.
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

	aiClient := buildAIClient(logger, httpClient, cache)

	browser := extractor.NewBrowser()
	defer browser.Close()

	memoryRepo := pgRepo.NewDomainMemoryRepo(queue)
	memory := extractor.NewMemoryStore(memoryRepo)
	ext := extractor.New(httpClient, browser, memory, aiClient, extractor.DefaultConfig(), logger)
	aiClient.SetExtractor(ext)

	articleRepo := pgRepo.NewArticleRepo(queue)
	sourceRepo := pgRepo.NewSourceRepo(queue)
	categoryRepo := pgRepo.NewCategoryRepo(queue)
	scheduleRepo := pgRepo.NewScheduleRepo(queue)
	statsRepo := pgRepo.NewStatsRepo(queue)

	deps := scraper.Deps{
		Client:    httpClient,
		Extractor: ext,
		Browser:   browser,
		Analyzer:  aiClient,
		Ads:       aiClient,
		Snapshots: cache,
	}
	sourceMgr := sources.NewService(sourceRepo, articleRepo, scraper.NewRegistry(), deps, logger)
	enricher := enrich.NewService(articleRepo, aiClient, ext, logger)
	catService := categories.NewService(categoryRepo, logger)
	digestBuilder := digest.NewService(articleRepo, catService, aiClient, logger)

	telegram := buildTelegram(logger)
	orch := orchestrator.NewService(sourceMgr, enricher, digestBuilder, statsRepo, telegram, aiClient, logger)
	orch.FeedURL = os.Getenv("FEED_PUBLIC_URL")

	sched := scheduler.New(scheduleRepo, logger)
	sched.Register(entity.TaskNewsProcessing, func(ctx context.Context) error {
		_, err := orch.RunFullCycle(ctx)
		return err
	})
	sched.Register(entity.TaskTelegramDigest, func(ctx context.Context) error {
		_, err := orch.SendTelegramDigest(ctx)
		return err
	})
	sched.Register(entity.TaskDailySummaries, func(ctx context.Context) error {
		_, err := enricher.ProcessUnprocessed(ctx)
		return err
	})
	sched.Register(entity.TaskBackup, runBackupHook)
	if err := sched.Start(ctx); err != nil {
		logger.Error("scheduler start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer sched.Stop()

	startMetricsServer(ctx, logger)

	// Cache hygiene: sweep expired entries hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if purged, err := cache.Sweep(); err == nil && purged > 0 {
					logger.Debug("cache sweep", slog.Int("purged", purged))
				}
			}
		}
	}()

	logger.Info("worker running")
	<-ctx.Done()
	logger.Info("worker shutting down")
}

// buildAIClient selects the configured provider, falling back to noop when
// AI is unconfigured so the pipeline still ingests.
func buildAIClient(logger *slog.Logger, httpClient *httpclient.Client, cache *filecache.Cache) *ai.Client {
	cfg := ai.LoadConfigFromEnv()
	provider, err := ai.NewProvider(cfg, ai.ProviderDeps{HTTP: httpClient})
	if err != nil {
		logger.Warn("AI provider unavailable, enrichment will produce neutral results",
			slog.String("provider", cfg.Provider), slog.Any("error", err))
		provider = ai.NewNoOpProvider()
	} else {
		logger.Info("AI provider configured",
			slog.String("provider", provider.Name()),
			slog.String("model", cfg.Model))
	}
	return ai.NewClient(provider, cache, logger)
}

func buildTelegram(logger *slog.Logger) orchestrator.DigestSender {
	cfg := notifier.LoadTelegramConfigFromEnv()
	if !cfg.Enabled {
		logger.Info("telegram digest disabled (no token or chat id)")
		return nil
	}
	tg, err := notifier.NewTelegram(cfg, logger)
	if err != nil {
		logger.Error("telegram init failed", slog.Any("error", err))
		return nil
	}
	logger.Info("telegram digest enabled", slog.Int64("chat_id", cfg.NewsChatID))
	return tg
}

// runBackupHook invokes the external backup command named in BACKUP_COMMAND.
// The script itself lives outside this process.
func runBackupHook(ctx context.Context) error {
	command := os.Getenv("BACKUP_COMMAND")
	if command == "" {
		slog.Info("backup task enabled but BACKUP_COMMAND unset, skipping")
		return nil
	}
	cmd := exec.CommandContext(ctx, command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("backup command failed: %w (output: %s)", err, out)
	}
	slog.Info("backup completed", slog.String("command", command))
	return nil
}

func startMetricsServer(ctx context.Context, logger *slog.Logger) {
	port := 9090
	if raw := os.Getenv("METRICS_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			port = v
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
