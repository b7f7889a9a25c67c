// Package orchestrator drives one full pipeline cycle (fetch, enrich, stats)
// and the digest dispatch.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/infra/notifier"
	"newsflow/internal/observability/metrics"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/digest"
	"newsflow/internal/usecase/enrich"
	"newsflow/internal/usecase/sources"
)

// interPartDelay separates split digest parts.
const interPartDelay = time.Second

// DigestSender is the Telegram facade slice the orchestrator uses.
type DigestSender interface {
	SendDigestPart(ctx context.Context, html string, buttons []notifier.Button) error
}

// APICallCounter reports the AI client's cumulative request counter.
type APICallCounter interface {
	APICalls() int64
}

// CycleReport aggregates one full cycle for logging and the stats row.
type CycleReport struct {
	Fetch       *sources.FetchStats
	Enrich      *enrich.Stats
	APICalls    int64
	Duration    time.Duration
	FetchTime   time.Duration
	EnrichTime  time.Duration
	SampleError string
}

// Service is the orchestrator.
type Service struct {
	Sources *sources.Service
	Enrich  *enrich.Service
	Digest  *digest.Service
	Stats   repository.StatsRepository
	Sender  DigestSender
	AI      APICallCounter
	Logger  *slog.Logger

	// FeedURL is linked from the digest's inline keyboard when set.
	FeedURL string

	now func() time.Time
}

// NewService creates the orchestrator.
func NewService(src *sources.Service, enr *enrich.Service, dig *digest.Service, stats repository.StatsRepository, sender DigestSender, aiCounter APICallCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Sources: src,
		Enrich:  enr,
		Digest:  dig,
		Stats:   stats,
		Sender:  sender,
		AI:      aiCounter,
		Logger:  logger,
		now:     time.Now,
	}
}

// RunFullCycle performs fetch, enrichment (batched), and the daily stats
// upsert, capturing per-stage timings. Individual stage errors are recorded;
// only infrastructure failures (listing sources, stats write) propagate.
func (s *Service) RunFullCycle(ctx context.Context) (*CycleReport, error) {
	start := s.now()
	report := &CycleReport{}
	apiBefore := s.apiCalls()

	fetchStart := s.now()
	fetchStats, err := s.Sources.FetchFromAllSources(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch stage: %w", err)
	}
	report.Fetch = fetchStats
	report.FetchTime = s.now().Sub(fetchStart)

	enrichStart := s.now()
	enrichStats, err := s.Enrich.ProcessUnprocessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("enrich stage: %w", err)
	}
	report.Enrich = enrichStats
	report.EnrichTime = s.now().Sub(enrichStart)

	report.APICalls = s.apiCalls() - apiBefore
	report.Duration = s.now().Sub(start)

	errorsTotal := fetchStats.Errors + enrichStats.Errors
	metrics.CycleDuration.Observe(report.Duration.Seconds())
	if errorsTotal > 0 {
		metrics.CycleErrorsTotal.Add(float64(errorsTotal))
	}

	delta := entity.ProcessingStat{
		ArticlesFetched:       fetchStats.Inserted,
		ArticlesProcessed:     enrichStats.Processed,
		APICallsMade:          report.APICalls,
		ErrorsCount:           errorsTotal,
		ProcessingTimeSeconds: report.Duration.Seconds(),
	}
	if err := s.Stats.AddDaily(ctx, s.now(), delta); err != nil {
		return report, fmt.Errorf("stats upsert: %w", err)
	}

	s.Logger.Info("full cycle completed",
		slog.Int("sources", fetchStats.Sources),
		slog.Int64("fetched", fetchStats.Inserted),
		slog.Int64("enriched", enrichStats.Processed),
		slog.Int64("api_calls", report.APICalls),
		slog.Int64("errors", errorsTotal),
		slog.Duration("fetch_time", report.FetchTime),
		slog.Duration("enrich_time", report.EnrichTime),
		slog.Duration("duration", report.Duration))
	return report, nil
}

func (s *Service) apiCalls() int64 {
	if s.AI == nil {
		return 0
	}
	return s.AI.APICalls()
}

// DigestReport describes the dispatch outcome, including partial success.
type DigestReport struct {
	PartsBuilt int
	PartsSent  int
}

// SendTelegramDigest ensures today's summaries exist (an enrichment pass
// over anything pending), builds the digest and dispatches it with a short
// delay between split parts. Partial delivery is reported, not hidden.
func (s *Service) SendTelegramDigest(ctx context.Context) (*DigestReport, error) {
	if s.Sender == nil {
		return nil, fmt.Errorf("no telegram sender configured")
	}

	// Daily summaries must exist before the digest narrates them.
	if _, err := s.Enrich.ProcessUnprocessed(ctx); err != nil {
		s.Logger.Warn("pre-digest enrichment failed", slog.Any("error", err))
	}

	parts, err := s.Digest.Build(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("build digest: %w", err)
	}

	report := &DigestReport{PartsBuilt: len(parts)}
	var buttons []notifier.Button
	if s.FeedURL != "" {
		buttons = []notifier.Button{{Label: "Читать ленту", URL: s.FeedURL}}
	}

	for i, part := range parts {
		if i > 0 {
			select {
			case <-time.After(interPartDelay):
			case <-ctx.Done():
				return report, ctx.Err()
			}
		}
		if err := s.Sender.SendDigestPart(ctx, part, buttons); err != nil {
			s.Logger.Error("digest part failed",
				slog.Int("part", i+1), slog.Any("error", err))
			return report, fmt.Errorf("delivered %d/%d parts: %w", report.PartsSent, report.PartsBuilt, err)
		}
		report.PartsSent++
		metrics.DigestPartsSentTotal.Inc()
	}

	s.Logger.Info("digest dispatched",
		slog.Int("parts", report.PartsSent))
	return report, nil
}
