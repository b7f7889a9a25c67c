package handler

import (
	"net/http"
	"time"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/repository"
)

// StatsHandler serves the observability endpoints.
type StatsHandler struct {
	Queue    *dbqueue.Queue
	Memory   *extractor.MemoryStore
	Stats    repository.StatsRepository
	Articles repository.ArticleRepository
	Sources  repository.SourceRepository
}

// QueueStats serves GET /stats/queue.
func (h StatsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.Queue.Stats())
}

// ExtractorStats serves GET /stats/extractor: per-host learning summaries.
func (h StatsHandler) ExtractorStats(w http.ResponseWriter, r *http.Request) {
	type domainStats struct {
		Domain        string  `json:"domain"`
		BestMethod    string  `json:"best_method"`
		SuccessRate   float64 `json:"success_rate"`
		TotalAttempts int64   `json:"total_attempts"`
		Stable        bool    `json:"stable"`
		LearnedCount  int     `json:"learned_selectors"`
		ConsecFails   int     `json:"consecutive_fails"`
	}

	snapshot := h.Memory.Snapshot()
	out := make([]domainStats, 0, len(snapshot))
	for _, m := range snapshot {
		out = append(out, domainStats{
			Domain:        m.Domain,
			BestMethod:    m.BestMethod,
			SuccessRate:   m.SuccessRate(),
			TotalAttempts: m.TotalAttempts(),
			Stable:        m.Stable,
			LearnedCount:  len(m.SelectorRates),
			ConsecFails:   m.ConsecutiveFails,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"domains": out})
}

// Dashboard serves GET /stats/dashboard: aggregate totals.
func (h StatsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	articles, err := h.Articles.CountAll(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	srcCount, err := h.Sources.CountAll(ctx)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	ads, err := h.Articles.CountAdvertisements(ctx, 0)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	payload := map[string]any{
		"articles_total":       articles,
		"sources_total":        srcCount,
		"advertisements_total": ads,
	}
	if today, err := h.Stats.GetDaily(ctx, time.Now().UTC()); err == nil {
		payload["today"] = today
	}
	if recent, err := h.Stats.ListRecent(ctx, 7); err == nil {
		payload["recent_days"] = recent
	}
	respond.JSON(w, http.StatusOK, payload)
}
