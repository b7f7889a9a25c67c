package handler

import (
	"net/http"
	"time"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/usecase/enrich"
	"newsflow/internal/usecase/orchestrator"
)

// ProcessHandler serves the operational POST endpoints: run a cycle, send
// the digest, generate summaries.
type ProcessHandler struct {
	Orchestrator *orchestrator.Service
	Enrich       *enrich.Service
}

func (h ProcessHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.Orchestrator.RunFullCycle(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"fetched":   report.Fetch.Inserted,
		"enriched":  report.Enrich.Processed,
		"api_calls": report.APICalls,
		"errors":    report.Fetch.Errors + report.Enrich.Errors,
		"duration":  report.Duration.Seconds(),
	})
}

func (h ProcessHandler) SendDigest(w http.ResponseWriter, r *http.Request) {
	report, err := h.Orchestrator.SendTelegramDigest(r.Context())
	if err != nil {
		// Partial delivery still reports what went out.
		payload := map[string]any{"error": err.Error()}
		if report != nil {
			payload["parts_built"] = report.PartsBuilt
			payload["parts_sent"] = report.PartsSent
		}
		respond.JSON(w, http.StatusBadGateway, payload)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"parts_built": report.PartsBuilt,
		"parts_sent":  report.PartsSent,
	})
}

func (h ProcessHandler) GenerateSummaries(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force_regenerate") == "true"

	var stats *enrich.Stats
	var err error
	if force {
		stats, err = h.Enrich.ReprocessFailed(r.Context(), true)
	} else {
		stats, err = h.Enrich.ProcessUnprocessed(r.Context())
	}
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"processed": stats.Processed,
		"errors":    stats.Errors,
		"duration":  stats.Duration.Seconds(),
		"date":      dateOrToday(r.URL.Query().Get("date")),
	})
}

func dateOrToday(raw string) string {
	if raw != "" {
		if _, err := time.Parse("2006-01-02", raw); err == nil {
			return raw
		}
	}
	return time.Now().UTC().Format("2006-01-02")
}
