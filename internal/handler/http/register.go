package handler

import (
	"net/http"

	"newsflow/internal/handler/http/requestid"
	"newsflow/internal/handler/http/respond"
	"newsflow/internal/infra/dbqueue"
	"newsflow/internal/infra/extractor"
	"newsflow/internal/repository"
	"newsflow/internal/usecase/categories"
	"newsflow/internal/usecase/enrich"
	"newsflow/internal/usecase/orchestrator"
	"newsflow/internal/usecase/sources"
)

// Services bundles everything the API surface needs.
type Services struct {
	Articles     repository.ArticleRepository
	Sources      repository.SourceRepository
	Schedule     repository.ScheduleRepository
	Stats        repository.StatsRepository
	Categories   *categories.Service
	SourceMgr    *sources.Service
	Enrich       *enrich.Service
	Orchestrator *orchestrator.Service
	Queue        *dbqueue.Queue
	Memory       *extractor.MemoryStore
}

// Register wires every route onto the mux, wrapped in request-id middleware.
func Register(mux *http.ServeMux, svc Services) http.Handler {
	feed := FeedHandler{Articles: svc.Articles, Categories: svc.Categories}
	article := ArticleHandler{Articles: svc.Articles, Categories: svc.Categories}
	search := SearchHandler{Articles: svc.Articles, Categories: svc.Categories}
	cats := CategoriesHandler{Articles: svc.Articles, Categories: svc.Categories}
	src := SourcesHandler{Sources: svc.SourceMgr}
	process := ProcessHandler{Orchestrator: svc.Orchestrator, Enrich: svc.Enrich}
	schedule := ScheduleHandler{Schedule: svc.Schedule}
	stats := StatsHandler{
		Queue: svc.Queue, Memory: svc.Memory, Stats: svc.Stats,
		Articles: svc.Articles, Sources: svc.Sources,
	}

	mux.Handle("GET /feed", feed)
	mux.Handle("GET /article/{id}", article)
	mux.Handle("GET /categories", cats)
	mux.Handle("GET /search", search)

	mux.HandleFunc("POST /process/run", process.Run)
	mux.HandleFunc("POST /telegram/send-digest", process.SendDigest)
	mux.HandleFunc("POST /summaries/generate", process.GenerateSummaries)

	mux.HandleFunc("GET /sources", src.List)
	mux.HandleFunc("POST /sources", src.Create)
	mux.HandleFunc("PUT /sources/{id}", src.Update)
	mux.HandleFunc("DELETE /sources/{id}", src.Delete)
	mux.HandleFunc("POST /sources/{id}/test", src.Test)

	mux.HandleFunc("GET /schedule/settings", schedule.List)
	mux.HandleFunc("PUT /schedule/settings/{task_name}", schedule.Update)
	mux.HandleFunc("GET /schedule/status", schedule.Status)

	mux.HandleFunc("GET /stats/queue", stats.QueueStats)
	mux.HandleFunc("GET /stats/extractor", stats.ExtractorStats)
	mux.HandleFunc("GET /stats/dashboard", stats.Dashboard)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestid.Middleware(mux)
}
