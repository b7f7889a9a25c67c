package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/usecase/sources"
)

// SourcesHandler serves the source CRUD contracts.
type SourcesHandler struct {
	Sources *sources.Service
}

func (h SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sources.GetSources(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]SourceDTO, 0, len(list))
	for _, s := range list {
		out = append(out, sourceDTO(s))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"sources": out})
}

type sourcePayload struct {
	Name                 string            `json:"name"`
	SourceType           string            `json:"source_type"`
	URL                  string            `json:"url"`
	Enabled              *bool             `json:"enabled"`
	Config               map[string]string `json:"config"`
	FetchIntervalSeconds *int              `json:"fetch_interval_seconds"`
}

func (h SourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload sourcePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	in := sources.CreateInput{
		Name:       payload.Name,
		SourceType: payload.SourceType,
		URL:        payload.URL,
		Enabled:    payload.Enabled == nil || *payload.Enabled,
		Config:     payload.Config,
	}
	if payload.FetchIntervalSeconds != nil {
		in.FetchIntervalSeconds = *payload.FetchIntervalSeconds
	}

	src, err := h.Sources.CreateSource(r.Context(), in)
	if err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	respond.JSON(w, http.StatusCreated, sourceDTO(src))
}

func (h SourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload sourcePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	in := sources.UpdateInput{ID: id, Config: payload.Config, Enabled: payload.Enabled,
		FetchIntervalSeconds: payload.FetchIntervalSeconds}
	if payload.Name != "" {
		in.Name = &payload.Name
	}
	if payload.URL != "" {
		in.URL = &payload.URL
	}
	if payload.SourceType != "" {
		in.SourceType = &payload.SourceType
	}

	src, err := h.Sources.UpdateSource(r.Context(), in)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, sources.ErrSourceNotFound) {
			code = http.StatusNotFound
		}
		respond.SafeError(w, code, err)
		return
	}
	respond.JSON(w, http.StatusOK, sourceDTO(src))
}

func (h SourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deleteArticles := r.URL.Query().Get("delete_articles") == "true"
	if err := h.Sources.DeleteSource(r.Context(), id, deleteArticles); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, sources.ErrSourceNotFound) {
			code = http.StatusNotFound
		}
		respond.SafeError(w, code, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h SourcesHandler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Sources.TestSourceConnection(r.Context(), id); err != nil {
		respond.JSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
