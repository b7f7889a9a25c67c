package handler

import (
	"encoding/json"
	"net/http"

	"newsflow/internal/handler/http/respond"
	"newsflow/internal/repository"
)

// ScheduleHandler serves the schedule settings contracts.
type ScheduleHandler struct {
	Schedule repository.ScheduleRepository
}

func (h ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Schedule.List(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"settings": settings})
}

type schedulePayload struct {
	Enabled      *bool             `json:"enabled"`
	ScheduleType string            `json:"schedule_type"`
	Hour         *int              `json:"hour"`
	Minute       *int              `json:"minute"`
	Weekdays     []int             `json:"weekdays"`
	Timezone     string            `json:"timezone"`
	TaskConfig   map[string]string `json:"task_config"`
}

func (h ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	taskName := r.PathValue("task_name")
	current, err := h.Schedule.Get(r.Context(), taskName)
	if err != nil {
		respond.SafeError(w, http.StatusNotFound, err)
		return
	}

	var payload schedulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respond.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if payload.Enabled != nil {
		current.Enabled = *payload.Enabled
	}
	if payload.ScheduleType != "" {
		current.ScheduleType = payload.ScheduleType
	}
	if payload.Hour != nil {
		current.Hour = *payload.Hour
	}
	if payload.Minute != nil {
		current.Minute = *payload.Minute
	}
	if payload.Weekdays != nil {
		current.Weekdays = payload.Weekdays
	}
	if payload.Timezone != "" {
		current.Timezone = payload.Timezone
	}
	if payload.TaskConfig != nil {
		current.TaskConfig = payload.TaskConfig
	}

	if err := current.Validate(); err != nil {
		respond.SafeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Schedule.Update(r.Context(), current); err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, current)
}

// Status reports per-task run state.
func (h ScheduleHandler) Status(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Schedule.List(r.Context())
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	type taskStatus struct {
		TaskName  string `json:"task_name"`
		Enabled   bool   `json:"enabled"`
		IsRunning bool   `json:"is_running"`
		LastRun   any    `json:"last_run"`
		NextRun   any    `json:"next_run"`
	}
	out := make([]taskStatus, 0, len(settings))
	for _, s := range settings {
		out = append(out, taskStatus{
			TaskName: s.TaskName, Enabled: s.Enabled, IsRunning: s.IsRunning,
			LastRun: s.LastRun, NextRun: s.NextRun,
		})
	}
	respond.JSON(w, http.StatusOK, map[string]any{"tasks": out})
}
