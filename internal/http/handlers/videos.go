package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reelmint/internal/domain"
	"reelmint/internal/providers/video"
)

type videoSubmitRequest struct {
	Provider    string   `json:"provider" validate:"required"`
	Prompt      string   `json:"prompt" validate:"max=4000"`
	Model       string   `json:"model" validate:"required,max=100"`
	DurationSec int      `json:"duration_secs" validate:"omitempty,min=1,max=60"`
	AspectRatio string   `json:"aspect_ratio" validate:"omitempty,oneof=16:9 9:16 1:1 4:3"`
	Quality     string   `json:"quality" validate:"omitempty,max=32"`
	ImageURLs   []string `json:"image_urls" validate:"omitempty,max=4,dive,url"`
	Mode        string   `json:"mode" validate:"omitempty,max=32"`
	OutputCount int      `json:"output_count" validate:"omitempty,min=1,max=4"`
	WithAudio   bool     `json:"with_audio"`
}

type videoTaskResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	Provider       string              `json:"provider"`
	ProviderTaskID string              `json:"provider_task_id,omitempty"`
	Prompt         string              `json:"prompt"`
	Model          string              `json:"model"`
	Outputs        []domain.TaskOutput `json:"outputs,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	CreditsCost    int64               `json:"credits_cost"`
	CreatedAt      time.Time           `json:"created_at"`
	SubmittedAt    *time.Time          `json:"submitted_at,omitempty"`
	LastCheckedAt  *time.Time          `json:"last_checked_at,omitempty"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
}

func toTaskResponse(t *domain.VideoTask) videoTaskResponse {
	return videoTaskResponse{
		ID:             t.ID,
		Status:         string(t.Status),
		Provider:       t.Provider,
		ProviderTaskID: t.ProviderTaskID,
		Prompt:         t.Prompt,
		Model:          t.Model,
		Outputs:        t.Outputs,
		FailureReason:  t.FailureReason,
		CreditsCost:    t.CreditsReserved,
		CreatedAt:      t.CreatedAt,
		SubmittedAt:    t.SubmittedAt,
		LastCheckedAt:  t.LastCheckedAt,
		FinishedAt:     t.FinishedAt,
	}
}

func (a *App) VideosSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req videoSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.fail(w, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error()))
		return
	}

	t, err := a.Tasks.CreateAndSubmit(r.Context(), userID, req.Provider, video.SubmitRequest{
		Prompt:      req.Prompt,
		Model:       req.Model,
		DurationSec: req.DurationSec,
		AspectRatio: req.AspectRatio,
		Quality:     req.Quality,
		ImageURLs:   req.ImageURLs,
		Mode:        req.Mode,
		OutputCount: req.OutputCount,
		WithAudio:   req.WithAudio,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toTaskResponse(t))
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	t, err := a.Tasks.Get(r.Context(), userID, chi.URLParam(r, "task_id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(t))
}

// VideoRefresh triggers the poll reconciliation path. The id may be the
// task id or the provider's task id.
func (a *App) VideoRefresh(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	t, err := a.Tasks.Refresh(r.Context(), userID, chi.URLParam(r, "task_id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(t))
}

func (a *App) VideoCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	t, err := a.Tasks.Cancel(r.Context(), userID, chi.URLParam(r, "task_id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(t))
}

func (a *App) VideoDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Tasks.Delete(r.Context(), userID, chi.URLParam(r, "task_id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) VideosList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	tasks, err := a.Tasks.List(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	items := make([]videoTaskResponse, 0, len(tasks))
	for i := range tasks {
		items = append(items, toTaskResponse(&tasks[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
