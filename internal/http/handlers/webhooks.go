package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reelmint/internal/domain"
	"reelmint/internal/telemetry"
)

// VideoWebhook receives provider callbacks. The signature over the
// query parameters is verified before the body is read; an invalid
// signature yields 401 and no state change. A verified callback is
// always acknowledged with 200, whether or not it changed state, so
// providers do not retry-storm us.
func (a *App) VideoWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()
	taskID := q.Get("task_id")
	timestamp := q.Get("timestamp")
	signature := q.Get("signature")

	if err := a.Verifier.Verify(taskID, timestamp, signature); err != nil {
		telemetry.WebhookRejected.Inc()
		a.Logger.Warn().Err(err).Str("provider", provider).Str("task_id", taskID).Msg("webhook rejected")
		a.error(w, http.StatusUnauthorized, "invalid_signature", "callback verification failed")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable payload")
		return
	}

	t, err := a.Tasks.ApplyCallback(r.Context(), provider, taskID, payload)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Unknown task: acknowledge so the provider stops retrying.
			a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusBadRequest, "bad_request", "unparseable payload")
		default:
			a.fail(w, err)
		}
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "task_status": string(t.Status)})
}
