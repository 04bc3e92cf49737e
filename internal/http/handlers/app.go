package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"reelmint/internal/domain"
	"reelmint/internal/events"
	"reelmint/internal/ledger"
	"reelmint/internal/middleware"
	"reelmint/internal/task"
	"reelmint/internal/webhook"
)

// App bundles the dependencies the HTTP handlers need.
type App struct {
	Tasks    *task.Service
	Ledger   *ledger.Ledger
	Hub      *events.Hub
	Verifier *webhook.Verifier
	Logger   zerolog.Logger

	Validate   *validator.Validate
	AdminToken string
	Heartbeat  time.Duration
}

func NewApp(tasks *task.Service, ldg *ledger.Ledger, hub *events.Hub, verifier *webhook.Verifier, logger zerolog.Logger) *App {
	return &App{
		Tasks:     tasks,
		Ledger:    ldg,
		Hub:       hub,
		Verifier:  verifier,
		Logger:    logger,
		Validate:  validator.New(),
		Heartbeat: 25 * time.Second,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// fail maps domain sentinels onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", "not enough credits")
	case errors.Is(err, domain.ErrForbidden):
		a.error(w, http.StatusForbidden, "forbidden", "task belongs to another user")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, domain.ErrTaskNotTerminal):
		a.error(w, http.StatusConflict, "task_active", "cancel the task before deleting it")
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, "provider_failure", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
