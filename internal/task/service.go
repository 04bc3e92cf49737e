// Package task owns the per-task lifecycle. ApplyStatusUpdate is the
// single entry point through which every status source (webhook, poll,
// sweep) mutates a task, serialized per task by the store's row lock.
package task

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reelmint/internal/domain"
	"reelmint/internal/events"
	"reelmint/internal/ledger"
	"reelmint/internal/providers/video"
	"reelmint/internal/telemetry"
	"reelmint/internal/webhook"
)

// UpdateSource identifies which delivery path produced a status update.
type UpdateSource string

const (
	SourceWebhook UpdateSource = "webhook"
	SourcePoll    UpdateSource = "poll"
	SourceSweep   UpdateSource = "sweep"
	SourceSubmit  UpdateSource = "submit"
)

// Pricing computes the credit cost of a submission.
type Pricing func(req video.SubmitRequest) int64

// DefaultPricing charges per requested output, scaled by duration in
// 5-second steps.
func DefaultPricing(req video.SubmitRequest) int64 {
	outputs := req.OutputCount
	if outputs < 1 {
		outputs = 1
	}
	steps := int64(req.DurationSec+4) / 5
	if steps < 1 {
		steps = 1
	}
	return 10 * steps * int64(outputs)
}

// Service is the video task state machine.
type Service struct {
	store     domain.Store
	ledger    *ledger.Ledger
	providers video.Registry
	hub       *events.Hub
	verifier  *webhook.Verifier
	logger    zerolog.Logger

	pricing       Pricing
	publicBaseURL string
}

func NewService(store domain.Store, ldg *ledger.Ledger, providers video.Registry, hub *events.Hub, verifier *webhook.Verifier, publicBaseURL string, logger zerolog.Logger) *Service {
	return &Service{
		store:         store,
		ledger:        ldg,
		providers:     providers,
		hub:           hub,
		verifier:      verifier,
		logger:        logger,
		pricing:       DefaultPricing,
		publicBaseURL: publicBaseURL,
	}
}

// SetPricing overrides the cost function.
func (s *Service) SetPricing(p Pricing) {
	if p != nil {
		s.pricing = p
	}
}

// CreateAndSubmit creates the task and reserves credits in one
// transaction, then submits the job to the provider. A reservation
// failure aborts the whole operation; a definitive provider rejection
// fails the task and refunds; an ambiguous transport failure leaves the
// task SUBMITTED for later reconciliation.
func (s *Service) CreateAndSubmit(ctx context.Context, userID, provider string, req video.SubmitRequest) (*domain.VideoTask, error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	if req.Prompt == "" && len(req.ImageURLs) == 0 {
		return nil, fmt.Errorf("%w: prompt or reference image required", domain.ErrValidation)
	}
	if req.OutputCount < 1 {
		req.OutputCount = 1
	}

	cost := s.pricing(req)
	now := time.Now().UTC()
	task := &domain.VideoTask{
		ID:              uuid.NewString(),
		UserID:          userID,
		Provider:        provider,
		Prompt:          req.Prompt,
		Model:           req.Model,
		DurationSec:     req.DurationSec,
		AspectRatio:     req.AspectRatio,
		Quality:         req.Quality,
		ImageURLs:       req.ImageURLs,
		Mode:            req.Mode,
		OutputCount:     req.OutputCount,
		WithAudio:       req.WithAudio,
		Status:          domain.TaskStatusPending,
		CreditsReserved: cost,
		CreatedAt:       now,
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		res, err := s.ledger.ReserveTx(ctx, tx, userID, task.ID, cost)
		if err != nil {
			return err
		}
		task.ReservationID = res.ID
		return tx.Tasks().Create(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	telemetry.TasksSubmitted.Inc()

	req.CallbackURL = s.callbackURL(provider, task.ID)
	providerTaskID, submitErr := adapter.Submit(ctx, req)

	switch {
	case submitErr == nil:
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			t, err := tx.Tasks().GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			t.ProviderTaskID = providerTaskID
			submitted := time.Now().UTC()
			t.SubmittedAt = &submitted
			// A webhook may already have advanced the task; never regress.
			if t.Status == domain.TaskStatusPending {
				t.Status = domain.TaskStatusSubmitted
			}
			task = t
			return tx.Tasks().Update(ctx, t)
		})
		if err != nil {
			return nil, fmt.Errorf("record submission: %w", err)
		}
		return task, nil

	case errors.Is(submitErr, domain.ErrSubmissionPending):
		// Outcome unknown: do not refund, leave the task SUBMITTED and let
		// poll/webhook/sweep resolve it.
		s.logger.Warn().Err(submitErr).Str("task_id", task.ID).Msg("ambiguous submission")
		err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			t, err := tx.Tasks().GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			if t.Status == domain.TaskStatusPending {
				t.Status = domain.TaskStatusSubmitted
				submitted := time.Now().UTC()
				t.SubmittedAt = &submitted
			}
			task = t
			return tx.Tasks().Update(ctx, t)
		})
		if err != nil {
			return nil, fmt.Errorf("record pending submission: %w", err)
		}
		return task, nil

	default:
		s.logger.Error().Err(submitErr).Str("task_id", task.ID).Msg("provider rejected submission")
		if _, err := s.ApplyStatusUpdate(ctx, task.ID, video.Status{
			State:  video.StateFailed,
			Reason: "submission failed: " + submitErr.Error(),
		}, SourceSubmit); err != nil {
			return nil, fmt.Errorf("record submission failure: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrProviderFailure, submitErr)
	}
}

// ApplyStatusUpdate reconciles one normalized status into the task row.
// Safe to call concurrently from any source for the same task: the row
// lock serializes callers and the terminal guard makes the first
// terminal write win, all later deliveries are no-ops.
func (s *Service) ApplyStatusUpdate(ctx context.Context, taskID string, st video.Status, source UpdateSource) (*domain.VideoTask, error) {
	var (
		result  *domain.VideoTask
		publish *events.TaskEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		publish = nil
		t, err := tx.Tasks().GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			result = t
			return nil
		}
		now := time.Now().UTC()
		t.LastCheckedAt = &now

		switch st.State {
		case video.StateProcessing:
			if t.Status == domain.TaskStatusSubmitted {
				t.Status = domain.TaskStatusProcessing
			}

		case video.StateCompleted:
			t.Status = domain.TaskStatusCompleted
			t.Outputs = toTaskOutputs(st.Outputs)
			t.FinishedAt = &now
			if err := s.settle(ctx, tx, t, true, ""); err != nil {
				return err
			}

		case video.StateFailed:
			t.Status = domain.TaskStatusFailed
			t.FailureReason = st.Reason
			t.FinishedAt = &now
			if err := s.settle(ctx, tx, t, false, st.Reason); err != nil {
				return err
			}
		}

		if err := tx.Tasks().Update(ctx, t); err != nil {
			return err
		}
		result = t
		if t.Status.IsTerminal() {
			publish = &events.TaskEvent{
				UserID:        t.UserID,
				TaskID:        t.ID,
				Status:        t.Status,
				Outputs:       t.Outputs,
				FailureReason: t.FailureReason,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if publish != nil {
		s.hub.Publish(*publish)
		switch publish.Status {
		case domain.TaskStatusCompleted:
			telemetry.TasksCompleted.Inc()
		case domain.TaskStatusFailed:
			telemetry.TasksFailed.Inc()
		}
		s.logger.Info().
			Str("task_id", taskID).
			Str("source", string(source)).
			Str("status", string(publish.Status)).
			Msg("task reached terminal state")
	}
	return result, nil
}

// settle applies the task's single ledger operation: charge on success,
// refund otherwise. The settled flag flips in the same transaction.
func (s *Service) settle(ctx context.Context, tx domain.Tx, t *domain.VideoTask, charge bool, reason string) error {
	if t.Settled {
		return nil
	}
	if charge {
		if _, err := s.ledger.SettleTx(ctx, tx, t.ReservationID); err != nil {
			return fmt.Errorf("settle reservation: %w", err)
		}
	} else {
		if reason == "" {
			reason = "task did not complete"
		}
		if _, err := s.ledger.ReleaseTx(ctx, tx, t.ReservationID, reason); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
		telemetry.CreditsRefunded.Add(float64(t.CreditsReserved))
	}
	t.Settled = true
	return nil
}

// ApplyCallback parses a verified provider payload and feeds it through
// ApplyStatusUpdate with source=webhook.
func (s *Service) ApplyCallback(ctx context.Context, provider, taskID string, payload []byte) (*domain.VideoTask, error) {
	adapter, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	st, err := adapter.ParseCallback(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.ApplyStatusUpdate(ctx, taskID, st, SourceWebhook)
}

// Refresh is the client-initiated reconciliation path: poll the
// provider now and apply the result. Safe to call repeatedly and
// concurrently with an in-flight webhook.
func (s *Service) Refresh(ctx context.Context, userID, idOrProviderID string) (*domain.VideoTask, error) {
	t, err := s.lookup(ctx, idOrProviderID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if t.Status.IsTerminal() {
		return t, nil
	}
	if t.ProviderTaskID == "" {
		// Nothing to poll yet; submission still unconfirmed.
		return t, nil
	}
	adapter, err := s.providers.Get(t.Provider)
	if err != nil {
		return nil, err
	}
	st, err := adapter.Poll(ctx, t.ProviderTaskID)
	if err != nil {
		// Transient poll failures are retried by the caller's next refresh.
		return nil, fmt.Errorf("poll provider: %w", err)
	}
	return s.ApplyStatusUpdate(ctx, t.ID, st, SourcePoll)
}

// Get returns the task if the caller owns it.
func (s *Service) Get(ctx context.Context, userID, taskID string) (*domain.VideoTask, error) {
	t, err := s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return t, nil
}

// List returns the caller's tasks, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]domain.VideoTask, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.Tasks().ListByUser(ctx, userID, limit)
}

// Cancel moves a non-terminal task to CANCELLED and refunds its
// reservation. Cancelling a terminal task is an idempotent no-op.
func (s *Service) Cancel(ctx context.Context, userID, taskID string) (*domain.VideoTask, error) {
	var (
		result  *domain.VideoTask
		publish *events.TaskEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		publish = nil
		t, err := tx.Tasks().GetForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if t.UserID != userID {
			return domain.ErrForbidden
		}
		if t.Status.IsTerminal() {
			result = t
			return nil
		}
		now := time.Now().UTC()
		t.Status = domain.TaskStatusCancelled
		t.FinishedAt = &now
		if err := s.settle(ctx, tx, t, false, "cancelled by user"); err != nil {
			return err
		}
		if err := tx.Tasks().Update(ctx, t); err != nil {
			return err
		}
		result = t
		publish = &events.TaskEvent{UserID: t.UserID, TaskID: t.ID, Status: t.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if publish != nil {
		s.hub.Publish(*publish)
	}
	return result, nil
}

// Delete removes a task. Non-terminal tasks must be cancelled first.
func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	t, err := s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if t.UserID != userID {
		return domain.ErrForbidden
	}
	if !t.Status.IsTerminal() {
		return domain.ErrTaskNotTerminal
	}
	return s.store.Tasks().Delete(ctx, taskID)
}

func (s *Service) lookup(ctx context.Context, idOrProviderID string) (*domain.VideoTask, error) {
	t, err := s.store.Tasks().GetByID(ctx, idOrProviderID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	for name := range s.providers {
		t, err := s.store.Tasks().GetByProviderTaskID(ctx, name, idOrProviderID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Service) callbackURL(provider, taskID string) string {
	if s.publicBaseURL == "" || s.verifier == nil {
		return ""
	}
	ts := time.Now().Unix()
	q := url.Values{}
	q.Set("task_id", taskID)
	q.Set("timestamp", fmt.Sprintf("%d", ts))
	q.Set("signature", s.verifier.Sign(taskID, ts))
	return fmt.Sprintf("%s/v1/webhooks/video/%s?%s", s.publicBaseURL, provider, q.Encode())
}

func toTaskOutputs(outputs []video.Output) []domain.TaskOutput {
	res := make([]domain.TaskOutput, 0, len(outputs))
	for _, o := range outputs {
		res = append(res, domain.TaskOutput{URL: o.URL, ThumbnailURL: o.ThumbnailURL})
	}
	return res
}
