package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"reelmint/internal/domain"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	q querier
}

const taskColumns = `
id, seq, user_id, provider, provider_task_id,
prompt, model, duration_secs, aspect_ratio, quality, image_urls, mode, output_count, with_audio,
status, outputs, failure_reason,
credits_reserved, reservation_id, settled,
created_at, submitted_at, last_checked_at, finished_at`

// Create inserts a new task row and fills in its internal sequence id.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.VideoTask) error {
	imageURLs, err := json.Marshal(task.ImageURLs)
	if err != nil {
		return fmt.Errorf("marshal image urls: %w", err)
	}
	outputs, err := json.Marshal(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	query := `
INSERT INTO video_tasks (
  id, user_id, provider, provider_task_id,
  prompt, model, duration_secs, aspect_ratio, quality, image_urls, mode, output_count, with_audio,
  status, outputs, failure_reason,
  credits_reserved, reservation_id, settled,
  created_at, submitted_at, last_checked_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
RETURNING seq;
`
	row := r.q.QueryRow(ctx, query,
		task.ID,
		task.UserID,
		task.Provider,
		nullableString(task.ProviderTaskID),
		task.Prompt,
		task.Model,
		task.DurationSec,
		task.AspectRatio,
		task.Quality,
		imageURLs,
		task.Mode,
		task.OutputCount,
		task.WithAudio,
		task.Status,
		outputs,
		task.FailureReason,
		task.CreditsReserved,
		nullableString(task.ReservationID),
		task.Settled,
		task.CreatedAt,
		task.SubmittedAt,
		task.LastCheckedAt,
		task.FinishedAt,
	)
	return row.Scan(&task.Seq)
}

// GetByID fetches a task by its external id.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.VideoTask, error) {
	query := `SELECT ` + taskColumns + ` FROM video_tasks WHERE id = $1;`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// GetByProviderTaskID fetches the task the provider knows by its own
// id.
func (r *TaskRepositoryPG) GetByProviderTaskID(ctx context.Context, provider, providerTaskID string) (*domain.VideoTask, error) {
	query := `SELECT ` + taskColumns + ` FROM video_tasks WHERE provider = $1 AND provider_task_id = $2;`
	return r.scanOne(r.q.QueryRow(ctx, query, provider, providerTaskID))
}

// GetForUpdate locks the task row for the rest of the transaction,
// serializing concurrent status updates for the same task.
func (r *TaskRepositoryPG) GetForUpdate(ctx context.Context, id string) (*domain.VideoTask, error) {
	query := `SELECT ` + taskColumns + ` FROM video_tasks WHERE id = $1 FOR UPDATE;`
	return r.scanOne(r.q.QueryRow(ctx, query, id))
}

// Update rewrites the mutable columns. The request snapshot columns are
// write-once and deliberately excluded.
func (r *TaskRepositoryPG) Update(ctx context.Context, task *domain.VideoTask) error {
	outputs, err := json.Marshal(task.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	query := `
UPDATE video_tasks
SET provider_task_id = $2,
    status = $3,
    outputs = $4,
    failure_reason = $5,
    reservation_id = $6,
    settled = $7,
    submitted_at = $8,
    last_checked_at = $9,
    finished_at = $10
WHERE id = $1;
`
	tag, err := r.q.Exec(ctx, query,
		task.ID,
		nullableString(task.ProviderTaskID),
		task.Status,
		outputs,
		task.FailureReason,
		nullableString(task.ReservationID),
		task.Settled,
		task.SubmittedAt,
		task.LastCheckedAt,
		task.FinishedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes the task row.
func (r *TaskRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM video_tasks WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByUser returns the user's tasks, newest first.
func (r *TaskRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.VideoTask, error) {
	query := `SELECT ` + taskColumns + ` FROM video_tasks WHERE user_id = $1 ORDER BY seq DESC LIMIT $2;`
	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

// ListStaleSubmitted returns SUBMITTED tasks older than the cutoff,
// oldest first, for the reconciliation sweep.
func (r *TaskRepositoryPG) ListStaleSubmitted(ctx context.Context, olderThan time.Time, limit int) ([]domain.VideoTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM video_tasks
WHERE status = $1 AND submitted_at IS NOT NULL AND submitted_at < $2
ORDER BY submitted_at ASC
LIMIT $3;
`
	rows, err := r.q.Query(ctx, query, domain.TaskStatusSubmitted, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *TaskRepositoryPG) scanOne(row pgx.Row) (*domain.VideoTask, error) {
	var (
		task           domain.VideoTask
		providerTaskID *string
		reservationID  *string
		imageURLs      []byte
		outputs        []byte
	)
	err := row.Scan(
		&task.ID,
		&task.Seq,
		&task.UserID,
		&task.Provider,
		&providerTaskID,
		&task.Prompt,
		&task.Model,
		&task.DurationSec,
		&task.AspectRatio,
		&task.Quality,
		&imageURLs,
		&task.Mode,
		&task.OutputCount,
		&task.WithAudio,
		&task.Status,
		&outputs,
		&task.FailureReason,
		&task.CreditsReserved,
		&reservationID,
		&task.Settled,
		&task.CreatedAt,
		&task.SubmittedAt,
		&task.LastCheckedAt,
		&task.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if providerTaskID != nil {
		task.ProviderTaskID = *providerTaskID
	}
	if reservationID != nil {
		task.ReservationID = *reservationID
	}
	if len(imageURLs) > 0 {
		if err := json.Unmarshal(imageURLs, &task.ImageURLs); err != nil {
			return nil, fmt.Errorf("unmarshal image urls: %w", err)
		}
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &task.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	return &task, nil
}

func (r *TaskRepositoryPG) scanAll(rows pgx.Rows) ([]domain.VideoTask, error) {
	var tasks []domain.VideoTask
	for rows.Next() {
		t, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
