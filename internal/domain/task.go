package domain

import "time"

// TaskStatus enumerates the video task lifecycle states.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusSubmitted  TaskStatus = "SUBMITTED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusCancelled  TaskStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transition is accepted.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskOutput is one produced asset of a completed task.
type TaskOutput struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// VideoTask tracks one generation job end-to-end, from submission to
// settlement. The request snapshot fields are captured at submission
// time and never mutated afterwards.
type VideoTask struct {
	ID             string // external uuid
	Seq            int64  // internal numeric id
	UserID         string
	Provider       string
	ProviderTaskID string // empty until the provider accepted the job

	Prompt      string
	Model       string
	DurationSec int
	AspectRatio string
	Quality     string
	ImageURLs   []string
	Mode        string
	OutputCount int
	WithAudio   bool

	Status        TaskStatus
	Outputs       []TaskOutput
	FailureReason string

	CreditsReserved int64
	ReservationID   string
	// Settled is flipped in the same transaction as the ledger charge or
	// refund, guarding against double settlement under webhook+poll races.
	Settled bool

	CreatedAt     time.Time
	SubmittedAt   *time.Time
	LastCheckedAt *time.Time
	FinishedAt    *time.Time
}
