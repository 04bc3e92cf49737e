// Package video defines the uniform contract for external video
// generation providers and the adapters that implement it.
package video

import (
	"context"
	"fmt"

	"reelmint/internal/domain"
)

// State is the provider-agnostic outcome vocabulary.
type State int

const (
	StateProcessing State = iota
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "processing"
	}
}

// Output is one asset reported by a provider.
type Output struct {
	URL          string
	ThumbnailURL string
}

// Status is the normalized result of a poll or callback. Outputs is set
// only for StateCompleted, Reason only for StateFailed. Adapters map
// unknown provider vocabulary to StateProcessing, never to StateFailed,
// so transient provider quirks cannot trigger a spurious refund.
type Status struct {
	State   State
	Outputs []Output
	Reason  string
}

// SubmitRequest is the generic generation request an adapter translates
// into its provider's wire format.
type SubmitRequest struct {
	Prompt      string
	Model       string
	DurationSec int
	AspectRatio string
	Quality     string
	ImageURLs   []string
	Mode        string
	OutputCount int
	WithAudio   bool
	CallbackURL string
}

// Adapter is the uniform interface over heterogeneous provider APIs.
//
// Submit distinguishes definitive rejection (the provider answered and
// refused: domain.ErrProviderFailure) from an unknown outcome (the
// request may have reached the provider but no answer arrived:
// domain.ErrSubmissionPending). Callers must only refund on the former.
type Adapter interface {
	Name() string
	Submit(ctx context.Context, req SubmitRequest) (providerTaskID string, err error)
	Poll(ctx context.Context, providerTaskID string) (Status, error)
	ParseCallback(payload []byte) (Status, error)
}

// Registry holds the configured adapters keyed by provider name.
type Registry map[string]Adapter

// Get returns the adapter for name or domain.ErrValidation.
func (r Registry) Get(name string) (Adapter, error) {
	a, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", domain.ErrValidation, name)
	}
	return a, nil
}
