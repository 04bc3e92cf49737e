package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reelmint/internal/domain"
)

// Vidu adapts the Vidu REST API to the Adapter interface.
type Vidu struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewVidu(baseURL, apiKey string, client *http.Client) *Vidu {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Vidu{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (v *Vidu) Name() string { return "vidu" }

type viduSubmitBody struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Images      []string `json:"images,omitempty"`
	Duration    int      `json:"duration,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	Resolution  string   `json:"resolution,omitempty"`
	Audio       bool     `json:"audio,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

type viduTask struct {
	TaskID    string `json:"task_id"`
	State     string `json:"state"`
	ErrCode   string `json:"err_code"`
	Creations []struct {
		URL      string `json:"url"`
		CoverURL string `json:"cover_url"`
	} `json:"creations"`
}

func (v *Vidu) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body := viduSubmitBody{
		Model:       req.Model,
		Prompt:      req.Prompt,
		Images:      req.ImageURLs,
		Duration:    req.DurationSec,
		AspectRatio: req.AspectRatio,
		Resolution:  req.Quality,
		Audio:       req.WithAudio,
		CallbackURL: req.CallbackURL,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("vidu: marshal submit: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/ent/v2/text2video", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("vidu: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+v.apiKey)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("vidu submit: %w: %w", domain.ErrSubmissionPending, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("vidu submit: %w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var task viduTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return "", fmt.Errorf("vidu submit: %w: decode response: %w", domain.ErrSubmissionPending, err)
	}
	if task.TaskID == "" {
		return "", fmt.Errorf("vidu submit: %w: empty task id", domain.ErrProviderFailure)
	}
	return task.TaskID, nil
}

func (v *Vidu) Poll(ctx context.Context, providerTaskID string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/ent/v2/tasks/"+providerTaskID+"/creations", nil)
	if err != nil {
		return Status{}, fmt.Errorf("vidu: build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+v.apiKey)

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return Status{}, fmt.Errorf("vidu poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Status{}, fmt.Errorf("vidu poll: %w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var task viduTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return Status{}, fmt.Errorf("vidu poll: decode response: %w", err)
	}
	return normalizeVidu(task), nil
}

func (v *Vidu) ParseCallback(payload []byte) (Status, error) {
	var task viduTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return Status{}, fmt.Errorf("vidu callback: %w", err)
	}
	return normalizeVidu(task), nil
}

func normalizeVidu(task viduTask) Status {
	switch task.State {
	case "success":
		var outputs []Output
		for _, c := range task.Creations {
			outputs = append(outputs, Output{URL: c.URL, ThumbnailURL: c.CoverURL})
		}
		return Status{State: StateCompleted, Outputs: outputs}
	case "failed":
		reason := task.ErrCode
		if reason == "" {
			reason = "provider reported failure"
		}
		return Status{State: StateFailed, Reason: reason}
	default:
		// created, queueing, processing, and anything unrecognized.
		return Status{State: StateProcessing}
	}
}

var _ Adapter = (*Vidu)(nil)
