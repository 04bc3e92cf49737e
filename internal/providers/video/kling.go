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

// Kling adapts the Kling REST API to the Adapter interface.
type Kling struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewKling(baseURL, apiKey string, client *http.Client) *Kling {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Kling{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (k *Kling) Name() string { return "kling" }

type klingSubmitBody struct {
	ModelName   string   `json:"model_name"`
	Prompt      string   `json:"prompt"`
	Duration    string   `json:"duration,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	ImageList   []string `json:"image_list,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

type klingTaskData struct {
	TaskID        string `json:"task_id"`
	TaskStatus    string `json:"task_status"`
	TaskStatusMsg string `json:"task_status_msg"`
	TaskResult    struct {
		Videos []struct {
			URL           string `json:"url"`
			CoverImageURL string `json:"cover_image_url"`
		} `json:"videos"`
	} `json:"task_result"`
}

type klingEnvelope struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    klingTaskData `json:"data"`
}

func (k *Kling) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body := klingSubmitBody{
		ModelName:   req.Model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Mode:        req.Mode,
		ImageList:   req.ImageURLs,
		CallbackURL: req.CallbackURL,
	}
	if req.DurationSec > 0 {
		body.Duration = fmt.Sprintf("%d", req.DurationSec)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("kling: marshal submit: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/v1/videos/text2video", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("kling: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+k.apiKey)

	resp, err := k.client.Do(httpReq)
	if err != nil {
		// The request may or may not have reached Kling.
		return "", fmt.Errorf("kling submit: %w: %w", domain.ErrSubmissionPending, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("kling submit: %w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var env klingEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("kling submit: %w: decode response: %w", domain.ErrSubmissionPending, err)
	}
	if env.Code != 0 {
		return "", fmt.Errorf("kling submit: %w: code %d %s", domain.ErrProviderFailure, env.Code, env.Message)
	}
	if env.Data.TaskID == "" {
		return "", fmt.Errorf("kling submit: %w: empty task id", domain.ErrProviderFailure)
	}
	return env.Data.TaskID, nil
}

func (k *Kling) Poll(ctx context.Context, providerTaskID string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/v1/videos/text2video/"+providerTaskID, nil)
	if err != nil {
		return Status{}, fmt.Errorf("kling: build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.apiKey)

	resp, err := k.client.Do(httpReq)
	if err != nil {
		return Status{}, fmt.Errorf("kling poll: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Status{}, fmt.Errorf("kling poll: %w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}
	var env klingEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Status{}, fmt.Errorf("kling poll: decode response: %w", err)
	}
	if env.Code != 0 {
		return Status{}, fmt.Errorf("kling poll: %w: code %d %s", domain.ErrProviderFailure, env.Code, env.Message)
	}
	return normalizeKling(env.Data), nil
}

func (k *Kling) ParseCallback(payload []byte) (Status, error) {
	var data klingTaskData
	if err := json.Unmarshal(payload, &data); err != nil {
		return Status{}, fmt.Errorf("kling callback: %w", err)
	}
	return normalizeKling(data), nil
}

func normalizeKling(data klingTaskData) Status {
	switch data.TaskStatus {
	case "succeed":
		var outputs []Output
		for _, v := range data.TaskResult.Videos {
			outputs = append(outputs, Output{URL: v.URL, ThumbnailURL: v.CoverImageURL})
		}
		return Status{State: StateCompleted, Outputs: outputs}
	case "failed":
		reason := data.TaskStatusMsg
		if reason == "" {
			reason = "provider reported failure"
		}
		return Status{State: StateFailed, Reason: reason}
	default:
		// submitted, processing, and anything unrecognized.
		return Status{State: StateProcessing}
	}
}

var _ Adapter = (*Kling)(nil)
