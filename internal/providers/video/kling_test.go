package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelmint/internal/domain"
)

func TestKlingSubmit(t *testing.T) {
	var gotBody klingSubmitBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/videos/text2video", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0, "message": "ok",
			"data": map[string]any{"task_id": "kt-1", "task_status": "submitted"},
		})
	}))
	defer srv.Close()

	k := NewKling(srv.URL, "key-1", srv.Client())
	id, err := k.Submit(context.Background(), SubmitRequest{
		Prompt:      "city at night",
		Model:       "kling-v1-6",
		DurationSec: 10,
		AspectRatio: "16:9",
		CallbackURL: "https://api.example.com/cb",
	})
	require.NoError(t, err)
	assert.Equal(t, "kt-1", id)
	assert.Equal(t, "city at night", gotBody.Prompt)
	assert.Equal(t, "kling-v1-6", gotBody.ModelName)
	assert.Equal(t, "10", gotBody.Duration)
	assert.Equal(t, "https://api.example.com/cb", gotBody.CallbackURL)
}

func TestKlingSubmitHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	k := NewKling(srv.URL, "key", srv.Client())
	_, err := k.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestKlingSubmitEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 1102, "message": "insufficient provider quota"})
	}))
	defer srv.Close()

	k := NewKling(srv.URL, "key", srv.Client())
	_, err := k.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.Contains(t, err.Error(), "1102")
}

func TestKlingSubmitTransportErrorIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	k := NewKling(srv.URL, "key", nil)
	_, err := k.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrSubmissionPending)
	assert.NotErrorIs(t, err, domain.ErrProviderFailure)
}

func TestKlingPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/videos/text2video/kt-9", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"task_id":     "kt-9",
				"task_status": "succeed",
				"task_result": map[string]any{
					"videos": []map[string]any{{"url": "https://cdn/k.mp4", "cover_image_url": "https://cdn/k.jpg"}},
				},
			},
		})
	}))
	defer srv.Close()

	k := NewKling(srv.URL, "key", srv.Client())
	st, err := k.Poll(context.Background(), "kt-9")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	require.Len(t, st.Outputs, 1)
	assert.Equal(t, "https://cdn/k.mp4", st.Outputs[0].URL)
	assert.Equal(t, "https://cdn/k.jpg", st.Outputs[0].ThumbnailURL)
}

func TestNormalizeKling(t *testing.T) {
	cases := []struct {
		status string
		want   State
	}{
		{"submitted", StateProcessing},
		{"processing", StateProcessing},
		{"succeed", StateCompleted},
		{"failed", StateFailed},
		{"some_future_state", StateProcessing},
		{"", StateProcessing},
	}
	for _, tc := range cases {
		t.Run("status_"+tc.status, func(t *testing.T) {
			got := normalizeKling(klingTaskData{TaskStatus: tc.status})
			assert.Equal(t, tc.want, got.State)
		})
	}
}

func TestKlingParseCallback(t *testing.T) {
	payload := []byte(`{"task_id":"kt-2","task_status":"failed","task_status_msg":"prompt rejected"}`)
	k := NewKling("http://unused", "key", nil)
	st, err := k.ParseCallback(payload)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "prompt rejected", st.Reason)
}

func TestKlingParseCallbackFailureWithoutMessage(t *testing.T) {
	k := NewKling("http://unused", "key", nil)
	st, err := k.ParseCallback([]byte(`{"task_status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.NotEmpty(t, st.Reason)
}
