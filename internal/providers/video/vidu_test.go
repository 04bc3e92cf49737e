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

func TestViduSubmit(t *testing.T) {
	var gotBody viduSubmitBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ent/v2/text2video", r.URL.Path)
		assert.Equal(t, "Token key-2", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"task_id": "vt-1", "state": "created"})
	}))
	defer srv.Close()

	v := NewVidu(srv.URL, "key-2", srv.Client())
	id, err := v.Submit(context.Background(), SubmitRequest{
		Prompt:      "waves on a beach",
		Model:       "vidu2.0",
		DurationSec: 4,
		WithAudio:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "vt-1", id)
	assert.Equal(t, "waves on a beach", gotBody.Prompt)
	assert.Equal(t, 4, gotBody.Duration)
	assert.True(t, gotBody.Audio)
}

func TestViduSubmitMissingTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "created"})
	}))
	defer srv.Close()

	v := NewVidu(srv.URL, "key", srv.Client())
	_, err := v.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestViduSubmitTransportErrorIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	v := NewVidu(srv.URL, "key", nil)
	_, err := v.Submit(context.Background(), SubmitRequest{Prompt: "p"})
	assert.ErrorIs(t, err, domain.ErrSubmissionPending)
}

func TestViduPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ent/v2/tasks/vt-7/creations", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"task_id": "vt-7",
			"state":   "success",
			"creations": []map[string]any{
				{"url": "https://cdn/v1.mp4", "cover_url": "https://cdn/v1.jpg"},
				{"url": "https://cdn/v2.mp4", "cover_url": "https://cdn/v2.jpg"},
			},
		})
	}))
	defer srv.Close()

	v := NewVidu(srv.URL, "key", srv.Client())
	st, err := v.Poll(context.Background(), "vt-7")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	require.Len(t, st.Outputs, 2)
	assert.Equal(t, "https://cdn/v2.mp4", st.Outputs[1].URL)
}

func TestViduPollHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewVidu(srv.URL, "key", srv.Client())
	_, err := v.Poll(context.Background(), "vt-7")
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestNormalizeVidu(t *testing.T) {
	cases := []struct {
		state string
		want  State
	}{
		{"created", StateProcessing},
		{"queueing", StateProcessing},
		{"processing", StateProcessing},
		{"success", StateCompleted},
		{"failed", StateFailed},
		{"unknown_new_state", StateProcessing},
	}
	for _, tc := range cases {
		t.Run("state_"+tc.state, func(t *testing.T) {
			got := normalizeVidu(viduTask{State: tc.state})
			assert.Equal(t, tc.want, got.State)
		})
	}
}

func TestViduParseCallback(t *testing.T) {
	v := NewVidu("http://unused", "key", nil)
	st, err := v.ParseCallback([]byte(`{"task_id":"vt-3","state":"failed","err_code":"content_moderation"}`))
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "content_moderation", st.Reason)
}
