package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_Configured(t *testing.T) {
	t.Parallel()

	require.False(t, New(Config{}, nil).Configured())
	// A key alone is not enough; there is nowhere to send the request.
	require.False(t, New(Config{APIKey: "key"}, nil).Configured())
	require.True(t, New(Config{BaseURL: "http://llm.internal"}, nil).Configured())
	require.True(t, New(Config{BaseURL: "http://llm.internal", APIKey: "key"}, nil).Configured())
}

func TestClient_Complete_ReturnsFirstChoice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Ten dollars. "}}]}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, nil)
	answer, err := client.Complete(context.Background(), "how much?")
	require.NoError(t, err)
	require.Equal(t, "Ten dollars.", answer)
}

func TestClient_Complete_NonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	_, err := client.Complete(context.Background(), "how much?")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestClient_Complete_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil).Complete(context.Background(), "anything")
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{APIKey: "key-but-no-base-url"}, nil).Complete(context.Background(), "anything")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_Complete_KeylessBackend(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "local-model"}, nil)
	answer, err := client.Complete(context.Background(), "how much?")
	require.NoError(t, err)
	require.Equal(t, "ok", answer)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	_, err := client.Complete(context.Background(), "how much?")
	require.Error(t, err)
}
