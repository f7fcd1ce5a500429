package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDeliversTemplatedRequest(t *testing.T) {
	var got sendRequest
	var authHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	ok := c.Send(context.Background(), "project_ready", "alice@acme.io", map[string]string{
		"project_id": "acmeio-abc123",
		"status":     "active",
	})

	assert.True(t, ok)
	assert.Equal(t, "Bearer secret-key", authHeader)
	assert.Equal(t, "project_ready", got.Template)
	assert.Equal(t, "alice@acme.io", got.Recipient)
	assert.Equal(t, "acmeio-abc123", got.Variables["project_id"])
}

func TestSendServerErrorDoesNotFailCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ok := c.Send(context.Background(), "project_failed", "alice@acme.io", nil)
	assert.False(t, ok)
}

func TestSendUnconfiguredServiceSkips(t *testing.T) {
	c := NewClient("", "")
	ok := c.Send(context.Background(), "project_ready", "alice@acme.io", nil)
	assert.False(t, ok)
}
