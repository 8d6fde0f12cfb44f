package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer returns a fake chat completion endpoint that replies with
// reply and records each request body.
func newTestServer(t *testing.T, reply string, seen *[]map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if seen != nil {
			*seen = append(*seen, body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Complete(t *testing.T) {
	var seen []map[string]any
	srv := newTestServer(t, "  the answer \n", &seen)

	c, err := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "test-model"})
	require.NoError(t, err)

	got, err := c.Complete(context.Background(), "system prompt", "question", true)
	require.NoError(t, err)
	assert.Equal(t, "the answer", got)

	require.Len(t, seen, 1)
	assert.Equal(t, "test-model", seen[0]["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, seen[0]["response_format"])
	msgs := seen[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "question", msgs[1].(map[string]any)["content"])
}

func TestNew_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "s", "u", false)
	assert.Error(t, err)
}
