package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/fungimap/internal/replay"
)

func TestTrack(t *testing.T) {
	var got replay.Event
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/actions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"recorded": true, "total": 3})
	}))
	defer ts.Close()

	c := New(ts.URL + "/")
	res, err := c.Track(context.Background(), replay.Event{Type: "click", Slug: "morel"})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, "morel", got.Slug)
}

func TestRelevanceForce(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("force"))
		w.Write([]byte(`{"scores":[{"slug":"chaga","score":0.25,"clicks":1}]}`))
	}))
	defer ts.Close()

	scores, err := New(ts.URL).Relevance(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "chaga", scores[0].Slug)
	assert.Equal(t, 1.0, scores[0].Clicks)
}

func TestErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	c := New(ts.URL)
	_, err := c.Session(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.False(t, c.Healthy(context.Background()))
}

func TestHealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.Write([]byte(`{"status":"ok"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	assert.True(t, New(ts.URL).Healthy(context.Background()))
}

func TestNewFallsBackToEnv(t *testing.T) {
	t.Setenv("FUNGIMAP_URL", "http://example.test:9000")
	assert.Equal(t, "http://example.test:9000", New("").URL())

	t.Setenv("FUNGIMAP_URL", "")
	assert.Equal(t, defaultServerURL, New("").URL())
}
