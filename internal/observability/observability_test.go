package observability

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/fungimap/internal/config"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		l, err := NewLogger(config.LogConfig{Level: level, Format: "json"})
		require.NoError(t, err, level)
		require.NotNil(t, l)
	}

	_, err := NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fungimap.log")
	l, err := NewLogger(config.LogConfig{Level: "info", Format: "console", File: path})
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveAction("click")
	c.ObserveCache(true)
	c.ObserveTick(time.Millisecond)
	c.ObserveSearch("ok")
	c.ObservePersistenceError("save")
	c.ObserveRecompute()
	assert.Nil(t, c.Registry())
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("test")
	c.ObserveAction("click")
	c.ObserveAction("click")
	c.ObserveCache(false)
	c.ObserveSearch("stale")

	assert.InDelta(t, 2, testutil.ToFloat64(c.ActionsTracked.WithLabelValues("click")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.CacheMisses), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.SearchRequests.WithLabelValues("stale")), 0)

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), "test_actions_tracked_total")
}
