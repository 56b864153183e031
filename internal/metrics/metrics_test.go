package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/bus"
)

func feed(c *Collector) {
	c.Handle(bus.RouteCompleted("online", "", "remote", 0, 120*time.Millisecond))
	c.Handle(bus.Fallback("timeout", errors.New("deadline exceeded")))
	c.Handle(bus.ModeChanged("online", "offline", "fallback:timeout"))
	c.Handle(bus.RouteCompleted("offline", "time", "keyword", 1, 20*time.Millisecond))
	c.Handle(bus.ToggleRejected("service"))
	c.Handle(bus.ModeChanged("offline", "online", "toggle"))
	c.Handle(bus.ConnectivityObserved(true, "ok", time.Millisecond))
}

func TestCollectorSession(t *testing.T) {
	c := NewCollector(nil, nil, "online")
	feed(c)

	s := c.Session()
	assert.Equal(t, 2, s.Routes)
	assert.Equal(t, 1, s.OnlineRoutes)
	assert.Equal(t, 1, s.OfflineRoutes)
	assert.Equal(t, 1, s.IntentMatches)
	assert.Equal(t, 1, s.Fallbacks)
	assert.Equal(t, 1, s.ToggleRejected)
	assert.Equal(t, 2, s.ModeChanges)
	assert.Equal(t, "online", s.Mode)
	assert.Equal(t, 70*time.Millisecond, s.AverageLatency())
	require.NotNil(t, s.RemoteAvailable)
	assert.True(t, *s.RemoteAvailable)
	assert.Equal(t, string(bus.EventConnectivityObserved), s.LastEvent)
}

func TestCollectorPrometheus(t *testing.T) {
	p := NewPrometheus()
	c := NewCollector(nil, p, "online")
	feed(c)

	retrain := bus.NewEvent(bus.EventRetrainCompleted)
	retrain.Outcome = "published"
	c.Handle(retrain)
	c.Handle(bus.NewEvent(bus.EventHistoryCleared))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Routes.WithLabelValues("online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Routes.WithLabelValues("offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Fallbacks.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Classifications.WithLabelValues("keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Toggles.WithLabelValues("cannot_switch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Toggles.WithLabelValues("switched_online")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.Toggles.WithLabelValues("switched_offline")), "fallback transitions are not toggles")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Retrains.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Online))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.RemoteAvailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.HistoryCleared))
}

func TestPrometheusHandler(t *testing.T) {
	p := NewPrometheus()
	p.Routes.WithLabelValues("offline").Inc()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `jarvis_routes_total{mode="offline"} 1`)
	assert.Contains(t, string(body), "jarvis_online")
}

func TestCollectorSubscribesToBus(t *testing.T) {
	b := bus.New()
	defer b.Close()

	c := NewCollector(b, nil, "offline")
	c.Start()
	defer c.Stop()

	require.NoError(t, b.Publish(bus.RouteCompleted("offline", "", "generic", 0.4, time.Millisecond)))

	require.Eventually(t, func() bool {
		return c.Session().Routes == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecentEventsBounded(t *testing.T) {
	c := NewCollector(nil, nil, "offline")
	for i := 0; i < 80; i++ {
		c.Handle(bus.RouteCompleted("offline", "", "generic", 0, 0))
	}
	assert.Len(t, c.RecentEvents(100), 50)
	assert.Len(t, c.RecentEvents(3), 3)
}

func TestDashboard(t *testing.T) {
	c := NewCollector(nil, nil, "online")
	feed(c)

	d := NewDashboard(c)
	d.SetWidth(200)
	d.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	out := d.Render()
	for _, want := range []string{"SESSION", "ONLINE", "available", "2 (1 online / 1 offline)", "70ms avg"} {
		assert.Contains(t, out, want)
	}

	compact := d.RenderCompact()
	assert.True(t, strings.HasPrefix(compact, "[ONLINE] 2 routes"), compact)
	assert.Contains(t, compact, "●●●●●")
}
