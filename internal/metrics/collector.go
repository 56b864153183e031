package metrics

import (
	"sync"
	"time"

	"github.com/normanking/jarvis/internal/bus"
)

// Collector subscribes to the bus and aggregates metrics.
type Collector struct {
	bus   *bus.Bus
	prom  *Prometheus
	subID bus.SubscriptionID

	mu           sync.RWMutex
	session      SessionStats
	recentEvents []bus.Event
	maxEvents    int
	stopped      bool
}

// SessionStats summarises the current process lifetime.
type SessionStats struct {
	StartTime      time.Time
	Mode           string
	Routes         int
	OnlineRoutes   int
	OfflineRoutes  int
	IntentMatches  int
	Fallbacks      int
	ToggleRejected int
	ModeChanges    int
	Retrains       int
	RetrainSkips   int
	TotalLatencyMs int64
	// RemoteAvailable is the last background observation, nil if none.
	RemoteAvailable *bool
	LastEvent       string
	LastEventTime   time.Time
}

// AverageLatency returns the mean route latency.
func (s SessionStats) AverageLatency() time.Duration {
	if s.Routes == 0 {
		return 0
	}
	return time.Duration(s.TotalLatencyMs/int64(s.Routes)) * time.Millisecond
}

// NewCollector creates a collector. prom may be nil when only the session
// summary is wanted.
func NewCollector(b *bus.Bus, prom *Prometheus, initialMode string) *Collector {
	c := &Collector{
		bus:       b,
		prom:      prom,
		maxEvents: 50,
		session:   SessionStats{StartTime: time.Now(), Mode: initialMode},
	}
	if prom != nil {
		boolGauge(prom.Online, initialMode == "online")
	}
	return c
}

// Start begins listening to the bus.
func (c *Collector) Start() {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.subID != "" {
		return
	}
	c.subID = c.bus.Subscribe("", c.Handle)
}

// Stop stops listening.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.subID != "" && c.bus != nil {
		_ = c.bus.Unsubscribe(c.subID)
	}
}

// SetMode records the mode without counting a transition.
func (c *Collector) SetMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Mode = mode
	if c.prom != nil {
		boolGauge(c.prom.Online, mode == "online")
	}
}

// Session returns a copy of the session stats.
func (c *Collector) Session() SessionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.session
	if s.RemoteAvailable != nil {
		v := *s.RemoteAvailable
		s.RemoteAvailable = &v
	}
	return s
}

// RecentEvents returns up to n of the latest events, oldest first.
func (c *Collector) RecentEvents(n int) []bus.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.recentEvents) {
		n = len(c.recentEvents)
	}
	out := make([]bus.Event, n)
	copy(out, c.recentEvents[len(c.recentEvents)-n:])
	return out
}

// Handle applies one event. It is the bus handler and can be called
// directly.
func (c *Collector) Handle(e bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recentEvents = append(c.recentEvents, e)
	if len(c.recentEvents) > c.maxEvents {
		c.recentEvents = c.recentEvents[1:]
	}

	s := &c.session
	s.LastEvent = string(e.Type)
	s.LastEventTime = e.Timestamp

	switch e.Type {
	case bus.EventRouteCompleted:
		s.Routes++
		if e.Mode == "online" {
			s.OnlineRoutes++
		} else {
			s.OfflineRoutes++
		}
		if e.IntentID != "" {
			s.IntentMatches++
		}
		s.TotalLatencyMs += e.DurationMs
		if c.prom != nil {
			c.prom.Routes.WithLabelValues(e.Mode).Inc()
			c.prom.Classifications.WithLabelValues(e.Tier).Inc()
			c.prom.RouteDuration.Observe(float64(e.DurationMs) / 1000)
		}

	case bus.EventFallback:
		s.Fallbacks++
		if c.prom != nil {
			c.prom.Fallbacks.WithLabelValues(e.Outcome).Inc()
		}

	case bus.EventModeChanged:
		s.ModeChanges++
		s.Mode = e.Mode
		if c.prom != nil {
			boolGauge(c.prom.Online, e.Mode == "online")
			if e.Outcome == "toggle" {
				c.prom.Toggles.WithLabelValues("switched_" + e.Mode).Inc()
			}
		}

	case bus.EventToggleRejected:
		s.ToggleRejected++
		if c.prom != nil {
			c.prom.Toggles.WithLabelValues(e.Outcome).Inc()
		}

	case bus.EventRetrainCompleted, bus.EventRetrainSkipped:
		if e.Type == bus.EventRetrainCompleted {
			s.Retrains++
		} else {
			s.RetrainSkips++
		}
		if c.prom != nil {
			c.prom.Retrains.WithLabelValues(e.Outcome).Inc()
		}

	case bus.EventConnectivityObserved:
		v := e.Available
		s.RemoteAvailable = &v
		if c.prom != nil {
			boolGauge(c.prom.RemoteAvailable, v)
		}

	case bus.EventHistoryCleared:
		if c.prom != nil {
			c.prom.HistoryCleared.Inc()
		}
	}
}
