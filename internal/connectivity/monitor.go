package connectivity

import (
	"context"
	"time"

	"github.com/normanking/jarvis/internal/bus"
	"github.com/normanking/jarvis/internal/logging"
)

// Runner is a probe that reports its full result.
type Runner interface {
	Run(ctx context.Context) Result
}

// Monitor probes on a fixed period and publishes what it sees. It only
// observes: switching the router back to ONLINE stays a user decision.
type Monitor struct {
	probe    Runner
	interval time.Duration
	pub      bus.Publisher
	log      *logging.Logger
}

// NewMonitor creates a monitor. A nil publisher discards observations.
func NewMonitor(probe Runner, interval time.Duration, pub bus.Publisher, log *logging.Logger) *Monitor {
	if pub == nil {
		pub = bus.Discard
	}
	if log == nil {
		log = logging.Global()
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		pub:      pub,
		log:      log.WithComponent("monitor"),
	}
}

// Run probes every interval until ctx is done. It returns nil on
// cancellation so it can run inside an errgroup.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		return nil
	}
	m.log.Debug("observing connectivity every %s", m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var last *bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res := m.probe.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if last == nil || *last != res.Available {
				m.log.Info("connectivity changed: available=%t (%s)", res.Available, res.Stage)
			}
			avail := res.Available
			last = &avail
			if err := m.pub.Publish(bus.ConnectivityObserved(res.Available, string(res.Stage), res.Duration)); err != nil {
				m.log.Debug("publish observation: %v", err)
			}
		}
	}
}
