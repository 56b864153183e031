// Package metrics turns bus events into Prometheus series and an in-process
// session summary rendered with lipgloss.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus holds the assistant's series on a private registry so that
// tests and multiple assistants never collide on the default one.
type Prometheus struct {
	registry *prometheus.Registry

	Routes          *prometheus.CounterVec
	Fallbacks       *prometheus.CounterVec
	Toggles         *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Retrains        *prometheus.CounterVec
	Online          prometheus.Gauge
	RemoteAvailable prometheus.Gauge
	RouteDuration   prometheus.Histogram
	HistoryCleared  prometheus.Counter
}

// NewPrometheus registers every series plus the Go runtime collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		Routes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_routes_total",
			Help: "Utterances answered, by mode",
		}, []string{"mode"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_fallbacks_total",
			Help: "Online attempts that fell back to offline, by reason",
		}, []string{"reason"}),
		Toggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_toggles_total",
			Help: "Manual mode toggles, by outcome",
		}, []string{"outcome"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_classifications_total",
			Help: "Answered utterances, by resolving tier",
		}, []string{"tier"}),
		Retrains: f.NewCounterVec(prometheus.CounterOpts{
			Name: "jarvis_retrains_total",
			Help: "Retrain cycles, by result",
		}, []string{"result"}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_online",
			Help: "1 while the router is in ONLINE mode",
		}),
		RemoteAvailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "jarvis_remote_available",
			Help: "Last background connectivity observation (1 = available)",
		}),
		RouteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "jarvis_route_duration_seconds",
			Help:    "End-to-end latency of Route",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		HistoryCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "jarvis_history_cleared_total",
			Help: "Explicit conversation log clears",
		}),
	}
}

// Registry returns the private registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func boolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
