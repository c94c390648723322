package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/dockd/internal/dock"
)

const namespace = "dockd"

// Collector exports dock events and daemon gauges in Prometheus format.
// It implements dock.Observer.
type Collector struct {
	registry  *prometheus.Registry
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New creates a collector with its own registry. Go runtime and process
// metrics are included.
func New(daemonID string) *Collector {
	labels := prometheus.Labels{"daemon_id": daemonID}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "dock_events_total",
			Help:        "Dock composition and sequencing events by type and result.",
			ConstLabels: labels,
		}, []string{"type", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "dock_event_duration_seconds",
			Help:        "Duration of timed dock events such as reboots.",
			ConstLabels: labels,
			Buckets:     []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"type"}),
	}

	c.registry.MustRegister(
		c.events,
		c.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Observe counts ev and records its duration when it has one.
func (c *Collector) Observe(ev dock.Event) {
	result := "ok"
	if ev.Err != nil {
		result = "error"
	}
	c.events.WithLabelValues(string(ev.Type), result).Inc()
	if ev.Duration > 0 {
		c.durations.WithLabelValues(string(ev.Type)).Observe(ev.Duration.Seconds())
	}
}

// Gauge registers a gauge sampled from fn at scrape time.
func (c *Collector) Gauge(name, help string, fn func() int) error {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })

	if err := c.registry.Register(g); err != nil {
		return fmt.Errorf("registering gauge %s: %w", name, err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
