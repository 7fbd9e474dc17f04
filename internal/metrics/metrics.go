// Package metrics exposes Prometheus collectors for the observability server
// and the live state of the current crawl run.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/addrcrawl/internal/engine"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the HTTP collectors on the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// LiveSource reports the state of the most recent run.
type LiveSource interface {
	Live() (engine.LiveStats, bool)
}

// RegisterLive exposes the live run counters as gauges read at scrape time.
// Before the first run every gauge reads zero.
func RegisterLive(reg prometheus.Registerer, src LiveSource) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string, pick func(engine.LiveStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			live, ok := src.Live()
			if !ok {
				return 0
			}
			return pick(live)
		})
	}
	collectors := []prometheus.Collector{
		gauge("addrcrawl_live_queued_items", "Items buffered in the run queue.",
			func(l engine.LiveStats) float64 { return float64(l.Queued) }),
		gauge("addrcrawl_live_in_flight_items", "Items currently being processed by workers.",
			func(l engine.LiveStats) float64 { return float64(l.Stats.InFlight) }),
		gauge("addrcrawl_live_sites", "Items accepted into the current run.",
			func(l engine.LiveStats) float64 { return float64(l.Stats.Sites) }),
		gauge("addrcrawl_live_completed_items", "Items that reached a terminal outcome in the current run.",
			func(l engine.LiveStats) float64 { return float64(l.Stats.Completed) }),
		gauge("addrcrawl_live_unique_items", "Unique addresses found in the current run.",
			func(l engine.LiveStats) float64 { return float64(l.Stats.Unique) }),
		gauge("addrcrawl_live_bytes", "Bytes downloaded in the current run.",
			func(l engine.LiveStats) float64 { return float64(l.Stats.Bytes) }),
		gauge("addrcrawl_live_running", "1 while a run is in progress.",
			func(l engine.LiveStats) float64 {
				if l.Running {
					return 1
				}
				return 0
			}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register live collector: %w", err)
		}
	}
	return nil
}
