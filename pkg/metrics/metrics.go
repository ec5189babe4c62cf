// Package metrics exposes thingflow's runtime counters through Prometheus, the
// same client library and registration pattern the rest of the cuemby stack
// uses for its own schedulers and reconcilers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatch metrics
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_events_dispatched_total",
			Help: "Total number of next events dispatched, by publisher and topic",
		},
		[]string{"publisher", "topic"},
	)

	TopicsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_topics_closed_total",
			Help: "Total number of topics closed, by publisher, topic and reason (completed|error)",
		},
		[]string{"publisher", "topic", "reason"},
	)

	DispatchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_dispatch_errors_total",
			Help: "Total number of subscriber callback panics wrapped as exc-in-dispatch fatal errors during inline dispatch, by publisher and code",
		},
		[]string{"publisher", "code"},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thingflow_dispatch_latency_seconds",
			Help:    "Time taken to run one dispatch cascade (all subscribers for one event)",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	ActiveSchedules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thingflow_active_schedules",
			Help: "Number of active schedules by discipline",
		},
		[]string{"discipline"},
	)

	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_observations_total",
			Help: "Total number of Observe calls by discipline and outcome (more|done|error); periodic_separate_thread records one done|error outcome per worker run, private_event_loop is not counted",
		},
		[]string{"discipline", "outcome"},
	)

	PollLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thingflow_poll_latency_seconds",
			Help:    "Time taken by a single source pull, by discipline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"discipline"},
	)

	// Blocking sink bridge metrics
	BridgeQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thingflow_bridge_queue_depth",
			Help: "Current number of queued items in a blocking sink bridge",
		},
		[]string{"sink"},
	)

	BridgeItemsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_bridge_items_processed_total",
			Help: "Total number of items processed by a blocking sink bridge worker",
		},
		[]string{"sink", "kind"},
	)
)

func init() {
	prometheus.MustRegister(EventsDispatchedTotal)
	prometheus.MustRegister(TopicsClosedTotal)
	prometheus.MustRegister(DispatchErrorsTotal)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(ActiveSchedules)
	prometheus.MustRegister(ObservationsTotal)
	prometheus.MustRegister(PollLatency)
	prometheus.MustRegister(BridgeQueueDepth)
	prometheus.MustRegister(BridgeItemsProcessedTotal)
}

// Handler returns the Prometheus HTTP handler for a metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing operations and observing them into a
// histogram once they complete.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
