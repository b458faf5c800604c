package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reactor lifecycle metrics
	ReactorsSpawned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozaic_reactors_spawned_total",
			Help: "Total number of reactors spawned, by kind",
		},
		[]string{"kind"},
	)

	ReactorsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozaic_reactors_closed_total",
			Help: "Total number of reactors closed, by kind",
		},
		[]string{"kind"},
	)

	ReactorsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mozaic_reactors_live",
			Help: "Current number of live reactors registered with the broker",
		},
	)

	// Link lifecycle metrics
	LinksOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_links_opened_total",
			Help: "Total number of links opened between reactors",
		},
	)

	LinksClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_links_closed_total",
			Help: "Total number of links closed between reactors",
		},
	)

	// Dispatch metrics
	MessagesDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozaic_messages_dispatched_total",
			Help: "Total number of messages dispatched, by target selector",
		},
		[]string{"selector"},
	)

	// Game metrics
	GamesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_games_started_total",
			Help: "Total number of games started by the game manager",
		},
	)

	GamesFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_games_finished_total",
			Help: "Total number of games that reported a terminal result",
		},
	)

	GamesKilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_games_killed_total",
			Help: "Total number of games terminated via KillGame",
		},
	)

	GameManagerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mozaic_game_manager_request_duration_seconds",
			Help:    "Time taken for the game manager's front end to resolve a request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Step lock metrics
	StepLockFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_step_lock_flushes_total",
			Help: "Total number of turns flushed by step locks",
		},
	)

	StepLockTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mozaic_step_lock_timeouts_total",
			Help: "Total number of turns flushed early by a step lock timeout",
		},
	)

	// Transport endpoint metrics
	EndpointConnectionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozaic_endpoint_connections_accepted_total",
			Help: "Total number of transport connections accepted, by endpoint kind",
		},
		[]string{"endpoint"},
	)

	EndpointConnectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mozaic_endpoint_connections_closed_total",
			Help: "Total number of transport connections closed, by endpoint kind",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(ReactorsSpawned)
	prometheus.MustRegister(ReactorsClosed)
	prometheus.MustRegister(ReactorsLive)
	prometheus.MustRegister(LinksOpened)
	prometheus.MustRegister(LinksClosed)
	prometheus.MustRegister(MessagesDispatched)
	prometheus.MustRegister(GamesStarted)
	prometheus.MustRegister(GamesFinished)
	prometheus.MustRegister(GamesKilled)
	prometheus.MustRegister(GameManagerRequestDuration)
	prometheus.MustRegister(StepLockFlushes)
	prometheus.MustRegister(StepLockTimeouts)
	prometheus.MustRegister(EndpointConnectionsAccepted)
	prometheus.MustRegister(EndpointConnectionsClosed)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
