package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rconbridge"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Bus commands by verb and terminal phase.",
		},
		[]string{"verb", "phase"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "command_duration_seconds",
			Help:      "Time from receipt to response per verb.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb"},
	)
	commandQueueStalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_stalls_total",
			Help:      "Bus deliveries that found the command queue full and blocked the bus handler.",
		},
	)
	consoleSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "sends_total",
			Help:      "Console round-trips by outcome.",
		},
		[]string{"outcome"},
	)
	consoleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "send_duration_seconds",
			Help:      "Console round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	consoleDials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "console",
			Name:      "dials_total",
			Help:      "Console dial attempts by outcome.",
		},
		[]string{"outcome"},
	)
	snapshotPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "publishes_total",
			Help:      "Snapshot topic publishes by outcome (sent, suppressed, failed).",
		},
		[]string{"outcome"},
	)
	snapshotPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "polls_total",
			Help:      "Snapshot polls by outcome (published, unchanged, missing, error).",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			commands, commandDuration, commandQueueStalls,
			consoleSends, consoleDuration, consoleDials,
			snapshotPublishes, snapshotPolls,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(verb, phase string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(verb, phase).Inc()
	commandDuration.WithLabelValues(verb).Observe(duration.Seconds())
}

func RecordQueueStall() {
	RegisterMetrics()
	commandQueueStalls.Inc()
}

func RecordConsoleSend(outcome string, duration time.Duration) {
	RegisterMetrics()
	consoleSends.WithLabelValues(outcome).Inc()
	consoleDuration.Observe(duration.Seconds())
}

func RecordConsoleDial(success bool) {
	RegisterMetrics()
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	consoleDials.WithLabelValues(outcome).Inc()
}

func RecordSnapshotPublish(outcome string) {
	RegisterMetrics()
	snapshotPublishes.WithLabelValues(outcome).Inc()
}

func RecordSnapshotPoll(outcome string) {
	RegisterMetrics()
	snapshotPolls.WithLabelValues(outcome).Inc()
}
