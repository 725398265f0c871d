package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nbdctl",
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Sessions that reached the running state.",
		},
		[]string{"mode"},
	)
	launchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nbdctl",
			Subsystem: "backend",
			Name:      "launch_failures_total",
			Help:      "Backend launches that failed or produced an unparsable handshake.",
		},
	)
	teardownSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nbdctl",
			Subsystem: "teardown",
			Name:      "steps_total",
			Help:      "Teardown steps executed by the in-process executor.",
		},
		[]string{"step"},
	)
	rollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nbdctl",
			Subsystem: "session",
			Name:      "rollbacks_total",
			Help:      "Provisioned resource rollbacks after a failed startup.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionsStarted, launchFailures, teardownSteps, rollbacks)
	})
}

func RecordSessionStarted(mode string) {
	RegisterMetrics()
	sessionsStarted.WithLabelValues(mode).Inc()
}

func RecordLaunchFailure() {
	RegisterMetrics()
	launchFailures.Inc()
}

func RecordTeardownStep(step string) {
	RegisterMetrics()
	teardownSteps.WithLabelValues(step).Inc()
}

func RecordRollback() {
	RegisterMetrics()
	rollbacks.Inc()
}
