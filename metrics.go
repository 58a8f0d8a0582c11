package stm

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional counters/gauges the commit coordinator and
// hub update when registered (§6 "Configuration" is otherwise
// constructor-argument-only; metrics are the one opt-in ambient knob).
// Nothing is recorded until WithMetrics installs an instance built by
// NewMetrics; a zero Metrics value has nil collectors, so installing one
// panics on the first recording.
//
// Grounded in gojodb/pkg/telemetry's small counters-and-gauges wiring:
// this package never starts an HTTP server or reaches for a global
// registry on its own. Registration and exporting are the embedder's job
// (§1 "no I/O").
type Metrics struct {
	CommitAttempts prometheus.Counter
	CommitRetries  prometheus.Counter
	CommitSuccess  prometheus.Counter
	CommitFailure  prometheus.Counter
	HubBacklog     prometheus.Gauge
}

// NewMetrics builds a Metrics instance and registers it with reg.
// Callers typically pass prometheus.DefaultRegisterer or a registry of
// their own.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CommitAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostm", Name: "commit_attempts_total",
			Help: "Total number of transaction attempts submitted to the commit coordinator.",
		}),
		CommitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostm", Name: "commit_retries_total",
			Help: "Total number of attempts that parked on an explicit Retry.",
		}),
		CommitSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostm", Name: "commit_success_total",
			Help: "Total number of attempts that committed successfully.",
		}),
		CommitFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gostm", Name: "commit_failure_total",
			Help: "Total number of attempts that committed an aborted-with-error outcome.",
		}),
		HubBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gostm", Name: "hub_backlog",
			Help: "Most recently observed size of a hub instrumented with these metrics.",
		}),
	}
	for _, c := range []prometheus.Collector{m.CommitAttempts, m.CommitRetries, m.CommitSuccess, m.CommitFailure, m.HubBacklog} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// pkgMetrics is nil until WithMetrics installs an instance; every
// recording site below nil-checks it first so metrics stay entirely
// opt-in.
var pkgMetrics *Metrics

// WithMetrics installs m as the package-wide metrics sink for Atomically
// and AtomicallyWith. Passing nil disables recording again.
func WithMetrics(m *Metrics) {
	pkgMetrics = m
}

func recordAttempt() {
	if pkgMetrics != nil {
		pkgMetrics.CommitAttempts.Inc()
	}
}

func recordOutcome(kind ResultKind) {
	if pkgMetrics == nil {
		return
	}
	switch kind {
	case Retry:
		pkgMetrics.CommitRetries.Inc()
	case Success:
		pkgMetrics.CommitSuccess.Inc()
	case Failure:
		pkgMetrics.CommitFailure.Inc()
	}
}

// RecordHubBacklog reports size for a hub instrumented with WithMetrics.
// Hub.Publish/Take call this automatically when pkgMetrics is set; it is
// exported so an embedder driving hubs through its own scheduler can
// report backlog explicitly instead.
func RecordHubBacklog(size int) {
	if pkgMetrics != nil {
		pkgMetrics.HubBacklog.Set(float64(size))
	}
}
