package hub

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the coordinators do. One instance is shared by
// every hub in a registry.
type Metrics struct {
	Commits         prometheus.Counter
	RebasedCommits  prometheus.Counter
	RejectedCommits prometheus.Counter
	Broadcasts      prometheus.Counter
	OpenSessions    prometheus.Gauge
}

// NewMetrics registers the hub metrics with reg and returns them. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_commits_total",
			Help: "Changes committed to a document log.",
		}),
		RebasedCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_rebased_commits_total",
			Help: "Commits that arrived behind the hub version and were rebased.",
		}),
		RejectedCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_rejected_commits_total",
			Help: "Commits rejected for an invalid version or a failed transform.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scribe_update_broadcasts_total",
			Help: "Update messages fanned out to peer sessions.",
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_open_sessions",
			Help: "Currently open sessions across all documents.",
		}),
	}
	reg.MustRegister(m.Commits, m.RebasedCommits, m.RejectedCommits, m.Broadcasts, m.OpenSessions)
	return m
}
