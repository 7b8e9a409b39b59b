package lazy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	pathFast   = "fast"
	pathSlow   = "slow"
	pathSetter = "setter"
)

// Metrics collects cell activity for prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	negotiations *prometheus.CounterVec
	commits      *prometheus.CounterVec
	releases     *prometheus.CounterVec
	poisonings   *prometheus.CounterVec
	waitSeconds  *prometheus.HistogramVec
	holdSeconds  *prometheus.HistogramVec
}

// NewMetrics returns unregistered cell metrics. Pass the result to WithMetrics
// for every cell that should report into it, and call Register once.
func NewMetrics() *Metrics {
	return &Metrics{
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazycell",
			Name:      "negotiations_total",
			Help: "Number of Negotiate calls by how they were resolved: fast (value seen without locking), " +
				"slow (value seen after waiting for the lock) or setter (caller won the right to set the value).",
		}, []string{"cell", "path"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazycell",
			Name:      "commits_total",
			Help:      "Number of values stored through a setter.",
		}, []string{"cell"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazycell",
			Name:      "releases_total",
			Help:      "Number of setters released without storing a value.",
		}, []string{"cell"}),
		poisonings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lazycell",
			Name:      "poisonings_total",
			Help:      "Number of times a setter holder panicked and poisoned the cell.",
		}, []string{"cell"}),
		waitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lazycell",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for exclusive access on the slow path of Negotiate.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"cell"}),
		holdSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lazycell",
			Name:      "lock_hold_seconds",
			Help:      "Time a setter held the cell before setting or releasing it.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"cell"}),
	}
}

// Register adds the metrics to reg. It fails if any of them is already
// registered.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.negotiations, m.commits, m.releases, m.poisonings, m.waitSeconds, m.holdSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observeNegotiation(cell, path string) {
	if m == nil {
		return
	}
	m.negotiations.WithLabelValues(cell, path).Inc()
}

func (m *Metrics) observeCommit(cell string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(cell).Inc()
}

func (m *Metrics) observeRelease(cell string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(cell).Inc()
}

func (m *Metrics) observePoison(cell string) {
	if m == nil {
		return
	}
	m.poisonings.WithLabelValues(cell).Inc()
}

func (m *Metrics) observeWait(cell string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitSeconds.WithLabelValues(cell).Observe(d.Seconds())
}

func (m *Metrics) observeHold(cell string, d time.Duration) {
	if m == nil {
		return
	}
	m.holdSeconds.WithLabelValues(cell).Observe(d.Seconds())
}
