package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tally"

// Recorder counts optimistic mutation outcomes and feed activity. A nil *Recorder is a
// valid no-op.
type Recorder struct {
	registry   *prometheus.Registry
	applies    *prometheus.CounterVec
	confirms   *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	staleDrops *prometheus.CounterVec
	pageLoads  *prometheus.CounterVec
}

// NewRecorder registers the tally collectors on registry. A nil registry gets a fresh one.
func NewRecorder(registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	recorder := &Recorder{
		registry: registry,
		// Labels: kind (submission, comment)
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "optimistic_applies_total",
			Help:      "Optimistic vote mutations applied locally",
		}, []string{"kind"}),
		confirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "confirms_total",
			Help:      "Optimistic vote mutations replaced by server truth",
		}, []string{"kind"}),
		// Labels: kind, reason (session_expired, network_failure, session_changed)
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "rollbacks_total",
			Help:      "Optimistic vote mutations reverted",
		}, []string{"kind", "reason"}),
		staleDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stale_responses_total",
			Help:      "Feed responses discarded because a newer request superseded them",
		}, []string{"sort"}),
		pageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "pages_loaded_total",
			Help:      "Feed pages applied to the cursor",
		}, []string{"sort"}),
	}
	collectors := []prometheus.Collector{
		recorder.applies,
		recorder.confirms,
		recorder.rollbacks,
		recorder.staleDrops,
		recorder.pageLoads,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return recorder, nil
}

// Registry exposes the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// OptimisticApplied counts a local optimistic vote.
func (r *Recorder) OptimisticApplied(kind string) {
	if r == nil {
		return
	}
	r.applies.WithLabelValues(kind).Inc()
}

// Confirmed counts a vote reconciled with the server tally.
func (r *Recorder) Confirmed(kind string) {
	if r == nil {
		return
	}
	r.confirms.WithLabelValues(kind).Inc()
}

// RolledBack counts a reverted vote.
func (r *Recorder) RolledBack(kind, reason string) {
	if r == nil {
		return
	}
	r.rollbacks.WithLabelValues(kind, reason).Inc()
}

// StaleDropped counts a discarded feed response.
func (r *Recorder) StaleDropped(sortKey string) {
	if r == nil {
		return
	}
	r.staleDrops.WithLabelValues(sortKey).Inc()
}

// PageLoaded counts an applied feed page.
func (r *Recorder) PageLoaded(sortKey string) {
	if r == nil {
		return
	}
	r.pageLoads.WithLabelValues(sortKey).Inc()
}
