// Package metrics exports cache events to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/krisalay/refresh-cache/types"
)

var _ types.Metrics = (*Prometheus)(nil)

// Prometheus implements types.Metrics. One instance per cache; the cache
// label tells instances apart on a shared registry.
type Prometheus struct {
	lookups      *prometheus.CounterVec
	regenerated  *prometheus.CounterVec
	shared       prometheus.Counter
	regeneration prometheus.Observer
}

// lookup outcomes
const (
	outcomeHit     = "hit"
	outcomeMiss    = "miss"
	outcomeStale   = "stale"
	outcomeRefresh = "forced_refresh"
)

// NewPrometheus registers the cache collectors on reg under namespace.
func NewPrometheus(reg prometheus.Registerer, namespace, cacheName string) (*Prometheus, error) {
	constLabels := prometheus.Labels{"cache": cacheName}

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "lookups_total",
		Help:        "Cache lookups by outcome (hit, miss, stale, forced_refresh)",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	regenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "regenerations_total",
		Help:        "Regenerations by result (ok, error)",
		ConstLabels: constLabels,
	}, []string{"result"})
	shared := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "shared_regenerations_total",
		Help:        "Callers served by a regeneration shared with other callers",
		ConstLabels: constLabels,
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "regeneration_duration_seconds",
		Help:        "Histogram of regeneration durations in seconds",
		ConstLabels: constLabels,
		Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
	})

	for _, c := range []prometheus.Collector{lookups, regenerated, shared, duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Prometheus{
		lookups:      lookups,
		regenerated:  regenerated,
		shared:       shared,
		regeneration: duration,
	}, nil
}

func (p *Prometheus) Hit()     { p.lookups.WithLabelValues(outcomeHit).Inc() }
func (p *Prometheus) Miss()    { p.lookups.WithLabelValues(outcomeMiss).Inc() }
func (p *Prometheus) Stale()   { p.lookups.WithLabelValues(outcomeStale).Inc() }
func (p *Prometheus) Refresh() { p.lookups.WithLabelValues(outcomeRefresh).Inc() }
func (p *Prometheus) Shared()  { p.shared.Inc() }

func (p *Prometheus) Regenerated(d time.Duration, err error) {
	p.regeneration.Observe(d.Seconds())
	if err != nil {
		p.regenerated.WithLabelValues("error").Inc()
		return
	}
	p.regenerated.WithLabelValues("ok").Inc()
}
