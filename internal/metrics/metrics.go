// Package metrics exposes Prometheus counters and gauges for the
// session-and-routing core: active sessions, attached farms, and
// per-verb command and publish outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters the core increments. A nil *Registry is
// safe to call methods on (no-op), so tests and callers that don't care
// about metrics don't need a registerer.
type Registry struct {
	sessionsActive prometheus.Gauge
	farmsAttached  prometheus.Gauge
	commandsTotal  *prometheus.CounterVec
	publishesTotal *prometheus.CounterVec
}

// New registers the core's metrics with reg and returns a Registry.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rapidcontrol",
			Name:      "sessions_active",
			Help:      "Number of currently signed-in sessions.",
		}),
		farmsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rapidcontrol",
			Name:      "farms_attached",
			Help:      "Number of connections currently attached to a farm.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rapidcontrol",
			Name:      "commands_total",
			Help:      "Commands processed, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		publishesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rapidcontrol",
			Name:      "publishes_total",
			Help:      "Routing-fabric publishes, by topic family and outcome.",
		}, []string{"family", "outcome"}),
	}
	reg.MustRegister(r.sessionsActive, r.farmsAttached, r.commandsTotal, r.publishesTotal)
	return r
}

// SessionOpened increments the active-session gauge.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.sessionsActive.Inc()
}

// SessionClosed decrements the active-session gauge.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// FarmAttached increments the farm-attachment gauge.
func (r *Registry) FarmAttached() {
	if r == nil {
		return
	}
	r.farmsAttached.Inc()
}

// FarmDetached decrements the farm-attachment gauge.
func (r *Registry) FarmDetached() {
	if r == nil {
		return
	}
	r.farmsAttached.Dec()
}

// CommandProcessed records one handler invocation.
func (r *Registry) CommandProcessed(verb, outcome string) {
	if r == nil {
		return
	}
	r.commandsTotal.WithLabelValues(verb, outcome).Inc()
}

// Published records one routing-fabric publish attempt.
func (r *Registry) Published(family string, delivered bool) {
	if r == nil {
		return
	}
	outcome := "dropped"
	if delivered {
		outcome = "delivered"
	}
	r.publishesTotal.WithLabelValues(family, outcome).Inc()
}
