// Package metrics exposes Prometheus counters for the decision engine.
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesboost"

// Metrics groups every engine collector.
type Metrics struct {
	// TicksTotal counts re-evaluation ticks by result (ok, cart_error).
	TicksTotal *prometheus.CounterVec

	// TriggersTotal counts tick requests by reason before coalescing.
	TriggersTotal *prometheus.CounterVec

	// RendersTotal counts widgets inserted by placement and kind.
	RendersTotal *prometheus.CounterVec

	// SkipsTotal counts placements skipped because no insertion point matched.
	SkipsTotal *prometheus.CounterVec

	// AddAttemptsTotal counts add-to-cart POSTs by verification result.
	AddAttemptsTotal *prometheus.CounterVec

	// MutationsTotal counts AddSequential calls by outcome.
	MutationsTotal *prometheus.CounterVec

	// ConfigLoadsTotal counts config loads by source (network, cache, none).
	ConfigLoadsTotal *prometheus.CounterVec

	// AnalyticsDroppedTotal counts analytics events dropped by a full queue
	// or a failed POST.
	AnalyticsDroppedTotal prometheus.Counter
}

// New registers the engine collectors on reg.
// Use a fresh prometheus.NewRegistry() per engine instance in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Re-evaluation ticks by result",
		}, []string{"result"}),
		TriggersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Tick requests by reason, before coalescing",
		}, []string{"reason"}),
		RendersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Widgets inserted by placement and kind",
		}, []string{"placement", "kind"}),
		SkipsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insertion_skips_total",
			Help:      "Placements skipped for lack of an insertion point",
		}, []string{"placement"}),
		AddAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "add_attempts_total",
			Help:      "Add-to-cart POSTs by verification result",
		}, []string{"result"}),
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Sequential add operations by outcome",
		}, []string{"outcome"}),
		ConfigLoadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_loads_total",
			Help:      "Config loads by source",
		}, []string{"source"}),
		AnalyticsDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_dropped_total",
			Help:      "Analytics events that were not delivered",
		}),
	}
}

// Handler serves the collectors registered on g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick counts one finished tick.
func (m *Metrics) RecordTick(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "cart_error"
	}
	m.TicksTotal.WithLabelValues(result).Inc()
}

// RecordTrigger counts one tick request.
func (m *Metrics) RecordTrigger(reason string) {
	if m == nil {
		return
	}
	m.TriggersTotal.WithLabelValues(reason).Inc()
}

// RecordRender counts one inserted widget.
func (m *Metrics) RecordRender(placement, kind string) {
	if m == nil {
		return
	}
	m.RendersTotal.WithLabelValues(placement, kind).Inc()
}

// RecordSkip counts one placement without an insertion point.
func (m *Metrics) RecordSkip(placement string) {
	if m == nil {
		return
	}
	m.SkipsTotal.WithLabelValues(placement).Inc()
}

// RecordAttempt counts one add POST and whether its verification read
// found the item.
func (m *Metrics) RecordAttempt(verified bool) {
	if m == nil {
		return
	}
	result := "verified"
	if !verified {
		result = "unverified"
	}
	m.AddAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordMutation counts one finished AddSequential call.
func (m *Metrics) RecordMutation(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.MutationsTotal.WithLabelValues(outcome).Inc()
}

// RecordConfigLoad counts one config load by source.
func (m *Metrics) RecordConfigLoad(source string) {
	if m == nil {
		return
	}
	m.ConfigLoadsTotal.WithLabelValues(source).Inc()
}

// RecordAnalyticsDropped counts one undelivered analytics event.
func (m *Metrics) RecordAnalyticsDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDroppedTotal.Inc()
}
