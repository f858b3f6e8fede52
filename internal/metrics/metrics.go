// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zappabad/herdmarket/internal/engine"
)

const namespace = "herdmarket"

// Metrics holds the collectors fed by step records. It is an engine.Sink.
type Metrics struct {
	StepsTotal    prometheus.Counter
	Price         prometheus.Gauge
	ExcessDemand  prometheus.Gauge
	OrdersTotal   *prometheus.CounterVec
	Population    *prometheus.GaugeVec
	SwitchesTotal prometheus.Counter
	StepInterval  prometheus.Histogram

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

var _ engine.Sink = (*Metrics)(nil)

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "steps_total",
			Help:      "Total number of simulated ticks",
		}),
		Price: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "price",
			Help:      "Market price after the latest tick",
		}),
		ExcessDemand: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "excess_demand",
			Help:      "Executed bids minus executed offers in the latest tick",
		}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "orders_total",
			Help:      "Total number of executed orders by side",
		}, []string{"side"}),
		Population: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "population",
			Help:      "Number of agents holding each strategy",
		}, []string{"strategy"}),
		SwitchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "switches_total",
			Help:      "Total number of strategy switches",
		}),
		StepInterval: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "step_interval_seconds",
			Help:      "Wall time between consecutive step records",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		now: time.Now,
	}
}

// Publish updates the collectors from rec.
func (m *Metrics) Publish(_ context.Context, rec *engine.StepRecord) error {
	model := rec.Model

	m.StepsTotal.Inc()
	m.Price.Set(model.Price)
	m.ExcessDemand.Set(float64(model.ExcessDemand()))
	m.OrdersTotal.WithLabelValues(engine.ActionBid.String()).Add(float64(model.Bids))
	m.OrdersTotal.WithLabelValues(engine.ActionOffer.String()).Add(float64(model.Offers))
	m.Population.WithLabelValues(engine.StrategyOptimist.String()).Set(float64(model.Optimists))
	m.Population.WithLabelValues(engine.StrategyPessimist.String()).Set(float64(model.Pessimists))
	m.Population.WithLabelValues(engine.StrategyRandom.String()).Set(float64(model.Randoms))
	m.SwitchesTotal.Add(float64(model.Switches))

	m.mu.Lock()
	now := m.now()
	if !m.last.IsZero() {
		m.StepInterval.Observe(now.Sub(m.last).Seconds())
	}
	m.last = now
	m.mu.Unlock()
	return nil
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
