/*
Package metrics exposes task, credit and streaming counters to Prometheus.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "a2a_payments"

/*
Collector groups the agent's instruments. A nil *Collector is valid and
records nothing, so components can be built without metrics.
*/
type Collector struct {
	tasks             *prometheus.CounterVec
	events            *prometheus.CounterVec
	creditsBurned     prometheus.Counter
	burnFailures      prometheus.Counter
	streamConnections prometheus.Gauge
	pushQueued        prometheus.Counter
	storedTasks       prometheus.Gauge
}

/*
New registers the instruments on reg.
*/
func New(reg prometheus.Registerer) *Collector {
	collector := &Collector{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Tasks that reached a final state, by intent and state.",
		}, []string{"intent", "state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on task buses, by kind.",
		}, []string{"kind"}),
		creditsBurned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_burned_total",
			Help:      "Credits burned for finished tasks.",
		}),
		burnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_burn_failures_total",
			Help:      "Credit burns the payments backend rejected.",
		}),
		streamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections",
			Help:      "Open message/stream connections.",
		}),
		pushQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_queued_total",
			Help:      "Status updates queued for webhook delivery.",
		}),
		storedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_stored",
			Help:      "Tasks held in the in-memory store.",
		}),
	}

	reg.MustRegister(
		collector.tasks,
		collector.events,
		collector.creditsBurned,
		collector.burnFailures,
		collector.streamConnections,
		collector.pushQueued,
		collector.storedTasks,
	)

	return collector
}

func (collector *Collector) TaskFinished(intent, state string) {
	if collector == nil {
		return
	}

	if intent == "" {
		intent = "unknown"
	}

	collector.tasks.WithLabelValues(intent, state).Inc()
}

func (collector *Collector) EventPublished(kind string) {
	if collector == nil {
		return
	}

	collector.events.WithLabelValues(kind).Inc()
}

func (collector *Collector) CreditsBurned(credits int) {
	if collector == nil || credits <= 0 {
		return
	}

	collector.creditsBurned.Add(float64(credits))
}

func (collector *Collector) BurnFailed() {
	if collector == nil {
		return
	}

	collector.burnFailures.Inc()
}

func (collector *Collector) PushQueued() {
	if collector == nil {
		return
	}

	collector.pushQueued.Inc()
}

func (collector *Collector) StoredTasks(count int) {
	if collector == nil {
		return
	}

	collector.storedTasks.Set(float64(count))
}

/*
StreamOpened increments the open stream gauge and returns the matching
decrement.
*/
func (collector *Collector) StreamOpened() func() {
	if collector == nil {
		return func() {}
	}

	collector.streamConnections.Inc()

	return collector.streamConnections.Dec
}
