package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cart_checkout"

// Metrics groups the service counters. A nil *Metrics records nothing.
type Metrics struct {
	cartMutations       *prometheus.CounterVec
	persistFailures     prometheus.Counter
	checkoutTransitions *prometheus.CounterVec
	payments            *prometheus.CounterVec
	ordersCreated       prometheus.Counter
	notifications       *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	sessionsEvicted     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cartMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Cart mutations applied, by action.",
		}, []string{"action"}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_persist_failures_total",
			Help:      "Cart snapshots that could not be written to durable storage.",
		}),
		checkoutTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_transitions_total",
			Help:      "Checkout phase transitions, by source, target and result.",
		}, []string{"from", "to", "result"}),
		payments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payment confirmation attempts, by outcome.",
		}, []string{"outcome"}),
		ordersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders persisted after a successful payment.",
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Order confirmed notifications, by result.",
		}, []string{"result"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cart_sessions_active",
			Help:      "Cart sessions held in process memory.",
		}),
		sessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_sessions_evicted_total",
			Help:      "Idle cart sessions dropped from process memory.",
		}),
	}
}

func (m *Metrics) CartMutation(action string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(action).Inc()
}

func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) CheckoutTransition(from, to string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.checkoutTransitions.WithLabelValues(from, to, result).Inc()
}

func (m *Metrics) Payment(outcome string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	result := "published"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) SessionsEvicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.sessionsEvicted.Add(float64(n))
}
