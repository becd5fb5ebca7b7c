package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notifyd"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Delivery metrics
	DeliveryAttempts  *prometheus.CounterVec
	DeliveryLatency   *prometheus.HistogramVec
	TokensDeactivated prometheus.Counter

	// Scheduler metrics
	TickDuration     prometheus.Histogram
	TickOutcomes     *prometheus.CounterVec
	TickConflicts    prometheus.Counter
	DueNotifications prometheus.Gauge

	// Reminder metrics
	RemindersGenerated prometheus.Counter
	RemindersSkipped   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeliveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Channel send attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		DeliveryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "send_duration_seconds",
			Help:      "Duration of a single adapter send",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		TokensDeactivated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "push_tokens_deactivated_total",
			Help:      "Push tokens deactivated after a permanent failure",
		}),

		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one scheduler tick",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		TickOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "notifications_total",
			Help:      "Notifications processed by the scheduler by result",
		}, []string{"result"}),
		TickConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "conflicts_total",
			Help:      "Transitions lost to a concurrent writer",
		}),
		DueNotifications: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "due_notifications",
			Help:      "Due notifications found by the last tick",
		}),

		RemindersGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "generated_total",
			Help:      "Reminder notifications materialized",
		}),
		RemindersSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "skipped_total",
			Help:      "Due reminders skipped because their period already fired",
		}),
	}
}

func (m *Metrics) ObserveSend(channel, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.DeliveryAttempts.WithLabelValues(channel, outcome).Inc()
	m.DeliveryLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *Metrics) TokenDeactivated() {
	if m == nil {
		return
	}
	m.TokensDeactivated.Inc()
}

func (m *Metrics) ObserveTick(seconds float64, due int) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(seconds)
	m.DueNotifications.Set(float64(due))
}

func (m *Metrics) TickResult(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.TickOutcomes.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.TickConflicts.Inc()
}

func (m *Metrics) Reminders(created, skipped int) {
	if m == nil {
		return
	}
	m.RemindersGenerated.Add(float64(created))
	m.RemindersSkipped.Add(float64(skipped))
}
