// Package metrics exposes Prometheus counters for the tournament engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager регистрирует и инкрементирует метрики движка.
type Manager struct {
	entriesCreated prometheus.Counter
	scoresAccepted prometheus.Counter
	scoresRejected *prometheus.CounterVec

	eventsBroadcast *prometheus.CounterVec

	settlements        prometheus.Counter
	settlementDuration prometheus.Histogram
	payoutsByStatus    *prometheus.CounterVec
}

func NewManager(namespace string) *Manager {
	return NewManagerWith(prometheus.DefaultRegisterer, namespace)
}

// NewManagerWith регистрирует метрики в переданном реестре.
// В тестах каждому сервису даётся свой prometheus.NewRegistry.
func NewManagerWith(reg prometheus.Registerer, namespace string) *Manager {
	factory := promauto.With(reg)
	return &Manager{
		entriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_created_total",
			Help:      "Tournament entries successfully admitted.",
		}),
		scoresAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_accepted_total",
			Help:      "Score submissions appended to the event log.",
		}),
		scoresRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_rejected_total",
			Help:      "Score submissions rejected, by reason.",
		}, []string{"reason"}),
		eventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Events fanned out to tournament rooms, by type.",
		}, []string{"type"}),
		settlements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Tournaments settled.",
		}),
		settlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_seconds",
			Help:      "Wall time of a full settlement run.",
			Buckets:   prometheus.DefBuckets,
		}),
		payoutsByStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Payouts recorded, by final status.",
		}, []string{"status"}),
	}
}

func (m *Manager) EntryCreated()  { m.entriesCreated.Inc() }
func (m *Manager) ScoreAccepted() { m.scoresAccepted.Inc() }
func (m *Manager) ScoreRejected(reason string) {
	m.scoresRejected.WithLabelValues(reason).Inc()
}
func (m *Manager) EventBroadcast(eventType string) {
	m.eventsBroadcast.WithLabelValues(eventType).Inc()
}
func (m *Manager) SettlementCompleted(d time.Duration) {
	m.settlements.Inc()
	m.settlementDuration.Observe(d.Seconds())
}
func (m *Manager) PayoutRecorded(status string) {
	m.payoutsByStatus.WithLabelValues(status).Inc()
}
