package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	conversationTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Turns processed, labeled by the state that handled them and the outcome.",
		},
		[]string{"state", "outcome"},
	)

	ordersCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_completed_total",
			Help: "Orders that reached final confirmation.",
		},
	)

	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_started_total",
			Help: "New intake sessions created.",
		},
	)

	cepLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cep_lookups_total",
			Help: "Address lookups by outcome (ok | not_found | error).",
		},
		[]string{"outcome"},
	)

	cepLookupLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cep_lookup_latency_ms",
			Help:    "Address lookup latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
	)
)

// Register registers all collectors with the default registry exactly once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			conversationTurns,
			ordersCompleted,
			sessionsStarted,
			cepLookups,
			cepLookupLatencyMs,
		)
	})
}

// Turn outcomes.
const (
	OutcomeAdvanced = "advanced"
	OutcomeRetried  = "retried"
	OutcomeFinished = "finished"
)

func IncTurn(state, outcome string) { conversationTurns.WithLabelValues(state, outcome).Inc() }
func IncOrderCompleted()            { ordersCompleted.Inc() }
func IncSessionStarted()            { sessionsStarted.Inc() }

func IncCEPLookup(outcome string)        { cepLookups.WithLabelValues(outcome).Inc() }
func ObserveCEPLookupLatency(ms float64) { cepLookupLatencyMs.Observe(ms) }
