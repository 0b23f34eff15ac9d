package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsay_messages_received_total",
		Help: "Total number of inbound messages received",
	}, []string{"kind"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsay_generations_total",
		Help: "Total number of reply generation attempts",
	}, []string{"status"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whatsay_generation_duration_seconds",
		Help:    "Duration of reply generation round trips",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	creditsDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsay_credits_debited_total",
		Help: "Total number of credits debited",
	})

	creditRefusals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsay_credit_refusals_total",
		Help: "Total number of sessions refused for insufficient credits",
	})

	parseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsay_parse_fallbacks_total",
		Help: "Total number of completions parsed via blank-line fallback",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsay_active_sessions",
		Help: "Number of users with an active session",
	})
)

// RecordMessageReceived records an inbound message or callback
func RecordMessageReceived(kind string) {
	messagesReceived.WithLabelValues(kind).Inc()
}

// RecordGeneration records one generation attempt and its duration
func RecordGeneration(status string, duration time.Duration) {
	generationsTotal.WithLabelValues(status).Inc()
	generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCreditDebited records a successful debit
func RecordCreditDebited() {
	creditsDebited.Inc()
}

// RecordCreditRefusal records a session refused at the credit gate
func RecordCreditRefusal() {
	creditRefusals.Inc()
}

// RecordParseFallback records a completion recovered via blank-line split
func RecordParseFallback() {
	parseFallbacks.Inc()
}

// SetActiveSessions sets the active session gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// StartServer starts the metrics HTTP server
func StartServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
