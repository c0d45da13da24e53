package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	CallLegs       *prometheus.CounterVec
	DialAttempts   prometheus.Counter
	AlertPosts     *prometheus.CounterVec
	RosterRequests *prometheus.CounterVec
	Transcriptions *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CallLegs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_legs_total",
			Help:      "Webhook call legs handled, by state machine state.",
		}, []string{"state"}),
		DialAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_attempts_total",
			Help:      "Outbound dial attempts placed against on-call candidates.",
		}),
		AlertPosts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_posts_total",
			Help:      "Alert transitions posted to the incident platform, by type and outcome.",
		}, []string{"message_type", "outcome"}),
		RosterRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_requests_total",
			Help:      "Roster platform API requests, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		Transcriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Voicemail transcription callbacks, by outcome.",
		}, []string{"outcome"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
