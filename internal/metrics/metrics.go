package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization guard outcomes.",
		},
		[]string{"outcome", "reason"},
	)

	authEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_events_total",
			Help: "Login, logout, refresh and registration outcomes.",
		},
		[]string{"event", "outcome"},
	)

	otpOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_challenges_total",
			Help: "One-time challenge issue and redemption outcomes.",
		},
		[]string{"purpose", "outcome"},
	)

	seededPermissions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permission_seed_last_run",
			Help: "Permission counts of the most recent seeder run.",
		},
		[]string{"result"},
	)

	mailDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_deliveries_total",
			Help: "Outgoing mail attempts by template.",
		},
		[]string{"template", "outcome"},
	)

	revokedTokens = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "revoked_refresh_tokens",
		Help: "Refresh tokens currently held in the blacklist.",
	})

	registerOnce sync.Once
)

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			authzDecisions,
			authEvents,
			otpOutcomes,
			seededPermissions,
			mailDeliveries,
			revokedTokens,
		)
	})
}

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Instrument records request count and latency under the matched route template,
// so path parameters do not explode label cardinality.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpInFlight.Dec()
	}
}

func AuthzDecision(allowed bool, reason string) {
	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	authzDecisions.WithLabelValues(outcome, reason).Inc()
}

func AuthEvent(event, outcome string) {
	authEvents.WithLabelValues(event, outcome).Inc()
}

func OTPOutcome(purpose, outcome string) {
	otpOutcomes.WithLabelValues(purpose, outcome).Inc()
}

func SeedResult(created, updated, unchanged int) {
	seededPermissions.WithLabelValues("created").Set(float64(created))
	seededPermissions.WithLabelValues("updated").Set(float64(updated))
	seededPermissions.WithLabelValues("unchanged").Set(float64(unchanged))
}

func MailDelivery(template string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	mailDeliveries.WithLabelValues(template, outcome).Inc()
}

func RevokedTokens(n int) {
	revokedTokens.Set(float64(n))
}
