package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	PublicKeysRegisteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "public_keys_registered_total",
			Help: "Public key registrations by outcome.",
		},
		[]string{"result"},
	)

	ChannelEncryptionEnabledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "channel_encryption_enabled_total",
			Help: "Channel encryption enablement attempts by outcome.",
		},
		[]string{"result"},
	)

	SessionKeysStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_keys_stored_total",
			Help: "Session-key envelope writes by outcome.",
		},
		[]string{"result"},
	)

	SessionKeysRotatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_keys_rotated_total",
			Help: "Session-key rotations by outcome.",
		},
		[]string{"result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		PublicKeysRegisteredTotal,
		ChannelEncryptionEnabledTotal,
		SessionKeysStoredTotal,
		SessionKeysRotatedTotal,
	)
}
