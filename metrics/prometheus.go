// Package metrics holds the Prometheus collectors the persona clients update.
// They count from process start; InitMetrics exports them through a registry.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const namespace = "persona_client"

var (
	TokenRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_requests_total",
		Help:      "Client-credentials token requests sent to persona, by outcome.",
	}, []string{"outcome"})
	TokenCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_cache_lookups_total",
		Help:      "Token cache lookups, by result (hit, miss, expired, error).",
	}, []string{"result"})
	TokenValidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_validations_total",
		Help:      "Token validations, by mode and result.",
	}, []string{"mode", "result"})
	RemoteRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_request_duration_seconds",
		Help:      "Duration of outbound HTTP requests, by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// InitMetrics registers the client metrics with reg. Registering with the
// same registry again is a no-op.
func InitMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register client metrics.")
		return
	}
	for _, c := range []prometheus.Collector{
		TokenRequestsTotal,
		TokenCacheLookupsTotal,
		TokenValidationsTotal,
		RemoteRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			log.Warn().Err(err).Msg("Failed to register client metric")
		}
	}
}
