package persona

import (
	"github.com/pilab-dev/persona-client/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exports the token, cache, validation and outbound request
// metrics of every persona client in the process through reg.
func RegisterMetrics(reg prometheus.Registerer) {
	metrics.InitMetrics(reg)
}
