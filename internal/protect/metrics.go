package protect

import "github.com/prometheus/client_golang/prometheus"

// Rejection reasons used as metric labels.
const (
	ReasonBlocked      = "blocked"
	ReasonRateLimited  = "rate_limited"
	ReasonInvalidInput = "invalid_input"
)

var rejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "parley_protection_rejections_total",
		Help: "Requests rejected before reaching the model, by reason.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(rejectionsTotal)
}
