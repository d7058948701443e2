package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_guard_decisions_total",
			Help: "Route guard decisions by outcome",
		},
		[]string{"decision"},
	)

	KeyOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_key_operations_total",
			Help: "Successful API key mutations by operation",
		},
		[]string{"operation"},
	)

	KeyValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_key_validations_total",
			Help: "Playground key validation attempts by result",
		},
		[]string{"result"},
	)

	SignIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_sign_ins_total",
			Help: "Password sign-in attempts by result",
		},
		[]string{"result"},
	)
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
