package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridebook/errs"
)

const namespace = "ridebook"

var (
	RideTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ride_transitions_total",
		Help:      "Ride transitions by event and outcome.",
	}, []string{"event", "outcome"})

	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Balance mutations by operation and outcome.",
	}, []string{"operation", "outcome"})

	RepairedBalances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "repaired_balances_total",
		Help:      "Balances reset to zero by the repair path.",
	}, []string{"path"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Ride notifications that could not be published.",
	}, []string{"action"})
)

// Outcome labels err for a counter: "ok", an outcome code, or "internal".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errs.KindOf(err).Code()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
