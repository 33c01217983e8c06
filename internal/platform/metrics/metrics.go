// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts dispatched messages by action and result.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_messages_total",
		Help: "Dispatched messages by action and result",
	}, []string{"action", "result"})

	// StorageOpsTotal counts durable store operations by op and result.
	StorageOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_storage_ops_total",
		Help: "Durable store operations by op and result",
	}, []string{"op", "result"})

	StorageRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_storage_retries_total",
		Help: "Store attempts that failed and were retried",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusguard_active_sessions",
		Help: "Sessions currently held in the coordinator table",
	})

	// SessionsEndedTotal counts session exits by reason (wake, tab_closed, replaced, expired_offline).
	SessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_sessions_ended_total",
		Help: "Sessions removed from the table by reason",
	}, []string{"reason"})

	RecoveryAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_recovery_anomalies_total",
		Help: "Malformed session records dropped during recovery",
	})

	WakesRearmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_wakes_rearmed_total",
		Help: "Wake timers re-armed from persisted state",
	})

	SchedulingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_scheduling_errors_total",
		Help: "Wake timers that could not be armed",
	})

	GatewayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focusguard_gateway_connections",
		Help: "Open presentation gateway connections",
	})
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
