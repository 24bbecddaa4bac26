// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DialogsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gastobot_dialogs_open",
		Help: "Classification dialogs currently open.",
	})

	DialogOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gastobot_dialog_outcomes_total",
		Help: "Finished classification dialogs by outcome.",
	}, []string{"outcome"})

	TransportRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gastobot_transport_retries_total",
		Help: "Messenger calls retried after a transient failure.",
	}, []string{"op"})

	TransportOutages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gastobot_transport_outages_total",
		Help: "Transitions of the messenger transport into the failing state.",
	})

	LedgerWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gastobot_ledger_writes_total",
		Help: "Ledger entry writes by result.",
	}, []string{"result"})

	RecurringActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gastobot_recurring_actions_total",
		Help: "Recurring review actions by kind.",
	}, []string{"action"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		DialogsOpen, DialogOutcomes, TransportRetries, TransportOutages, LedgerWrites, RecurringActions,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
