// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by the engine.
type Metrics struct {
	Ticks           prometheus.Counter
	BackendCommands *prometheus.CounterVec
	BusErrors       *prometheus.CounterVec
	Interfaces      prometheus.Gauge
	Clients         prometheus.Gauge
	PurgeState      prometheus.Gauge
	SlotExhausted   prometheus.Counter
}

// NewMetrics registers the engine metrics with registry. A nil registry
// means prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	auto := promauto.With(registry)

	return &Metrics{
		Ticks: auto.NewCounter(prometheus.CounterOpts{
			Name: "wrl_ticks_total",
			Help: "Total number of reconciliation passes."}),
		BackendCommands: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "wrl_backend_commands_total",
			Help: "Total number of shaping backend commands by command and result."},
			[]string{"command", "result"}),
		BusErrors: auto.NewCounterVec(prometheus.CounterOpts{
			Name: "wrl_bus_errors_total",
			Help: "Total number of failed bus calls."},
			[]string{"call"}),
		Interfaces: auto.NewGauge(prometheus.GaugeOpts{
			Name: "wrl_interfaces",
			Help: "Number of live wireless interfaces."}),
		Clients: auto.NewGauge(prometheus.GaugeOpts{
			Name: "wrl_clients",
			Help: "Number of live clients across all interfaces."}),
		PurgeState: auto.NewGauge(prometheus.GaugeOpts{
			Name: "wrl_purge_state",
			Help: "Purge state (0 none, 1 pending, 2 done)."}),
		SlotExhausted: auto.NewCounter(prometheus.CounterOpts{
			Name: "wrl_client_slot_exhausted_total",
			Help: "Total number of clients dropped for lack of a free slot."}),
	}
}

func (m *Metrics) command(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BackendCommands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) observe(s *State) {
	m.Interfaces.Set(float64(len(s.Registry.Interfaces())))
	m.Clients.Set(float64(s.Registry.ClientCount()))
	m.PurgeState.Set(float64(s.Purge))
}
