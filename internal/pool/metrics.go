package pool

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are the per-pool collectors.
type metrics struct {
	received      *prometheus.CounterVec
	unique        prometheus.Counter
	duplicate     prometheus.Counter
	unattributed  prometheus.Counter
	dropped       *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	connectErrors *prometheus.CounterVec
	commands      *prometheus.CounterVec
	relaysActive  prometheus.Gauge
	subsActive    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, log *slog.Logger) *metrics {
	m := &metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaypool_events_received_total",
			Help: "Inbound relay messages handed to the raw stream.",
		}, []string{"relay"}),
		unique: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaypool_events_unique_total",
			Help: "Events surfaced on the payload stream.",
		}),
		duplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaypool_events_duplicate_total",
			Help: "Events suppressed because their id was already surfaced.",
		}),
		unattributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaypool_events_unattributed_total",
			Help: "Events delivered for a subscription id that is not registered.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaypool_events_dropped_total",
			Help: "Items dropped because a stream listener did not keep up.",
		}, []string{"stream"}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaypool_send_errors_total",
			Help: "Outbound messages a relay handle refused.",
		}, []string{"relay"}),
		connectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaypool_connect_errors_total",
			Help: "Failed dials and dropped relay connections.",
		}, []string{"relay"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaypool_commands_total",
			Help: "Commands processed by the dispatch loop.",
		}, []string{"kind"}),
		relaysActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaypool_relays_active",
			Help: "Relay handles currently connected.",
		}),
		subsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaypool_subscriptions_active",
			Help: "Subscriptions currently registered.",
		}),
	}

	if reg == nil {
		return m
	}
	m.received = register(reg, m.received, log)
	m.unique = register(reg, m.unique, log)
	m.duplicate = register(reg, m.duplicate, log)
	m.unattributed = register(reg, m.unattributed, log)
	m.dropped = register(reg, m.dropped, log)
	m.sendErrors = register(reg, m.sendErrors, log)
	m.connectErrors = register(reg, m.connectErrors, log)
	m.commands = register(reg, m.commands, log)
	m.relaysActive = register(reg, m.relaysActive, log)
	m.subsActive = register(reg, m.subsActive, log)
	return m
}

// register adds c to reg. Pools sharing a registry share the collectors.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, log *slog.Logger) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	log.Warn("metric registration failed", "error", err)
	return c
}
