package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
)

// Metrics collects gateway counters in their own registry.
type Metrics struct {
	registry *prometheus.Registry

	commands     *prometheus.CounterVec
	sms          *prometheus.CounterVec
	breakerState prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "atgw",
				Subsystem: "modem",
				Name:      "commands_total",
				Help:      "AT commands executed through the gateway.",
			},
			[]string{"kind", "outcome"},
		),
		sms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "atgw",
				Subsystem: "sms",
				Name:      "messages_total",
				Help:      "SMS submissions.",
			},
			[]string{"outcome"},
		),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "atgw",
			Subsystem: "modem",
			Name:      "breaker_state",
			Help:      "Modem circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}
	m.registry.MustRegister(m.commands, m.sms, m.breakerState)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordCommand(kind, outcome string) {
	m.commands.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordSMS(outcome string) {
	m.sms.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetBreakerState(state gobreaker.State) {
	m.breakerState.Set(float64(state))
}
