package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	samples        *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	storeFailures  *prometheus.CounterVec
	publishFailure prometheus.Counter
	actuatorState  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse",
			Name:      "samples_total",
			Help:      "Sensor messages received, by outcome.",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse",
			Name:      "alerts_total",
			Help:      "Alerts raised, by severity and sensor type.",
		}, []string{"severity", "sensor_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse",
			Name:      "actuator_actions_total",
			Help:      "Actuator commands applied.",
		}, []string{"actuator", "action", "trigger"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenhouse",
			Name:      "store_failures_total",
			Help:      "Best-effort persistence writes that failed.",
		}, []string{"kind"}),
		publishFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greenhouse",
			Name:      "publish_failures_total",
			Help:      "MQTT publishes dropped or failed.",
		}),
		actuatorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "greenhouse",
			Name:      "actuator_on",
			Help:      "1 when the actuator is ON.",
		}, []string{"actuator"}),
	}
	if reg != nil {
		reg.MustRegister(m.samples, m.alerts, m.transitions, m.storeFailures, m.publishFailure, m.actuatorState)
	}
	return m
}

func (m *Metrics) sample(outcome string) {
	if m != nil {
		m.samples.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) alert(severity, sensorType string) {
	if m != nil {
		m.alerts.WithLabelValues(severity, sensorType).Inc()
	}
}

func (m *Metrics) transition(actuator, action, trigger string, on bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(actuator, action, trigger).Inc()
	v := 0.0
	if on {
		v = 1
	}
	m.actuatorState.WithLabelValues(actuator).Set(v)
}

func (m *Metrics) storeFailure(kind string) {
	if m != nil {
		m.storeFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) publishFailed() {
	if m != nil {
		m.publishFailure.Inc()
	}
}
