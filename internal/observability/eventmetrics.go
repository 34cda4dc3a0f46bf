package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventMetrics counts normalized webhook events and failure paths.
type EventMetrics struct {
	eventsTotal       *prometheus.CounterVec
	handlerFailures   *prometheus.CounterVec
	signatureFailures prometheus.Counter
}

func NewEventMetrics() *EventMetrics {
	return &EventMetrics{
		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgport",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Normalized inbound events by platform and kind.",
		}, []string{"platform", "kind"}),
		handlerFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgport",
			Subsystem: "webhook",
			Name:      "handler_failures_total",
			Help:      "Detached event handler failures by platform.",
		}, []string{"platform"}),
		signatureFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "msgport",
			Subsystem: "webhook",
			Name:      "signature_failures_total",
			Help:      "Deliveries rejected by signature verification.",
		}),
	}
}

func (m *EventMetrics) ObserveEvent(platform, kind string) {
	m.eventsTotal.WithLabelValues(platform, kind).Inc()
}

func (m *EventMetrics) ObserveHandlerFailure(platform string) {
	m.handlerFailures.WithLabelValues(platform).Inc()
}

func (m *EventMetrics) ObserveSignatureFailure() {
	m.signatureFailures.Inc()
}
