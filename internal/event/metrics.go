package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frankli0324/go-http/internal/exchange"
	"github.com/frankli0324/go-http/internal/model"
)

const (
	directionRequest  = "request"
	directionResponse = "response"
)

// Metrics counts exchange events, body bytes and failures per direction.
type Metrics struct {
	events    *prometheus.CounterVec
	bodyBytes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	responses *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gohttp",
			Subsystem: "exchange",
			Name:      "events_total",
			Help:      "Exchange lifecycle events",
		}, []string{"event"}),
		bodyBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gohttp",
			Subsystem: "exchange",
			Name:      "body_bytes_total",
			Help:      "Body bytes carried by completed exchanges",
		}, []string{"direction"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gohttp",
			Subsystem: "exchange",
			Name:      "failures_total",
			Help:      "Failed exchange phases",
		}, []string{"direction"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gohttp",
			Subsystem: "exchange",
			Name:      "responses_total",
			Help:      "Response headers received, by status class",
		}, []string{"class"}),
	}
}

func (m *Metrics) RequestHeadersStart(exchange.Call) {
	m.events.WithLabelValues("request_headers_start").Inc()
}

func (m *Metrics) RequestHeadersEnd(exchange.Call, *model.PreparedRequest) {
	m.events.WithLabelValues("request_headers_end").Inc()
}

func (m *Metrics) RequestBodyStart(exchange.Call) {
	m.events.WithLabelValues("request_body_start").Inc()
}

func (m *Metrics) RequestBodyEnd(_ exchange.Call, byteCount int64) {
	m.events.WithLabelValues("request_body_end").Inc()
	if byteCount > 0 {
		m.bodyBytes.WithLabelValues(directionRequest).Add(float64(byteCount))
	}
}

func (m *Metrics) RequestFailed(exchange.Call, error) {
	m.failures.WithLabelValues(directionRequest).Inc()
}

func (m *Metrics) ResponseHeadersStart(exchange.Call) {
	m.events.WithLabelValues("response_headers_start").Inc()
}

func (m *Metrics) ResponseHeadersEnd(_ exchange.Call, resp *model.Response) {
	m.events.WithLabelValues("response_headers_end").Inc()
	m.responses.WithLabelValues(statusClass(resp.Code())).Inc()
}

func (m *Metrics) ResponseBodyStart(exchange.Call) {
	m.events.WithLabelValues("response_body_start").Inc()
}

func (m *Metrics) ResponseBodyEnd(_ exchange.Call, byteCount int64) {
	m.events.WithLabelValues("response_body_end").Inc()
	if byteCount > 0 {
		m.bodyBytes.WithLabelValues(directionResponse).Add(float64(byteCount))
	}
}

func (m *Metrics) ResponseFailed(exchange.Call, error) {
	m.failures.WithLabelValues(directionResponse).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 600:
		return string(rune('0'+code/100)) + "xx"
	}
	return "unknown"
}
