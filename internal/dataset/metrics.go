package dataset

import "github.com/prometheus/client_golang/prometheus"

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultInvalid = "invalid"
	resultError   = "error"

	transportHTTP = "http"
	transportGRPC = "grpc"
)

// Metrics counts data set lookups. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	responseBytes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartmeter_dataset_requests_total",
				Help: "Data set lookups by transport and result",
			},
			[]string{"transport", "result"},
		),
		responseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartmeter_dataset_response_bytes_total",
				Help: "Data set bytes served",
			},
			[]string{"transport"},
		),
	}
}

// Collectors returns the collectors to register.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.responseBytes}
}

func (m *Metrics) observe(transport, result string, n int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, result).Inc()
	if n > 0 {
		m.responseBytes.WithLabelValues(transport).Add(float64(n))
	}
}
