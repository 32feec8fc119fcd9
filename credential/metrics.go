package credential

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type credentialMetrics struct {
	issued prometheus.Counter
	parsed *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsRegistry *credentialMetrics
)

// metrics returns the lazily-initialised package metrics registered with the
// default Prometheus registry.
func metrics() *credentialMetrics {
	metricsOnce.Do(func() {
		metricsRegistry = &credentialMetrics{
			issued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "fieldtrust",
				Subsystem: "credential",
				Name:      "issued_total",
				Help:      "Total credentials issued by this terminal.",
			}),
			parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fieldtrust",
				Subsystem: "credential",
				Name:      "parsed_total",
				Help:      "Total credential parse attempts segmented by outcome.",
			}, []string{"outcome"}),
		}
		prometheus.MustRegister(metricsRegistry.issued, metricsRegistry.parsed)
	})
	return metricsRegistry
}

func (m *credentialMetrics) observeParse(err error) {
	m.parsed.WithLabelValues(parseOutcome(err)).Inc()
}

func parseOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedPrefix):
		return "malformed_prefix"
	case errors.Is(err, ErrMalformedStructure):
		return "malformed_structure"
	case errors.Is(err, ErrCorruptPayload):
		return "corrupt_payload"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNonceReplayed):
		return "nonce_replayed"
	default:
		return "error"
	}
}
