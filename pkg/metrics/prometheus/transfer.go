package prometheus

import (
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/transfer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type transferMetrics struct {
	transfersTotal *prometheus.CounterVec
	bytesTotal     *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
}

// NewTransferMetrics returns a transfer.Metrics, or nil when metrics are
// disabled.
func NewTransferMetrics() transfer.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newTransferMetrics(metrics.GetRegistry())
}

func newTransferMetrics(reg prometheus.Registerer) *transferMetrics {
	return &transferMetrics{
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "transfers_total",
				Help:      "Uploads and downloads by direction and mode (direct or proxy)",
			},
			[]string{"provider_type", "direction", "mode"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "transfer_bytes_total",
				Help:      "Bytes moved; direct transfers count the declared size",
			},
			[]string{"provider_type", "direction", "mode"},
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "transfer_errors_total",
				Help:      "Transfers that failed before any byte moved",
			},
			[]string{"provider_type", "direction"},
		),
	}
}

func (m *transferMetrics) RecordTransfer(providerType, direction, mode string, bytes int64) {
	m.transfersTotal.WithLabelValues(providerType, direction, mode).Inc()
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(providerType, direction, mode).Add(float64(bytes))
	}
}

func (m *transferMetrics) RecordTransferError(providerType, direction string) {
	m.errorsTotal.WithLabelValues(providerType, direction).Inc()
}
