package localdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	writes    *prometheus.CounterVec
	noops     *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	keyOps    *prometheus.CounterVec
	txRetries prometheus.Counter
}

// newMetrics registers on reg, or nowhere if reg is nil.
func newMetrics(reg prometheus.Registerer, backend string) *metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"backend": backend}
	return &metrics{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docdb",
			Name:        "document_writes_total",
			Help:        "Documents written, by collection and operation.",
			ConstLabels: labels,
		}, []string{"collection", "op"}),
		noops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docdb",
			Name:        "document_noop_writes_total",
			Help:        "Writes skipped because the contents did not change.",
			ConstLabels: labels,
		}, []string{"collection"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docdb",
			Name:        "document_conflicts_total",
			Help:        "Writes rejected because of a stale or taken revision.",
			ConstLabels: labels,
		}, []string{"collection"}),
		keyOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docdb",
			Name:        "key_operations_total",
			Help:        "Key-value commands executed, by command.",
			ConstLabels: labels,
		}, []string{"command"}),
		txRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "docdb",
			Name:        "transaction_retries_total",
			Help:        "Write transactions re-run after losing an optimistic commit race.",
			ConstLabels: labels,
		}),
	}
}
