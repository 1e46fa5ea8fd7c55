package metrics

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qlik-oss/qlik-cloud-embed-snapshot/internal/repository"
)

type storeCollector struct {
	store  repository.SnapshotStore
	logger *slog.Logger

	entriesDesc *prometheus.Desc
	bytesDesc   *prometheus.Desc
}

func newStoreCollector(store repository.SnapshotStore, logger *slog.Logger) *storeCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &storeCollector{
		store:  store,
		logger: logger,
		entriesDesc: prometheus.NewDesc(
			"snapshots_store_entries",
			"Number of fully committed snapshot entries in the local store.",
			nil,
			nil,
		),
		bytesDesc: prometheus.NewDesc(
			"snapshots_store_bytes",
			"Total size of the local snapshot store in bytes.",
			nil,
			nil,
		),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
	ch <- c.bytesDesc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	if c.store == nil {
		return
	}
	entries, bytes := c.store.Stats()
	ch <- prometheus.MustNewConstMetric(c.entriesDesc, prometheus.GaugeValue, float64(entries))
	ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.GaugeValue, float64(bytes))
}

var registerStoreOnce sync.Once

// RegisterStoreCollector registers the store gauge collector. Safe to call
// more than once; only the first registration wins.
func RegisterStoreCollector(store repository.SnapshotStore, logger *slog.Logger) {
	registerStoreOnce.Do(func() {
		if err := prometheus.Register(newStoreCollector(store, logger)); err != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Warn("store collector registration failed", "err", err)
		}
	})
}
