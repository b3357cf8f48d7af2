// Package metrics exposes AIMS Prometheus metrics on a private registry.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/HerbHall/aims/pkg/models"
)

const namespace = "aims"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics holds the collectors written by the maintenance engine, the
// importer and the scheduler.
type Metrics struct {
	Registry *prometheus.Registry

	projections     *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	resyncRuns      *prometheus.CounterVec
	resyncLatency   prometheus.Histogram
}

// New creates a registry with Go runtime, process and AIMS collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_projections_total",
			Help:      "Device statuses written, by collection and status.",
		}, []string{"collection", "status"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_persist_failures_total",
			Help:      "Device writes rolled back after a store failure.",
		}, []string{"collection"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Spreadsheet rows processed by result.",
		}, []string{"result"}),
		resyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_runs_total",
			Help:      "Collection resync runs by result.",
		}, []string{"result"}),
		resyncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resync_duration_seconds",
			Help:      "Duration of a full resync of both collections.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.projections,
		m.persistFailures,
		m.importRows,
		m.resyncRuns,
		m.resyncLatency,
	)
	return m
}

// ObserveProjection counts a committed status write.
func (m *Metrics) ObserveProjection(coll models.Collection, status models.MaintenanceStatus) {
	m.projections.WithLabelValues(string(coll), string(status)).Inc()
}

// ObservePersistFailure counts a rolled-back device write.
func (m *Metrics) ObservePersistFailure(coll models.Collection) {
	m.persistFailures.WithLabelValues(string(coll)).Inc()
}

// ObserveImportRow counts one processed spreadsheet row.
func (m *Metrics) ObserveImportRow(result string) {
	m.importRows.WithLabelValues(result).Inc()
}

// ObserveResync records a resync run.
func (m *Metrics) ObserveResync(result string, d time.Duration) {
	m.resyncRuns.WithLabelValues(result).Inc()
	m.resyncLatency.Observe(d.Seconds())
}

// StatusCounter reports the persisted status tallies of a collection.
type StatusCounter interface {
	CountByStatus(ctx context.Context, coll models.Collection) (map[models.MaintenanceStatus]int, error)
}

// RegisterStatusGauge exposes aims_devices{collection,status}, read from
// the stored status field of each collection at scrape time.
func (m *Metrics) RegisterStatusGauge(src StatusCounter, logger *zap.Logger) error {
	return m.Registry.Register(&statusCollector{src: src, logger: logger})
}

var devicesDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "devices"),
	"Devices by collection and persisted maintenance status.",
	[]string{"collection", "status"}, nil,
)

type statusCollector struct {
	src    StatusCounter
	logger *zap.Logger
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- devicesDesc
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, coll := range models.Collections {
		counts, err := c.src.CountByStatus(ctx, coll)
		if err != nil {
			c.logger.Warn("status gauge query failed",
				zap.String("collection", string(coll)), zap.Error(err))
			continue
		}
		for _, status := range models.Statuses {
			ch <- prometheus.MustNewConstMetric(devicesDesc, prometheus.GaugeValue,
				float64(counts[status]), string(coll), string(status))
		}
	}
}
