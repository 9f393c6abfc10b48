package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStater is satisfied by *pgxpool.Pool.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

type poolMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(*pgxpool.Stat) float64
}

// PoolStatsCollector exports pgxpool statistics, read at scrape time.
type PoolStatsCollector struct {
	pool    PoolStater
	name    string
	metrics []poolMetric
}

// NewPoolStatsCollector creates a collector labelled pool=name.
func NewPoolStatsCollector(pool PoolStater, name string) *PoolStatsCollector {
	gauge := func(metric, help string, fn func(*pgxpool.Stat) float64) poolMetric {
		return poolMetric{
			desc:  prometheus.NewDesc("storefront_db_pool_"+metric, help, []string{"pool"}, nil),
			kind:  prometheus.GaugeValue,
			value: fn,
		}
	}
	counter := func(metric, help string, fn func(*pgxpool.Stat) float64) poolMetric {
		m := gauge(metric, help, fn)
		m.kind = prometheus.CounterValue
		return m
	}

	return &PoolStatsCollector{
		pool: pool,
		name: name,
		metrics: []poolMetric{
			gauge("acquired_connections", "Connections currently checked out",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
			gauge("idle_connections", "Connections currently idle",
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
			gauge("total_connections", "Connections currently open",
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
			gauge("max_connections", "Configured connection limit",
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
			counter("acquires_total", "Successful connection acquires",
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }),
			counter("acquire_wait_seconds_total", "Time spent acquiring connections",
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }),
			counter("empty_acquires_total", "Acquires that had to wait for a free connection",
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }),
			counter("canceled_acquires_total", "Acquires abandoned by their context",
				func(s *pgxpool.Stat) float64 { return float64(s.CanceledAcquireCount()) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stat()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(stat), c.name)
	}
}

// RegisterPoolMetrics registers a collector for pool on reg.
func RegisterPoolMetrics(reg prometheus.Registerer, pool PoolStater, name string) error {
	return reg.Register(NewPoolStatsCollector(pool, name))
}
