// Package prometheus exports page cache metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/hupe1980/pagecache"
	"github.com/prometheus/client_golang/prometheus"
)

var _ pagecache.MetricsCollector = (*Collector)(nil)

// Collector implements pagecache.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency *prometheus.HistogramVec
	bytes     *prometheus.CounterVec
	lookups   *prometheus.CounterVec
	evictions *prometheus.CounterVec
	flushed   prometheus.Counter
}

// NewCollector creates a collector and registers its metrics with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of cache operations",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes transferred through the cache API",
		}, []string{"op"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_lookups_total",
			Help:      "Page lookups by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Pages evicted, by state at eviction",
		}, []string{"state"}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_pages_total",
			Help:      "Dirty pages written back by flushes",
		}),
	}

	reg.MustRegister(c.opLatency, c.bytes, c.lookups, c.evictions, c.flushed)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordRead(n int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("read", status(err)).Observe(d.Seconds())
	c.bytes.WithLabelValues("read").Add(float64(n))
}

func (c *Collector) RecordWrite(n int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("write", status(err)).Observe(d.Seconds())
	c.bytes.WithLabelValues("write").Add(float64(n))
}

func (c *Collector) RecordFault(hit bool) {
	if hit {
		c.lookups.WithLabelValues("hit").Inc()
		return
	}
	c.lookups.WithLabelValues("miss").Inc()
}

func (c *Collector) RecordEviction(dirty bool) {
	if dirty {
		c.evictions.WithLabelValues("dirty").Inc()
		return
	}
	c.evictions.WithLabelValues("clean").Inc()
}

func (c *Collector) RecordFlush(pages int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("flush", status(err)).Observe(d.Seconds())
	c.flushed.Add(float64(pages))
}
