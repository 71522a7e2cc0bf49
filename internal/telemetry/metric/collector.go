package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// UsageSource reports the size of a capacity-bounded store.
type UsageSource interface {
	Used() int64
	Quota() int64
}

// Collector exports the usage of registered stores at scrape time.
type Collector struct {
	mu      sync.RWMutex
	sources map[string]UsageSource

	used  *prometheus.Desc
	quota *prometheus.Desc
}

// NewCollector creates a collector with no sources.
func NewCollector() *Collector {
	return &Collector{
		sources: make(map[string]UsageSource),
		used: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "kvstore", "used_bytes"),
			"Bytes stored in a key-value store.",
			[]string{"store"}, nil,
		),
		quota: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "kvstore", "quota_bytes"),
			"Capacity of a key-value store, 0 when unbounded.",
			[]string{"store"}, nil,
		),
	}
}

// Add registers src under name, replacing any previous source.
func (c *Collector) Add(name string, src UsageSource) {
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.used
	ch <- c.quota
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, src := range c.sources {
		ch <- prometheus.MustNewConstMetric(c.used, prometheus.GaugeValue, float64(src.Used()), name)
		ch <- prometheus.MustNewConstMetric(c.quota, prometheus.GaugeValue, float64(src.Quota()), name)
	}
}
