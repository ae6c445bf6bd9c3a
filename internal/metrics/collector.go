// Package metrics implements the Prometheus-backed MetricsCollector:
// counters and gauges for the job pipeline, plus user-registered custom
// metrics keyed by name, rendered in the Prometheus text exposition
// format.
package metrics

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector owns its own prometheus.Registry rather than the global
// default one, so multiple instances (e.g. in tests) never collide.
type Collector struct {
	registry *prometheus.Registry

	jobsProcessed prometheus.Counter
	jobsErrors    prometheus.Counter
	activeJobs    prometheus.Gauge
	healthStatus  prometheus.Gauge

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		jobsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs completed successfully.",
		}),
		jobsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_errors_total",
			Help: "Total number of jobs that terminated in failure.",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_jobs",
			Help: "Number of jobs currently dispatched to a handler.",
		}),
		healthStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Aggregate health status: 0=RED, 1=YELLOW, 2=GREEN.",
		}),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
	}

	registry.MustRegister(c.jobsProcessed, c.jobsErrors, c.activeJobs, c.healthStatus)

	return c
}

// Registry exposes the underlying prometheus.Registry for promhttp.HandlerFor.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) IncJobsProcessed()         { c.jobsProcessed.Inc() }
func (c *Collector) IncJobsErrors()            { c.jobsErrors.Inc() }
func (c *Collector) IncActiveJobs()            { c.activeJobs.Inc() }
func (c *Collector) DecActiveJobs()            { c.activeJobs.Dec() }
func (c *Collector) SetHealthStatus(v float64) { c.healthStatus.Set(v) }

// RegisterCounter registers (idempotently) a user-defined counter metric
// by name and returns it for incrementing.
func (c *Collector) RegisterCounter(name, help string) prometheus.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[name]; ok {
		return counter
	}

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	c.registry.MustRegister(counter)
	c.counters[name] = counter
	return counter
}

// RegisterGauge registers (idempotently) a user-defined gauge metric by
// name and returns it for setting.
func (c *Collector) RegisterGauge(name, help string) prometheus.Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gauge, ok := c.gauges[name]; ok {
		return gauge
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	c.registry.MustRegister(gauge)
	c.gauges[name] = gauge
	return gauge
}

// Render produces the Prometheus text exposition format for every
// registered metric, using the same encoder client_golang's own promhttp
// handler builds on.
func (c *Collector) Render() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("metrics: gather: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)

	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", fmt.Errorf("metrics: encode: %w", err)
		}
	}

	return buf.String(), nil
}
