// Package telemetry records request traces and operation metrics for the
// registry without an external collector or the go.opentelemetry.io SDK.
// Spans land in a fixed in-memory ring, counters and histograms follow
// OpenTelemetry naming, and everything is served in Prometheus text
// exposition format from one handler.
package telemetry

import (
	"context"
	"sync"
	"time"
)

// Config tunes the provider. The zero value is a fully working setup with
// tracing and metrics on.
type Config struct {
	ServiceName     string        `json:"service_name"`
	ServiceVersion  string        `json:"service_version"`
	Environment     string        `json:"environment"`
	Metrics         *bool         `json:"metrics"` // nil enables
	Tracing         *bool         `json:"tracing"` // nil enables
	MetricsInterval time.Duration `json:"metrics_interval"`
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "medtrack-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "dev"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 15 * time.Second
	}
	return c
}

func enabled(v *bool) bool { return v == nil || *v }

// Gauge names. The dotted OTel form is the lookup key; the Prometheus
// exposition rewrites them with underscores.
const (
	gaugeInFlight   = "http.server.active_requests"
	gaugePoolActive = "db.pool.active_connections"
	gaugePoolIdle   = "db.pool.idle_connections"
	gaugeDevices    = "registry.devices.total"
	gaugeImplants   = "registry.implants.active"
)

// opSeries keys one lifecycle operation counter.
type opSeries struct {
	resource string
	verb     string
}

// series keys one labeled request duration histogram.
type series struct {
	method string
	route  string
	code   string
}

// Provider holds all observability state for one server process.
type Provider struct {
	cfg Config

	traces *traceLog

	mu       sync.RWMutex
	ops      map[opSeries]int64
	requests map[series]*histogram
	latency  *histogram
	inBytes  *histogram
	outBytes *histogram
	gauges   map[string]int64

	once sync.Once
	done chan struct{}
}

// NewProvider builds a provider from cfg, filling unset fields with
// defaults.
func NewProvider(cfg Config) *Provider {
	return &Provider{
		cfg:      cfg.withDefaults(),
		traces:   newTraceLog(),
		ops:      make(map[opSeries]int64),
		requests: make(map[series]*histogram),
		latency:  newHistogram(latencyBounds),
		inBytes:  newHistogram(sizeBounds),
		outBytes: newHistogram(sizeBounds),
		gauges:   make(map[string]int64),
		done:     make(chan struct{}),
	}
}

// MetricsInterval reports the period for the caller's gauge sampling loop.
func (p *Provider) MetricsInterval() time.Duration { return p.cfg.MetricsInterval }

// Done is closed on shutdown. Sampling loops select on it to stop.
func (p *Provider) Done() <-chan struct{} { return p.done }

// Shutdown releases sampling loops. Safe to call more than once.
func (p *Provider) Shutdown(_ context.Context) error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Resource returns the OTel resource attributes identifying this process.
func (p *Provider) Resource() map[string]string {
	return map[string]string{
		"service.name":           p.cfg.ServiceName,
		"service.version":        p.cfg.ServiceVersion,
		"deployment.environment": p.cfg.Environment,
	}
}

// RegistryOperationCounter counts one committed lifecycle operation, keyed
// by record kind (device, implant, recall, ...) and verb (register, remove,
// notify, ...).
func (p *Provider) RegistryOperationCounter(resource, verb string) {
	p.mu.Lock()
	p.ops[opSeries{resource, verb}]++
	p.mu.Unlock()
}

// Counter reads one lifecycle operation series.
func (p *Provider) Counter(resource, verb string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ops[opSeries{resource, verb}]
}

// Gauge reads a gauge by its dotted OTel name.
func (p *Provider) Gauge(name string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gauges[name]
}

func (p *Provider) setGauge(name string, v int64) {
	p.mu.Lock()
	p.gauges[name] = v
	p.mu.Unlock()
}

func (p *Provider) addGauge(name string, delta int64) {
	p.mu.Lock()
	p.gauges[name] += delta
	p.mu.Unlock()
}

// Spans returns the retained trace ring, oldest first.
func (p *Provider) Spans() []*Span { return p.traces.tail() }

// Latency returns the aggregate request duration histogram across every
// method and route.
func (p *Provider) Latency() *histogram { return p.latency }

// RequestSeries returns the duration histogram for one method, route and
// status code, or nil if that series has never been observed.
func (p *Provider) RequestSeries(method, route, code string) *histogram {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requests[series{method, route, code}]
}

func (p *Provider) observeRequest(key series, seconds float64) {
	p.mu.RLock()
	h := p.requests[key]
	p.mu.RUnlock()
	if h == nil {
		p.mu.Lock()
		if h = p.requests[key]; h == nil {
			h = newHistogram(latencyBounds)
			p.requests[key] = h
		}
		p.mu.Unlock()
	}
	h.Observe(seconds)
}

// HealthRecorder feeds the gauges a periodic sampler collects: database
// pool occupancy and registry totals.
type HealthRecorder struct {
	p *Provider
}

// Health returns the recorder the sampling loop writes through.
func (p *Provider) Health() *HealthRecorder { return &HealthRecorder{p: p} }

func (r *HealthRecorder) SetDBPoolActive(n int64)   { r.p.setGauge(gaugePoolActive, n) }
func (r *HealthRecorder) SetDBPoolIdle(n int64)     { r.p.setGauge(gaugePoolIdle, n) }
func (r *HealthRecorder) SetDevicesTotal(n int64)   { r.p.setGauge(gaugeDevices, n) }
func (r *HealthRecorder) SetImplantsActive(n int64) { r.p.setGauge(gaugeImplants, n) }
