package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestProvider() *Provider {
	return NewProvider(Config{
		ServiceName:    "medtrack-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
	})
}

// serve registers the handler on the given route, runs one request through
// the provider's middlewares, and returns the recorder.
func serve(p *Provider, method, route, target string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(p.TracingMiddleware(), p.MetricsMiddleware())
	e.Add(method, route, handler)
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func off() *bool {
	v := false
	return &v
}

func TestConfigDefaults(t *testing.T) {
	cfg := (Config{}).withDefaults()

	if cfg.ServiceName != "medtrack-server" {
		t.Errorf("service name = %q", cfg.ServiceName)
	}
	if cfg.ServiceVersion != "dev" {
		t.Errorf("service version = %q", cfg.ServiceVersion)
	}
	if cfg.Environment != "development" {
		t.Errorf("environment = %q", cfg.Environment)
	}
	if cfg.MetricsInterval != 15*time.Second {
		t.Errorf("metrics interval = %v", cfg.MetricsInterval)
	}
	if !enabled(cfg.Metrics) || !enabled(cfg.Tracing) {
		t.Error("metrics and tracing should default to on")
	}
}

func TestConfigOverrides(t *testing.T) {
	cfg := Config{
		ServiceName:     "custom",
		ServiceVersion:  "9.9.9",
		Environment:     "production",
		MetricsInterval: time.Minute,
		Metrics:         off(),
		Tracing:         off(),
	}.withDefaults()

	if cfg.ServiceName != "custom" || cfg.ServiceVersion != "9.9.9" {
		t.Errorf("identity overridden: %q %q", cfg.ServiceName, cfg.ServiceVersion)
	}
	if cfg.MetricsInterval != time.Minute {
		t.Errorf("metrics interval overridden: %v", cfg.MetricsInterval)
	}
	if enabled(cfg.Metrics) || enabled(cfg.Tracing) {
		t.Error("explicit false should disable metrics and tracing")
	}
}

func TestProviderResource(t *testing.T) {
	p := newTestProvider()
	res := p.Resource()
	if res["service.name"] != "medtrack-test" {
		t.Errorf("service.name = %q", res["service.name"])
	}
	if res["service.version"] != "0.0.1" {
		t.Errorf("service.version = %q", res["service.version"])
	}
	if res["deployment.environment"] != "test" {
		t.Errorf("deployment.environment = %q", res["deployment.environment"])
	}
}

func TestShutdownClosesDone(t *testing.T) {
	p := newTestProvider()

	select {
	case <-p.Done():
		t.Fatal("done closed before shutdown")
	default:
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after shutdown")
	}

	// A second shutdown must not panic on the closed channel.
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("repeated shutdown: %v", err)
	}
}

func TestDisabledProviderRecordsNothing(t *testing.T) {
	p := NewProvider(Config{Metrics: off(), Tracing: off()})

	serve(p, http.MethodGet, "/api/v1/devices", "/api/v1/devices", okHandler)

	if spans := p.Spans(); len(spans) != 0 {
		t.Errorf("recorded %d spans with tracing disabled", len(spans))
	}
	if n := p.Latency().Count(); n != 0 {
		t.Errorf("recorded %d durations with metrics disabled", n)
	}
}

func TestRegistryOperationCounter(t *testing.T) {
	p := newTestProvider()

	p.RegistryOperationCounter("device", "register")
	p.RegistryOperationCounter("device", "register")
	p.RegistryOperationCounter("implant", "remove")

	if n := p.Counter("device", "register"); n != 2 {
		t.Errorf("device/register = %d, want 2", n)
	}
	if n := p.Counter("implant", "remove"); n != 1 {
		t.Errorf("implant/remove = %d, want 1", n)
	}
	if n := p.Counter("recall", "issue"); n != 0 {
		t.Errorf("untouched series = %d, want 0", n)
	}
}

func TestHealthRecorderGauges(t *testing.T) {
	p := newTestProvider()
	rec := p.Health()

	rec.SetDBPoolActive(9)
	rec.SetDBPoolIdle(1)
	rec.SetDevicesTotal(100)
	rec.SetImplantsActive(40)

	if v := p.Gauge("db.pool.active_connections"); v != 9 {
		t.Errorf("active connections = %d", v)
	}
	if v := p.Gauge("db.pool.idle_connections"); v != 1 {
		t.Errorf("idle connections = %d", v)
	}
	if v := p.Gauge("registry.devices.total"); v != 100 {
		t.Errorf("devices total = %d", v)
	}
	if v := p.Gauge("registry.implants.active"); v != 40 {
		t.Errorf("implants active = %d", v)
	}

	// Setters overwrite rather than accumulate.
	rec.SetImplantsActive(39)
	if v := p.Gauge("registry.implants.active"); v != 39 {
		t.Errorf("implants active after reset = %d", v)
	}
}

func TestPrometheusOutput(t *testing.T) {
	p := newTestProvider()
	serve(p, http.MethodGet, "/api/v1/devices", "/api/v1/devices", okHandler)
	p.RegistryOperationCounter("device", "register")
	rec := p.Health()
	rec.SetDBPoolActive(3)
	rec.SetDBPoolIdle(7)
	rec.SetDevicesTotal(12)
	rec.SetImplantsActive(5)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	if err := p.PrometheusHandler()(e.NewContext(req, w)); err != nil {
		t.Fatalf("prometheus handler: %v", err)
	}
	body := w.Body.String()

	for _, want := range []string{
		"# TYPE registry_operation_count counter",
		`registry_operation_count{resource_type="device",operation="register"} 1`,
		"# TYPE http_server_request_duration_seconds histogram",
		`http_server_request_duration_seconds_bucket{method="GET",route="/api/v1/devices",status_code="200",le="+Inf"} 1`,
		`http_server_request_duration_seconds_count{method="GET",route="/api/v1/devices",status_code="200"} 1`,
		"# TYPE http_server_active_requests gauge",
		"http_server_active_requests 0",
		"db_pool_active_connections 3",
		"db_pool_idle_connections 7",
		"registry_devices_total 12",
		"registry_implants_active 5",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	p := newTestProvider()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.RegistryOperationCounter("device", "register")
				p.addGauge(gaugeInFlight, 1)
				p.addGauge(gaugeInFlight, -1)
				p.latency.Observe(0.005)
				p.observeRequest(series{method: "GET", route: "/api/v1/devices", code: "200"}, 0.001)
				p.traces.add(&Span{Name: fmt.Sprintf("w%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	if n := p.Counter("device", "register"); n != 800 {
		t.Errorf("counter = %d, want 800", n)
	}
	if g := p.Gauge(gaugeInFlight); g != 0 {
		t.Errorf("gauge = %d, want 0", g)
	}
	if n := p.Latency().Count(); n != 800 {
		t.Errorf("durations = %d, want 800", n)
	}
	s := p.RequestSeries("GET", "/api/v1/devices", "200")
	if s == nil || s.Count() != 800 {
		t.Error("labeled series missing or miscounted")
	}
}
