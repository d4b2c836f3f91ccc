package telemetry

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// exposition accumulates Prometheus text format output.
type exposition struct {
	strings.Builder
}

func (x *exposition) family(name, kind, help string) {
	fmt.Fprintf(x, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (x *exposition) value(name, labels string, v interface{}) {
	if labels == "" {
		fmt.Fprintf(x, "%s %v\n", name, v)
		return
	}
	fmt.Fprintf(x, "%s{%s} %v\n", name, labels, v)
}

// histogram writes the bucket, sum, and count samples of one series. labels
// may be empty for an unlabeled family.
func (x *exposition) histogram(name, labels string, h *histogram) {
	cum, n, sum := h.snapshot()
	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, b := range h.bounds {
		x.value(name+"_bucket", labels+sep+label("le", fmt.Sprintf("%g", b)), cum[i])
	}
	x.value(name+"_bucket", labels+sep+label("le", "+Inf"), n)
	x.value(name+"_sum", labels, fmt.Sprintf("%g", sum))
	x.value(name+"_count", labels, n)
}

func label(k, v string) string { return fmt.Sprintf("%s=%q", k, v) }

func (k series) labels() string {
	return strings.Join([]string{
		label("method", k.method),
		label("route", k.route),
		label("status_code", k.code),
	}, ",")
}

// gaugeExports maps dotted gauge names to their exposition families.
var gaugeExports = []struct {
	metric string
	gauge  string
	help   string
}{
	{"db_pool_active_connections", gaugePoolActive, "Open connections the pool has handed out."},
	{"db_pool_idle_connections", gaugePoolIdle, "Idle connections held by the pool."},
	{"registry_devices_total", gaugeDevices, "Registered devices."},
	{"registry_implants_active", gaugeImplants, "Implants currently in a patient."},
}

// PrometheusHandler serves every metric family in text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var x exposition

		p.mu.RLock()
		reqs := make(map[series]*histogram, len(p.requests))
		for k, h := range p.requests {
			reqs[k] = h
		}
		ops := make(map[opSeries]int64, len(p.ops))
		for k, v := range p.ops {
			ops[k] = v
		}
		p.mu.RUnlock()

		x.family("registry_operation_count", "counter",
			"Total registry operations by resource type and operation.")
		for k, v := range ops {
			x.value("registry_operation_count",
				label("resource_type", k.resource)+","+label("operation", k.verb), v)
		}
		x.WriteByte('\n')

		x.family("http_server_request_duration_seconds", "histogram",
			"Duration of HTTP requests in seconds.")
		for k, h := range reqs {
			x.histogram("http_server_request_duration_seconds", k.labels(), h)
		}
		x.WriteByte('\n')

		x.family("http_server_active_requests", "gauge",
			"Number of in-flight HTTP requests.")
		x.value("http_server_active_requests", "", p.Gauge(gaugeInFlight))
		x.WriteByte('\n')

		x.family("http_server_request_size_bytes", "histogram",
			"Size of HTTP request bodies in bytes.")
		if p.inBytes.Count() > 0 {
			x.histogram("http_server_request_size_bytes", "", p.inBytes)
		}
		x.WriteByte('\n')

		x.family("http_server_response_size_bytes", "histogram",
			"Size of HTTP response bodies in bytes.")
		if p.outBytes.Count() > 0 {
			x.histogram("http_server_response_size_bytes", "", p.outBytes)
		}
		x.WriteByte('\n')

		for _, g := range gaugeExports {
			x.family(g.metric, "gauge", g.help)
			x.value(g.metric, "", p.Gauge(g.gauge))
			x.WriteByte('\n')
		}

		return c.String(http.StatusOK, x.String())
	}
}
