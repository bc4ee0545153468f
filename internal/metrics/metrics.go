package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meater_sync/internal/service"
)

const namespace = "meater"

// Collector exports probe readings and engine activity to Prometheus.
// It is a service.Presenter and owns its own registry.
type Collector struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	cookActive  *prometheus.GaugeVec
	devices     prometheus.Gauge
	events      *prometheus.CounterVec
	logins      prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Latest probe temperature.",
		}, []string{"device", "probe"}),
		cookActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cook_refresh_active",
			Help:      "1 while cook data of the probe is being refreshed.",
		}, []string{"device"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Probes currently tracked.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_events_total",
			Help:      "Sync log entries by type.",
		}, []string{"type"}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Successful cloud logins.",
		}),
	}
	c.registry.MustRegister(c.temperature, c.cookActive, c.devices, c.events, c.logins)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for callers that add their own collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// LoginObserved counts one successful cloud login.
func (c *Collector) LoginObserved() { c.logins.Inc() }

// EventObserved counts one sync log entry.
func (c *Collector) EventObserved(typ string) { c.events.WithLabelValues(typ).Inc() }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Collector) Register(v service.DeviceView) {
	c.temperature.WithLabelValues(v.ID, "internal").Set(v.Snapshot.Temperature.Internal)
	c.temperature.WithLabelValues(v.ID, "ambient").Set(v.Snapshot.Temperature.Ambient)
	c.cookActive.WithLabelValues(v.ID).Set(boolGauge(v.CookRefresh == service.CookActive.String()))
}

func (c *Collector) Update(v service.DeviceView, field service.Field, value any) {
	switch field {
	case service.FieldInternalTemp:
		if f, ok := value.(float64); ok {
			c.temperature.WithLabelValues(v.ID, "internal").Set(f)
		}
	case service.FieldAmbientTemp:
		if f, ok := value.(float64); ok {
			c.temperature.WithLabelValues(v.ID, "ambient").Set(f)
		}
	case service.FieldCookRefresh:
		c.cookActive.WithLabelValues(v.ID).Set(boolGauge(v.CookRefresh == service.CookActive.String()))
	}
}

func (c *Collector) Unregister(id string) {
	c.temperature.DeletePartialMatch(prometheus.Labels{"device": id})
	c.cookActive.DeleteLabelValues(id)
}

func (c *Collector) Reconciled(views []service.DeviceView) {
	c.devices.Set(float64(len(views)))
}
