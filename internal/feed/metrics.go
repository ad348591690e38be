package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the feed's KPI totals as Prometheus gauges.
type Metrics struct {
	facilities      prometheus.Gauge
	powerMW         prometheus.Gauge
	emissionsTonnes prometheus.Gauge
	cursorPos       prometheus.Gauge
}

// NewMetrics registers the feed gauges with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		facilities: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emissionfeed",
			Name:      "facilities",
			Help:      "Number of facilities in the current view.",
		}),
		powerMW: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emissionfeed",
			Name:      "total_power_mw",
			Help:      "Total power across the current view, in MW.",
		}),
		emissionsTonnes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emissionfeed",
			Name:      "total_emissions_tonnes",
			Help:      "Total CO2 emissions across the current view, in tonnes.",
		}),
		cursorPos: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "emissionfeed",
			Name:      "cursor_position_seconds",
			Help:      "Playback cursor position as a unix timestamp.",
		}),
	}
}

// Publish updates all gauges from one view recomputation.
func (m *Metrics) Publish(facilities int, powerMW, emissionsTonnes, cursorUnix float64) {
	m.facilities.Set(float64(facilities))
	m.powerMW.Set(powerMW)
	m.emissionsTonnes.Set(emissionsTonnes)
	m.cursorPos.Set(cursorUnix)
}
