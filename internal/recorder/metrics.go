package recorder

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/smartmeter/internal/p1"
)

// Metrics exposes the latest reading and the recorder's bookkeeping.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	powerW        prometheus.Gauge
	exportPowerW  prometheus.Gauge
	importWh      *prometheus.GaugeVec
	exportWh      *prometheus.GaugeVec
	gasDm3        prometheus.Gauge
	tariff        prometheus.Gauge
	lastTelegram  prometheus.Gauge
	sourceUp      prometheus.Gauge
	telegrams     *prometheus.CounterVec
	filesWritten  *prometheus.CounterVec
	failures      *prometheus.CounterVec
	reconnections prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		powerW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_power_w",
			Help: "Current import power in watts",
		}),
		exportPowerW: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_export_power_w",
			Help: "Current export power in watts",
		}),
		importWh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartmeter_import_energy_wh",
			Help: "Imported energy meter reading in Wh",
		}, []string{"tariff"}),
		exportWh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartmeter_export_energy_wh",
			Help: "Exported energy meter reading in Wh",
		}, []string{"tariff"}),
		gasDm3: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_gas_dm3",
			Help: "Gas meter reading in dm3",
		}),
		tariff: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_active_tariff",
			Help: "Active tariff (1 or 2)",
		}),
		lastTelegram: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_last_telegram_timestamp_seconds",
			Help: "Last accepted telegram timestamp (epoch seconds)",
		}),
		sourceUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartmeter_source_up",
			Help: "Telegram source connected (1=yes, 0=no)",
		}),
		telegrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmeter_telegrams_total",
			Help: "Telegrams received by parse result",
		}, []string{"result"}),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmeter_files_written_total",
			Help: "Data files written by kind",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartmeter_failures_total",
			Help: "Failed side effects by stage",
		}, []string{"stage"}),
		reconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartmeter_source_reconnects_total",
			Help: "Times the telegram source was reopened",
		}),
	}
}

// Collectors returns the collectors to register.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.powerW,
		m.exportPowerW,
		m.importWh,
		m.exportWh,
		m.gasDm3,
		m.tariff,
		m.lastTelegram,
		m.sourceUp,
		m.telegrams,
		m.filesWritten,
		m.failures,
		m.reconnections,
	}
}

func (m *Metrics) reading(r p1.Reading, now time.Time) {
	if m == nil {
		return
	}
	m.telegrams.WithLabelValues("ok").Inc()
	m.powerW.Set(float64(r.PowerW))
	m.exportPowerW.Set(float64(r.ExportPowerW))
	m.importWh.WithLabelValues("off_peak").Set(float64(r.ImportOffPeakWh))
	m.importWh.WithLabelValues("peak").Set(float64(r.ImportPeakWh))
	m.exportWh.WithLabelValues("off_peak").Set(float64(r.ExportOffPeakWh))
	m.exportWh.WithLabelValues("peak").Set(float64(r.ExportPeakWh))
	setGaugeInt64(m.gasDm3, r.GasDm3)
	if r.Tariff != nil {
		m.tariff.Set(float64(*r.Tariff))
	}
	m.lastTelegram.Set(float64(now.Unix()))
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	result := "invalid"
	switch {
	case errors.Is(err, p1.ErrChecksum):
		result = "checksum"
	case errors.Is(err, p1.ErrIncomplete):
		result = "incomplete"
	}
	m.telegrams.WithLabelValues(result).Inc()
}

func (m *Metrics) written(kind string) {
	if m == nil {
		return
	}
	m.filesWritten.WithLabelValues(kind).Inc()
}

func (m *Metrics) failed(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) source(up bool) {
	if m == nil {
		return
	}
	if up {
		m.sourceUp.Set(1)
	} else {
		m.sourceUp.Set(0)
	}
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnections.Inc()
}

func setGaugeInt64(g prometheus.Gauge, value *int64) {
	if value == nil {
		return
	}
	g.Set(float64(*value))
}
