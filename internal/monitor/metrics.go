package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mblsha/miniware-mdp-m01/internal/device"
)

// Metrics exposes instrument telemetry and protocol counters to Prometheus.
// Gauges are refreshed from the session snapshot on every broadcast tick, so
// scrape staleness is bounded by the broadcast rate. Collectors live on a
// private registry so multiple instances never collide.
type Metrics struct {
	reg *prometheus.Registry

	outVoltage  *prometheus.GaugeVec
	outCurrent  *prometheus.GaugeVec
	outPower    *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	online      *prometheus.GaugeVec
	outputOn    *prometheus.GaugeVec

	connected      prometheus.Gauge
	currentChannel prometheus.Gauge
	clients        prometheus.Gauge

	bytesConsumed   prometheus.Gauge
	packetsDecoded  prometheus.Gauge
	packetsRejected prometheus.Gauge
	unknownPackets  prometheus.Gauge
	wavePackets     prometheus.Gauge
	eventsEmitted   prometheus.Gauge
}

// New builds the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	channelGauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mdp",
			Name:      name,
			Help:      help,
		}, []string{"channel"})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mdp",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		reg: reg,

		outVoltage:  channelGauge("out_voltage_millivolts", "Measured output voltage per channel."),
		outCurrent:  channelGauge("out_current_milliamps", "Measured output current per channel."),
		outPower:    channelGauge("out_power_milliwatts", "Measured output power per channel."),
		temperature: channelGauge("temperature_celsius", "Module temperature per channel."),
		online:      channelGauge("channel_online", "Whether a module is paired on the channel (0/1)."),
		outputOn:    channelGauge("channel_output_on", "Whether the channel output stage is on (0/1)."),

		connected:      gauge("connected", "Whether the instrument transport is connected (0/1)."),
		currentChannel: gauge("current_channel", "Channel the instrument is streaming waveform data for."),
		clients:        gauge("websocket_clients", "Number of connected WebSocket clients."),

		bytesConsumed:   gauge("bytes_consumed_total", "Raw protocol bytes consumed by the framer."),
		packetsDecoded:  gauge("packets_decoded_total", "Packets decoded successfully."),
		packetsRejected: gauge("packets_rejected_total", "Packets dropped for failing validation."),
		unknownPackets:  gauge("unknown_packets_total", "Packets with an unrecognized type byte."),
		wavePackets:     gauge("wave_packets_total", "Waveform packets consumed."),
		eventsEmitted:   gauge("events_emitted_total", "Decoder notifications emitted."),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Update refreshes every collector from a session snapshot.
func (m *Metrics) Update(snap device.Snapshot) {
	for i := range snap.Channels {
		c := &snap.Channels[i]
		label := strconv.Itoa(i)
		m.outVoltage.WithLabelValues(label).Set(c.OutVoltage)
		m.outCurrent.WithLabelValues(label).Set(c.OutCurrent)
		m.outPower.WithLabelValues(label).Set(c.OutPower)
		m.temperature.WithLabelValues(label).Set(c.Temperature)
		m.online.WithLabelValues(label).Set(boolGauge(c.Online))
		m.outputOn.WithLabelValues(label).Set(boolGauge(c.OutputOn))
	}

	m.connected.Set(boolGauge(snap.Connected))
	m.currentChannel.Set(float64(snap.CurrentChannel))

	m.bytesConsumed.Set(float64(snap.Stats.BytesConsumed))
	m.packetsDecoded.Set(float64(snap.Stats.PacketsDecoded))
	m.packetsRejected.Set(float64(snap.Stats.PacketsRejected))
	m.unknownPackets.Set(float64(snap.Stats.UnknownPackets))
	m.wavePackets.Set(float64(snap.Stats.WavePackets))
	m.eventsEmitted.Set(float64(snap.Stats.EventsEmitted))
}

// SetClients records the WebSocket client count.
func (m *Metrics) SetClients(n int) {
	m.clients.Set(float64(n))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
