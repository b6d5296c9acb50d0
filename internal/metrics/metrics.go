// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gauge-service/internal/model"
)

const namespace = "gauge"

// Collector owns the service's Prometheus metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	commands     *prometheus.CounterVec
	pressure     *prometheus.GaugeVec
	state        *prometheus.GaugeVec
	stateCode    prometheus.Gauge
	missed       prometheus.Gauge
	commErrors   prometheus.Gauge
}

// NewCollector creates and registers the gauge metrics for one device
func NewCollector(device string) *Collector {
	labels := prometheus.Labels{"device": device}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "polls_total",
			Help:        "Register polls by command and result.",
			ConstLabels: labels,
		}, []string{"command", "result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "poll_duration_seconds",
			Help:        "Round trip time of register polls.",
			ConstLabels: labels,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "commands_total",
			Help:        "Foreground commands by name and result.",
			ConstLabels: labels,
		}, []string{"command", "result"}),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pressure_mbar",
			Help:        "Last accepted pressure per channel.",
			ConstLabels: labels,
		}, []string{"channel"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "device_state",
			Help:        "1 for the visible device state, 0 otherwise.",
			ConstLabels: labels,
		}, []string{"state"}),
		stateCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "device_state_code",
			Help:        "Numeric code of the visible device state.",
			ConstLabels: labels,
		}),
		missed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "missed_readings",
			Help:        "Distinct rejected replies currently buffered.",
			ConstLabels: labels,
		}),
		commErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "comm_errors",
			Help:        "Consecutive failed polls since the last success.",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.polls, c.pollDuration, c.commands, c.pressure,
		c.state, c.stateCode, c.missed, c.commErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObservePoll records one poll outcome
func (c *Collector) ObservePoll(command string, duration time.Duration, err error) {
	c.polls.WithLabelValues(command, result(err)).Inc()
	c.pollDuration.Observe(duration.Seconds())
}

// ObserveCommand records one foreground command outcome
func (c *Collector) ObserveCommand(command string, duration time.Duration, err error) {
	c.commands.WithLabelValues(command, result(err)).Inc()
}

// SetPressures publishes the channel table values
func (c *Collector) SetPressures(values [5]float64) {
	for i, ch := range model.PressureChannels {
		c.pressure.WithLabelValues(ch.String()).Set(values[i])
	}
}

// SetState publishes the visible device state
func (c *Collector) SetState(state model.DeviceState) {
	for _, s := range model.AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.state.WithLabelValues(string(s)).Set(v)
	}
	c.stateCode.Set(float64(state.Code()))
}

// SetMissedReadings publishes the missed reading buffer size
func (c *Collector) SetMissedReadings(n int) {
	c.missed.Set(float64(n))
}

// SetCommErrors publishes the aggregate poll error counter
func (c *Collector) SetCommErrors(n int) {
	c.commErrors.Set(float64(n))
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
