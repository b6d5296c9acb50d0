// internal/driver/mks937/attributes.go
package mks937

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gauge-service/internal/gauge"
	"gauge-service/internal/model"
	"gauge-service/pkg/driver"
)

// ReadChannel returns the reading of a pressure or setpoint register.
// Pressure channels come from the channel table; the fault of the latest parse is returned alongside.
func (c *Controller) ReadChannel(ch model.Channel) (model.ChannelReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := ch.Index(); i >= 0 {
		c.refreshChannelsLocked()
		if c.table.SampledAt(ch).IsZero() {
			return model.ChannelReading{Channel: ch, Raw: gauge.UnknownState}, model.NewReadingError(model.ErrorKindCommFailure, ch, "")
		}
		reading, _ := c.table.Reading(ch)
		return reading, c.faults[i]
	}

	sample, ok := c.cache.Get(c.prefix + ch.String())
	if !ok {
		return model.ChannelReading{Channel: ch}, model.NewReadingError(model.ErrorKindCommFailure, ch, "")
	}
	return gauge.ParseReading(ch, sample.Raw, false)
}

// WriteSetpoints writes the protect or relay setpoints in controller exponent notation
func (c *Controller) WriteSetpoints(ctx context.Context, kind driver.SetpointKind, values []float64) (string, error) {
	if kind.Size() == 0 {
		return "", fmt.Errorf("unknown setpoint kind %q: %w", kind, model.ErrInvalidArgument)
	}
	if len(values) != kind.Size() {
		return "", fmt.Errorf("%s expects %d values, got %d: %w", kind, kind.Size(), len(values), model.ErrInvalidArgument)
	}

	commands := make([]string, len(values))
	for i, v := range values {
		commands[i] = strings.ToUpper(fmt.Sprintf("%s%d=%1.1e", kind.Register(), i+1, v))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	reply, err := c.dispatcher.Send(ctx, commands, "\n")
	c.logger.LogCommand(string(kind), strings.Join(commands, ","), "", time.Since(start), reply, err)
	return reply, err
}

// PressureValues returns the last accepted pressure of every channel
func (c *Controller) PressureValues() [5]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Values()
}

// ChannelStates returns "P1:<state>" pairs sorted by channel
func (c *Controller) ChannelStates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelStatesLocked()
}

func (c *Controller) channelStatesLocked() []string {
	states := c.table.States()
	out := make([]string, 0, len(states))
	for i, ch := range model.PressureChannels {
		out = append(out, fmt.Sprintf("%s:%s", ch, states[i]))
	}
	sort.Strings(out)
	return out
}

// Relays decodes the last five characters of the RELAYS reply
func (c *Controller) Relays() ([]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.relaysLocked()
}

func (c *Controller) relaysLocked() ([]bool, error) {
	sample, ok := c.cache.Get(c.prefix + "RELAYS")
	if !ok {
		return nil, model.NewCommandError(model.ErrorKindCommFailure, "RELAYS", "", nil)
	}

	raw := strings.TrimSpace(sample.Raw)
	if len(raw) < 5 {
		return nil, model.NewCommandError(model.ErrorKindProtocolViolation, "RELAYS", raw, nil)
	}

	relays := make([]bool, 0, 5)
	for _, r := range raw[len(raw)-5:] {
		switch r {
		case '1':
			relays = append(relays, true)
		case '0':
			relays = append(relays, false)
		default:
			return nil, model.NewCommandError(model.ErrorKindProtocolViolation, "RELAYS", raw, nil)
		}
	}
	return relays, nil
}

// ProtectSetpoints returns the raw PRO1 and PRO2 replies
func (c *Controller) ProtectSetpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registersLocked(model.ProtectChannels[:])
}

// RelaySetpoints returns the raw RLY1..RLY5 replies
func (c *Controller) RelaySetpoints() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registersLocked(model.RelayChannels[:])
}

func (c *Controller) registersLocked(channels []model.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = strings.TrimSpace(c.raw(ch.String()))
	}
	return out
}

// ModulesInstalled formats the GAUGES reply, or returns it raw when it cannot be decoded
func (c *Controller) ModulesInstalled() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modulesLocked()
}

func (c *Controller) modulesLocked() string {
	raw := strings.TrimSpace(c.raw("GAUGES"))
	modules, err := model.DecodeModules(raw)
	if err != nil {
		return raw
	}
	return modules.String()
}

// FirmwareVersion returns the VER reply
func (c *Controller) FirmwareVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.TrimSpace(c.raw("VER"))
}

// SerialLine returns the configured serial line
func (c *Controller) SerialLine() string {
	return c.opts.SerialLine
}

// Missreadings returns the buffered rejected replies, oldest first
func (c *Controller) Missreadings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.missed.Snapshot()
}

// State returns the visible device state
func (c *Controller) State() model.DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the published status text
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot collects every attribute under one lock
func (c *Controller) Snapshot() driver.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	relays, _ := c.relaysLocked()
	return driver.Snapshot{
		Device:           c.opts.Name,
		State:            c.state,
		Status:           c.status,
		PressureValues:   c.table.Values(),
		ChannelStates:    c.channelStatesLocked(),
		ModulesInstalled: c.modulesLocked(),
		FirmwareVersion:  strings.TrimSpace(c.raw("VER")),
		SerialLine:       c.opts.SerialLine,
		Relays:           relays,
		ProtectSetpoints: c.registersLocked(model.ProtectChannels[:]),
		RelaySetpoints:   c.registersLocked(model.RelayChannels[:]),
		Missreadings:     c.missed.Snapshot(),
		Timestamp:        c.opts.Now(),
	}
}

// Health reports the poller state
func (c *Controller) Health() driver.HealthReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	comm := c.cache.Health()
	healthy := c.opts.SerialLine != "" && comm.Initialized && !comm.Failed(c.opts.Now())
	return driver.HealthReport{
		Healthy: healthy,
		Comm:    comm,
		Report:  c.cache.Report(),
		State:   c.state,
	}
}
