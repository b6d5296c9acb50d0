// internal/driver/mks937/controller.go
package mks937

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/dispatcher"
	"gauge-service/internal/gauge"
	"gauge-service/internal/model"
	"gauge-service/internal/poller"
	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

// MaxStatusLength bounds the published status text
const MaxStatusLength = 200

// Cache is the background register poller as seen by the controller
type Cache interface {
	Start(ctx context.Context)
	Stop()
	Get(command string) (poller.Sample, bool)
	Health() model.CommHealth
	Report() string
}

// Recorder receives controller metrics
type Recorder interface {
	ObserveCommand(command string, duration time.Duration, err error)
	SetPressures(values [5]float64)
	SetState(state model.DeviceState)
	SetMissedReadings(n int)
	SetCommErrors(n int)
}

// Options configures a Controller
type Options struct {
	Name          string
	SerialLine    string
	Protocol      string
	DefaultStatus []string
	StartSequence []string
	Description   string
	Recorder      Recorder
	Now           func() time.Time
}

// Controller implements driver.GaugeDriver for an MKS 937A controller.
// Exported methods take the controller lock; methods ending in Locked expect it held.
type Controller struct {
	opts       Options
	prefix     string
	cache      Cache
	dispatcher *dispatcher.Dispatcher
	sequence   *gauge.Sequence
	logger     *utils.DeviceLogger
	events     driver.EventHandler
	line       io.Closer

	mu         sync.Mutex
	table      *gauge.ChannelTable
	faults     [5]error
	missed     *gauge.MissedReadings
	holds      *gauge.HoldQueue
	state      model.DeviceState
	status     string
	startedAt  time.Time
	warmedUp   bool
	lastErrors int
}

var _ driver.GaugeDriver = (*Controller)(nil)

// NewController creates a new controller
func NewController(cache Cache, disp *dispatcher.Dispatcher, opts Options, logger *zap.Logger) (*Controller, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "mks937a"
	}

	sequence, err := gauge.ParseSequence(opts.StartSequence)
	if err != nil {
		return nil, fmt.Errorf("invalid start sequence: %w", err)
	}

	deviceLogger := utils.NewDeviceLogger(logger, opts.Name, opts.SerialLine)
	for _, entry := range sequence.Skipped() {
		deviceLogger.Warn("Unknown start sequence action, step skipped", zap.String("entry", entry))
	}

	now := opts.Now()
	return &Controller{
		opts:       opts,
		prefix:     poller.Prefix(opts.Protocol),
		cache:      cache,
		dispatcher: disp,
		sequence:   sequence,
		logger:     deviceLogger,
		table:      gauge.NewChannelTable(),
		missed:     gauge.NewMissedReadings(),
		holds:      gauge.NewHoldQueue(model.StateInit, now),
		state:      model.StateInit,
		startedAt:  now,
	}, nil
}

// SetEventHandler installs the event sink
func (c *Controller) SetEventHandler(handler driver.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = handler
}

// Init resets the controller to Init and starts polling
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	c.table = gauge.NewChannelTable()
	c.faults = [5]error{}
	c.missed = gauge.NewMissedReadings()
	c.holds = gauge.NewHoldQueue(model.StateInit, now)
	c.state = model.StateInit
	c.status = ""
	c.startedAt = now
	c.warmedUp = false
	c.lastErrors = 0

	if c.opts.SerialLine == "" {
		c.logger.Warn("No serial line configured, polling disabled")
		return nil
	}

	c.cache.Start(ctx)
	c.logger.Info("Controller initialized",
		zap.String("protocol", c.opts.Protocol),
		zap.Strings("default_status", c.opts.DefaultStatus),
		zap.Int("start_sequence_steps", len(c.sequence.Steps())),
	)
	return nil
}

// Close stops polling and releases the serial line
func (c *Controller) Close() error {
	c.cache.Stop()
	if c.line != nil {
		return c.line.Close()
	}
	return nil
}

// Tick refreshes channels from the poll cache and recomputes state and status
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickLocked(ctx)
}

func (c *Controller) tickLocked(ctx context.Context) {
	now := c.opts.Now()
	c.refreshChannelsLocked()

	health := c.cache.Health()
	result := gauge.Evaluate(gauge.Input{
		SerialLineConfigured: c.opts.SerialLine != "",
		Health:               health,
		Now:                  now,
		StartedAt:            c.startedAt,
		Modules:              c.raw("GAUGES"),
		States:               c.table.States(),
		Values:               c.table.Values(),
		Previous:             c.table.Previous(),
		DefaultStatus:        c.opts.DefaultStatus,
	})
	if result.ResetStates {
		c.table.ResetStates()
	}

	status := result.Status
	if c.opts.SerialLine != "" {
		status = joinNonEmpty("\n", result.Status, c.opts.Description, c.cache.Report())
	}
	c.status = truncate(status, MaxStatusLength)

	prev := c.state
	if result.State != prev {
		c.holds.Push(result.State, gauge.HoldFor(result.State))
	}
	c.holds.Settle(result.State)
	visible := c.holds.Visible(now)
	if visible != result.State || visible != prev {
		c.logger.Debug("State machine evaluated",
			zap.String("visible", visible.String()),
			zap.String("computed", result.State.String()),
			zap.String("previous", prev.String()),
		)
	}

	if visible != prev {
		c.state = visible
		c.logger.LogStateChange(prev.String(), visible.String(), c.status)
		if c.events != nil {
			c.events.OnStateChanged(c.opts.Name, model.StateChangedEventData{
				OldState: prev,
				NewState: visible,
				Status:   c.status,
			})
		}
		if prev == model.StateInit && visible != model.StateUnknown && !c.sequence.Empty() && !c.warmedUp {
			c.warmedUp = true
			c.warmUpLocked(ctx)
		}
	}

	if health.Errors != c.lastErrors {
		c.logger.LogPoll(health.Registers, health.Errors, health.LastSuccess)
		c.lastErrors = health.Errors
	}

	if r := c.opts.Recorder; r != nil {
		r.SetPressures(c.table.Values())
		r.SetState(c.state)
		r.SetMissedReadings(c.missed.Len())
		r.SetCommErrors(health.Errors)
	}
}

// refreshChannelsLocked parses pressure samples the table has not seen yet
func (c *Controller) refreshChannelsLocked() {
	piranis := map[model.Channel]bool{}
	for _, ch := range model.PiraniChannels(c.raw("GAUGES")) {
		piranis[ch] = true
	}

	for i, ch := range model.PressureChannels {
		sample, ok := c.cache.Get(c.prefix + ch.String())
		if !ok || !sample.At.After(c.table.SampledAt(ch)) {
			continue
		}

		reading, err := gauge.ParseReading(ch, sample.Raw, piranis[ch])
		c.table.Apply(reading, err, sample.At)
		c.faults[i] = err
		if err != nil {
			c.anomalyLocked(ch, reading.Raw, err)
		}
	}
}

// anomalyLocked routes a rejected reply: recoverable kinds land in the missed reading buffer
func (c *Controller) anomalyLocked(ch model.Channel, raw string, err error) {
	kind, _ := model.KindOf(err)
	if !kind.Recoverable() {
		c.logger.Debug("Channel fault", zap.String("channel", ch.String()), zap.String("raw", raw))
		return
	}

	c.logger.LogAnomaly(ch.String(), raw, err)
	if raw == "" {
		return
	}
	if c.missed.Record(raw) && c.events != nil {
		c.events.OnReadingAnomaly(c.opts.Name, ch, raw, err)
	}
}

// raw returns the cached reply of a register, or "" when it was never read
func (c *Controller) raw(register string) string {
	sample, ok := c.cache.Get(c.prefix + register)
	if !ok {
		return ""
	}
	return sample.Raw
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
