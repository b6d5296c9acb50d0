// internal/poller/manager.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/model"
)

// ErrEmptyReply is recorded when the controller answers with nothing
var ErrEmptyReply = errors.New("empty reply")

const minTick = 10 * time.Millisecond

// Sender is the blocking serial request/reply primitive
type Sender interface {
	Exchange(ctx context.Context, command string, wait time.Duration) (string, error)
}

// Observer receives every poll outcome
type Observer interface {
	ObservePoll(command string, duration time.Duration, err error)
}

// Sample is the cached state of one register
type Sample struct {
	Command string        `json:"command"`
	Raw     string        `json:"raw"`
	At      time.Time     `json:"at"`
	Age     time.Duration `json:"age"`
	Errors  int           `json:"errors"`
}

// Options configures a Manager
type Options struct {
	// Wait is passed to the sender as the settle time of each poll
	Wait     time.Duration
	Refresh  time.Duration
	Observer Observer
	Now      func() time.Time
}

type register struct {
	command     string
	period      time.Duration
	raw         string
	at          time.Time
	lastAttempt time.Time
	attempted   bool
	ok          bool
	errors      int
}

// dueAt is zero for registers never attempted
func (r *register) dueAt() time.Time {
	if !r.attempted {
		return time.Time{}
	}
	return r.lastAttempt.Add(r.period)
}

func (r *register) due(now time.Time) bool {
	return !now.Before(r.dueAt())
}

// Manager polls controller registers in the background and caches their replies
type Manager struct {
	sender Sender
	opts   Options
	logger *zap.Logger

	mu            sync.RWMutex
	registers     []*register
	index         map[string]*register
	lastSuccess   time.Time
	everSucceeded bool

	lifeMu  sync.Mutex
	started bool
	pauses  int
	baseCtx context.Context
	stop    chan struct{}
	done    chan struct{}
}

// NewManager creates a new polling manager
func NewManager(sender Sender, opts Options, logger *zap.Logger) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Refresh <= 0 || opts.Refresh > MaxRefresh {
		if opts.Refresh > MaxRefresh {
			logger.Info("Refresh period capped",
				zap.Duration("requested", opts.Refresh),
				zap.Duration("max", MaxRefresh),
			)
		}
		opts.Refresh = MaxRefresh
	}
	return &Manager{
		sender: sender,
		opts:   opts,
		logger: logger.With(zap.String("component", "poller")),
		index:  make(map[string]*register),
	}
}

// Refresh returns the effective fast cycle
func (m *Manager) Refresh() time.Duration {
	return m.opts.Refresh
}

// Schedule registers a command; a non-positive period polls it every cycle
func (m *Manager) Schedule(command string, period time.Duration) {
	if period <= 0 {
		period = m.opts.Refresh
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.index[command]; ok {
		r.period = period
		return
	}
	r := &register{command: command, period: period}
	m.registers = append(m.registers, r)
	m.index[command] = r
}

// ScheduleAll registers every entry of regs
func (m *Manager) ScheduleAll(regs []Register) {
	for _, r := range regs {
		m.Schedule(r.Command, r.Period)
	}
}

// Commands returns the scheduled commands in order
func (m *Manager) Commands() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.registers))
	for i, r := range m.registers {
		out[i] = r.command
	}
	return out
}

// Start begins the background loop. Calling it twice is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.started {
		return
	}
	m.started = true
	m.baseCtx = ctx
	if m.pauses == 0 {
		m.startLoopLocked()
	}
	m.logger.Info("Polling started",
		zap.Int("registers", len(m.Commands())),
		zap.Duration("refresh", m.opts.Refresh),
	)
}

// Stop ends the background loop and returns once no poll is in flight
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if !m.started {
		return
	}
	m.started = false
	m.stopLoopLocked()
	m.logger.Info("Polling stopped")
}

// Pause suspends polling for exclusive use of the line. Pauses nest.
func (m *Manager) Pause() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.pauses++
	if m.pauses == 1 {
		m.stopLoopLocked()
	}
}

// Resume undoes one Pause
func (m *Manager) Resume() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.pauses == 0 {
		return
	}
	m.pauses--
	if m.pauses == 0 && m.started {
		m.startLoopLocked()
	}
}

// Running reports whether the loop goroutine is active
func (m *Manager) Running() bool {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	return m.done != nil
}

func (m *Manager) startLoopLocked() {
	if m.done != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(m.baseCtx, m.stop, m.done)
}

func (m *Manager) stopLoopLocked() {
	if m.done == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
	m.done = nil
}

func (m *Manager) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		select {
		case <-stop:
			return
		default:
		}
		m.Step(ctx)
	}
}

// tickInterval spreads one fast cycle over all registers
func (m *Manager) tickInterval() time.Duration {
	n := len(m.Commands())
	if n == 0 {
		return m.opts.Refresh
	}
	interval := m.opts.Refresh / time.Duration(n)
	if interval < minTick {
		interval = minTick
	}
	return interval
}

// Step polls the most overdue register, if any is due. It reports whether a poll was made.
func (m *Manager) Step(ctx context.Context) bool {
	r := m.next(m.opts.Now())
	if r == nil {
		return false
	}
	m.poll(ctx, r)
	return true
}

func (m *Manager) next(now time.Time) *register {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *register
	for _, r := range m.registers {
		if !r.due(now) {
			continue
		}
		if best == nil || r.dueAt().Before(best.dueAt()) {
			best = r
		}
	}
	return best
}

func (m *Manager) poll(ctx context.Context, r *register) {
	started := m.opts.Now()
	raw, err := m.sender.Exchange(ctx, r.command, m.opts.Wait)
	raw = strings.TrimSpace(raw)
	if err == nil && raw == "" {
		err = ErrEmptyReply
	}
	now := m.opts.Now()

	m.mu.Lock()
	r.attempted = true
	r.lastAttempt = started
	if err == nil {
		r.raw = raw
		r.at = now
		r.ok = true
		r.errors = 0
		m.lastSuccess = now
		m.everSucceeded = true
	} else {
		r.errors++
	}
	regErrors := r.errors
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("Poll failed",
			zap.String("command", r.command),
			zap.Int("errors", regErrors),
			zap.Error(err),
		)
	} else {
		m.logger.Debug("Poll completed",
			zap.String("command", r.command),
			zap.String("reply", raw),
		)
	}

	if m.opts.Observer != nil {
		m.opts.Observer.ObservePoll(r.command, now.Sub(started), err)
	}
}

// Get returns the cached sample for command; ok is false until it has been read once
func (m *Manager) Get(command string) (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, found := m.index[command]
	if !found {
		return Sample{Command: command}, false
	}
	s := Sample{Command: command, Raw: r.raw, At: r.at, Errors: r.errors}
	if r.ok {
		s.Age = m.opts.Now().Sub(r.at)
	}
	return s, r.ok
}

// Health summarizes communication state for the state machine.
// Errors is the sum of consecutive failures over all registers, so a register
// that answers does not hide the ones still failing.
func (m *Manager) Health() model.CommHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	initialized := len(m.registers) > 0
	failures := 0
	for _, r := range m.registers {
		if !r.attempted {
			initialized = false
		}
		failures += r.errors
	}
	return model.CommHealth{
		Errors:        failures,
		Registers:     len(m.registers),
		LastSuccess:   m.lastSuccess,
		Initialized:   initialized,
		EverSucceeded: m.everSucceeded,
	}
}

// Report returns a one-line communication summary
func (m *Manager) Report() string {
	h := m.Health()

	m.mu.RLock()
	var failing []string
	for _, r := range m.registers {
		if r.errors > 0 {
			failing = append(failing, r.command)
		}
	}
	m.mu.RUnlock()

	if !h.EverSucceeded {
		return fmt.Sprintf("Comms: %d registers, no reply yet", h.Registers)
	}
	report := fmt.Sprintf("Comms: %d registers, %d errors, last reply at %s",
		h.Registers, h.Errors, h.LastSuccess.Format(time.RFC3339))
	if len(failing) > 0 {
		report += fmt.Sprintf(", failing: %s", strings.Join(failing, ","))
	}
	return report
}
