package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSender struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]error
	calls   []string

	inflight atomic.Int32
	block    chan struct{}
	entered  chan struct{}
}

func newFakeSender(replies map[string]string) *fakeSender {
	return &fakeSender{replies: replies, fail: map[string]error{}}
}

func (f *fakeSender) Exchange(ctx context.Context, command string, wait time.Duration) (string, error) {
	f.inflight.Add(1)
	defer f.inflight.Add(-1)

	if f.block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	if err := f.fail[command]; err != nil {
		return "", err
	}
	return f.replies[command], nil
}

func (f *fakeSender) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingObserver struct {
	mu       sync.Mutex
	ok, fail int
}

func (o *recordingObserver) ObservePoll(command string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.fail++
	} else {
		o.ok++
	}
}

func pressureReplies() map[string]string {
	return map[string]string{
		"P1": "5.23E-05",
		"P2": "4.10E-05",
		"P3": "LO",
		"P4": "NOGAUGE",
		"P5": "NOGAUGE",
	}
}

func newTestManager(sender Sender, clock *fakeClock, obs Observer) *Manager {
	m := NewManager(sender, Options{Refresh: 3 * time.Second, Now: clock.Now, Observer: obs}, zap.NewNop())
	m.ScheduleAll(DefaultRegisters("", m.Refresh())[:5])
	return m
}

func TestManagerCachesReplies(t *testing.T) {
	clock := newFakeClock()
	sender := newFakeSender(pressureReplies())
	obs := &recordingObserver{}
	m := newTestManager(sender, clock, obs)

	_, ok := m.Get("P1")
	assert.False(t, ok)
	assert.False(t, m.Health().Initialized)

	for i := 0; i < 5; i++ {
		require.True(t, m.Step(context.Background()))
	}
	assert.False(t, m.Step(context.Background()), "nothing due within the cycle")
	assert.Equal(t, []string{"P1", "P2", "P3", "P4", "P5"}, sender.Calls())

	clock.Advance(2 * time.Second)
	s, ok := m.Get("P1")
	require.True(t, ok)
	assert.Equal(t, "5.23E-05", s.Raw)
	assert.Equal(t, 2*time.Second, s.Age)
	assert.Equal(t, 0, s.Errors)

	h := m.Health()
	assert.True(t, h.Initialized)
	assert.True(t, h.EverSucceeded)
	assert.Equal(t, 5, h.Registers)
	assert.Equal(t, 5, obs.ok)
}

func TestManagerSlowRegistersWaitTheirPeriod(t *testing.T) {
	clock := newFakeClock()
	sender := newFakeSender(map[string]string{"$0P1": "5.00E-05", "$0VER": "1.20"})
	m := NewManager(sender, Options{Refresh: time.Second, Now: clock.Now}, zap.NewNop())
	m.Schedule("$0P1", 0)
	m.Schedule("$0VER", SlowPeriod)

	m.Step(context.Background())
	m.Step(context.Background())
	clock.Advance(time.Second)
	m.Step(context.Background())
	assert.False(t, m.Step(context.Background()))
	assert.Equal(t, []string{"$0P1", "$0VER", "$0P1"}, sender.Calls())

	clock.Advance(SlowPeriod)
	m.Step(context.Background())
	m.Step(context.Background())
	assert.Contains(t, sender.Calls()[3:], "$0VER")
}

func TestManagerFailureKeepsCachedValue(t *testing.T) {
	clock := newFakeClock()
	sender := newFakeSender(pressureReplies())
	obs := &recordingObserver{}
	m := newTestManager(sender, clock, obs)
	for m.Step(context.Background()) {
	}

	sender.fail["P1"] = errors.New("timeout")
	clock.Advance(3 * time.Second)
	m.Step(context.Background())

	s, ok := m.Get("P1")
	require.True(t, ok)
	assert.Equal(t, "5.23E-05", s.Raw)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, m.Health().Errors)
	assert.Equal(t, 1, obs.fail)
	assert.Contains(t, m.Report(), "failing: P1")

	// P2 answering does not clear the failure of P1
	m.Step(context.Background())
	assert.Equal(t, 1, m.Health().Errors)

	delete(sender.fail, "P1")
	clock.Advance(3 * time.Second)
	for m.Step(context.Background()) {
	}
	assert.Equal(t, 0, m.Health().Errors)
}

func TestManagerEmptyReplyIsFailure(t *testing.T) {
	clock := newFakeClock()
	sender := newFakeSender(map[string]string{"P1": "  "})
	m := NewManager(sender, Options{Refresh: time.Second, Now: clock.Now}, zap.NewNop())
	m.Schedule("P1", 0)
	m.Step(context.Background())

	_, ok := m.Get("P1")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Health().Errors)
	assert.Contains(t, m.Report(), "no reply yet")
}

func TestManagerHealthFailsAfterTwoFailingRounds(t *testing.T) {
	clock := newFakeClock()
	sender := newFakeSender(pressureReplies())
	m := newTestManager(sender, clock, nil)
	for m.Step(context.Background()) {
	}
	require.False(t, m.Health().Failed(clock.Now()))

	for _, cmd := range m.Commands() {
		sender.fail[cmd] = errors.New("no reply")
	}
	for round := 0; round < 2; round++ {
		clock.Advance(3 * time.Second)
		for m.Step(context.Background()) {
		}
	}

	h := m.Health()
	assert.Equal(t, 10, h.Errors)
	assert.True(t, h.Failed(clock.Now()))
	assert.True(t, h.EverSucceeded)
}

func TestManagerHealthStaysFailedWhileSlowRegistersAnswer(t *testing.T) {
	clock := newFakeClock()
	replies := pressureReplies()
	for _, cmd := range SlowCommands {
		replies[cmd] = "OK"
	}
	sender := newFakeSender(replies)
	m := NewManager(sender, Options{Refresh: 3 * time.Second, Now: clock.Now}, zap.NewNop())
	m.ScheduleAll(DefaultRegisters("", m.Refresh()))
	for m.Step(context.Background()) {
	}
	require.Equal(t, 17, m.Health().Registers)
	require.False(t, m.Health().Failed(clock.Now()))

	for _, ch := range []string{"P1", "P2", "P3", "P4", "P5"} {
		sender.fail[ch] = errors.New("no reply")
	}

	failedSince := time.Time{}
	for elapsed := time.Duration(0); elapsed < 3*SlowPeriod; elapsed += 100 * time.Millisecond {
		clock.Advance(100 * time.Millisecond)
		m.Step(context.Background())

		h := m.Health()
		if failedSince.IsZero() {
			if h.Failed(clock.Now()) {
				failedSince = clock.Now()
			}
			continue
		}
		require.True(t, h.Failed(clock.Now()), "comms recovered at %s after failing since %s", clock.Now(), failedSince)
	}
	require.False(t, failedSince.IsZero())

	s, ok := m.Get("GAUGES")
	require.True(t, ok)
	assert.Zero(t, s.Errors)
	assert.True(t, m.Health().LastSuccess.After(failedSince))
}

func TestManagerRefreshIsCapped(t *testing.T) {
	m := NewManager(newFakeSender(nil), Options{Refresh: time.Minute}, zap.NewNop())
	assert.Equal(t, MaxRefresh, m.Refresh())
}

func TestManagerStopWaitsForInflightPoll(t *testing.T) {
	sender := newFakeSender(pressureReplies())
	sender.block = make(chan struct{})
	sender.entered = make(chan struct{}, 1)
	m := NewManager(sender, Options{Refresh: 50 * time.Millisecond}, zap.NewNop())
	m.Schedule("P1", 0)

	m.Start(context.Background())
	select {
	case <-sender.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a poll was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sender.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, int32(0), sender.inflight.Load())
	assert.False(t, m.Running())

	calls := len(sender.Calls())
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, sender.Calls(), calls)

	m.Stop()
}

func TestManagerPauseResumeNest(t *testing.T) {
	m := NewManager(newFakeSender(pressureReplies()), Options{Refresh: time.Second}, zap.NewNop())
	m.Schedule("P1", 0)

	m.Pause()
	m.Start(context.Background())
	assert.False(t, m.Running())

	m.Pause()
	m.Resume()
	assert.False(t, m.Running())
	m.Resume()
	assert.True(t, m.Running())

	m.Resume()
	assert.True(t, m.Running())

	m.Stop()
	assert.False(t, m.Running())
	m.Resume()
	assert.False(t, m.Running())
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "$0", Prefix("485"))
	assert.Equal(t, "$0", Prefix("422"))
	assert.Equal(t, "", Prefix("232"))

	regs := DefaultRegisters("$0", time.Second)
	assert.Equal(t, "$0P1", regs[0].Command)
	assert.Equal(t, time.Second, regs[4].Period)
	assert.Equal(t, "$0C1", regs[5].Command)
	assert.Equal(t, SlowPeriod, regs[len(regs)-1].Period)
	assert.Len(t, regs, 17)
}
