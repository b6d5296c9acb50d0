package mks937

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"gauge-service/internal/dispatcher"
	"gauge-service/internal/gauge"
	"gauge-service/internal/model"
	"gauge-service/internal/poller"
	"gauge-service/pkg/driver"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeCache struct {
	samples map[string]poller.Sample
	health  model.CommHealth
	report  string
	started int
	stopped int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		samples: map[string]poller.Sample{},
		health: model.CommHealth{
			Registers:     17,
			LastSuccess:   testNow,
			Initialized:   true,
			EverSucceeded: true,
		},
		report: "Comms: 17 registers, 0 errors",
	}
}

func (f *fakeCache) set(command, raw string, at time.Time) {
	f.samples[command] = poller.Sample{Command: command, Raw: raw, At: at}
}

func (f *fakeCache) Start(ctx context.Context) { f.started++ }
func (f *fakeCache) Stop()                     { f.stopped++ }
func (f *fakeCache) Health() model.CommHealth  { return f.health }
func (f *fakeCache) Report() string            { return f.report }

func (f *fakeCache) Get(command string) (poller.Sample, bool) {
	s, ok := f.samples[command]
	return s, ok
}

// fakeLine answers every command with a scripted reply, defaulting to OK
type fakeLine struct {
	mu      sync.Mutex
	replies map[string]string
	sent    []string
}

func (l *fakeLine) Exchange(ctx context.Context, command string, wait time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, command)
	if reply, ok := l.replies[command]; ok {
		return reply, nil
	}
	return "OK", nil
}

type nopPauser struct{}

func (nopPauser) Pause()  {}
func (nopPauser) Resume() {}

type recordedEvents struct {
	states    []model.StateChangedEventData
	completed []model.CommandEventData
	failed    []model.CommandEventData
	anomalies []string
	warmUps   []string
}

func (r *recordedEvents) OnStateChanged(device string, data model.StateChangedEventData) {
	r.states = append(r.states, data)
}

func (r *recordedEvents) OnCommandCompleted(device string, data model.CommandEventData) {
	r.completed = append(r.completed, data)
}

func (r *recordedEvents) OnCommandFailed(device string, data model.CommandEventData) {
	r.failed = append(r.failed, data)
}

func (r *recordedEvents) OnReadingAnomaly(device string, channel model.Channel, raw string, err error) {
	r.anomalies = append(r.anomalies, channel.String()+"="+raw)
}

func (r *recordedEvents) OnWarmUp(device string, sequence string) {
	r.warmUps = append(r.warmUps, sequence)
}

type harness struct {
	ctrl   *Controller
	cache  *fakeCache
	line   *fakeLine
	events *recordedEvents
	now    time.Time
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		cache:  newFakeCache(),
		line:   &fakeLine{replies: map[string]string{}},
		events: &recordedEvents{},
		now:    testNow,
	}
	if opts.SerialLine == "" {
		opts.SerialLine = "/dev/ttyUSB0"
	}
	if opts.Protocol == "" {
		opts.Protocol = "232"
	}
	opts.Now = func() time.Time { return h.now }

	logger := zaptest.NewLogger(t)
	disp := dispatcher.NewDispatcher(h.line, nopPauser{}, dispatcher.Options{
		Prefix:      poller.Prefix(opts.Protocol),
		CommandWait: time.Millisecond,
		PendingWait: time.Millisecond,
	}, logger)

	ctrl, err := NewController(h.cache, disp, opts, logger)
	require.NoError(t, err)
	ctrl.SetEventHandler(h.events)
	require.NoError(t, ctrl.Init(context.Background()))
	h.ctrl = ctrl
	return h
}

// healthy loads a working controller with two cold cathodes
func (h *harness) healthy(at time.Time) {
	h.cache.set("GAUGES", "CcCcNc", at)
	h.cache.set("P1", "5.23E-05", at)
	h.cache.set("P2", "4.10E-05", at)
	h.cache.set("P3", "4.00E-05", at)
	h.cache.set("P4", "NOGAUGE", at)
	h.cache.set("P5", "NOGAUGE", at)
	h.cache.set("VER", "1.10", at)
	h.cache.set("RELAYS", "00101", at)
	h.cache.set("PRO1", "1.0E-02", at)
	h.cache.set("PRO2", "2.0E-02", at)
}

func TestTickReachesOnAndRunsWarmUpOnce(t *testing.T) {
	h := newHarness(t, Options{StartSequence: []string{"CC_On(P1)", `CC_On(P2):"OFF" in P2`}, Description: "Sector 3 gauges"})
	assert.Equal(t, 1, h.cache.started)
	assert.Equal(t, model.StateInit, h.ctrl.State())

	h.healthy(testNow)
	h.ctrl.Tick(context.Background())

	assert.Equal(t, model.StateOn, h.ctrl.State())
	status := h.ctrl.Status()
	assert.Contains(t, status, gauge.StatusWorking)
	assert.Contains(t, status, "Sector 3 gauges")
	assert.True(t, strings.HasSuffix(status, h.cache.report))

	assert.Equal(t, []string{"ECC1"}, h.line.sent, "guarded step skipped while P2 reads a value")
	require.Len(t, h.events.states, 1)
	assert.Equal(t, model.StateInit, h.events.states[0].OldState)
	assert.Equal(t, model.StateOn, h.events.states[0].NewState)
	assert.Len(t, h.events.warmUps, 1)

	h.now = h.now.Add(time.Second)
	h.ctrl.Tick(context.Background())
	assert.Len(t, h.events.warmUps, 1)
	assert.Len(t, h.line.sent, 1)
}

func TestTickAppliesOnlyNewSamples(t *testing.T) {
	h := newHarness(t, Options{})
	h.healthy(testNow)
	h.cache.set("P2", "garbage", testNow)

	h.ctrl.Tick(context.Background())
	h.ctrl.Tick(context.Background())
	assert.Equal(t, []string{"garbage"}, h.ctrl.Missreadings())
	assert.Equal(t, []string{"P2=garbage"}, h.events.anomalies)

	h.cache.set("P2", "4.20E-05", testNow.Add(time.Second))
	h.ctrl.Tick(context.Background())
	reading, err := h.ctrl.ReadChannel(model.ChannelP2)
	require.NoError(t, err)
	assert.Equal(t, 4.2e-5, reading.Value)
	assert.Equal(t, []string{"garbage"}, h.ctrl.Missreadings())
}

func TestTickCommFailureResetsChannelStates(t *testing.T) {
	h := newHarness(t, Options{StartSequence: []string{"CC_On(P1)"}})
	h.healthy(testNow)
	h.cache.health.Errors = 17

	h.ctrl.Tick(context.Background())
	assert.Equal(t, model.StateUnknown, h.ctrl.State())
	assert.Contains(t, h.ctrl.Status(), "Unable to communicate since")
	for _, s := range h.ctrl.ChannelStates() {
		assert.True(t, strings.HasSuffix(s, ":"+gauge.UnknownState), s)
	}
	assert.Empty(t, h.line.sent, "no warm up when leaving Init for Unknown")
}

func TestTickWithoutSerialLine(t *testing.T) {
	cache := newFakeCache()
	ctrl, err := NewController(cache, nil, Options{Now: func() time.Time { return testNow }}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, ctrl.Init(context.Background()))
	assert.Zero(t, cache.started)

	ctrl.Tick(context.Background())
	assert.Equal(t, model.StateFault, ctrl.State())
	assert.Equal(t, gauge.StatusNoSerialLine, ctrl.Status())
}

func TestStatusIsTruncated(t *testing.T) {
	h := newHarness(t, Options{Description: strings.Repeat("x", 300)})
	h.healthy(testNow)
	h.ctrl.Tick(context.Background())
	assert.Len(t, []rune(h.ctrl.Status()), MaxStatusLength)
}

func TestReadChannel(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.ctrl.ReadChannel(model.ChannelP1)
	assert.ErrorIs(t, err, model.ErrCommFailure)

	h.healthy(testNow)
	reading, err := h.ctrl.ReadChannel(model.ChannelP1)
	require.NoError(t, err)
	assert.Equal(t, 5.23e-5, reading.Value)

	_, err = h.ctrl.ReadChannel(model.ChannelP4)
	assert.ErrorIs(t, err, model.ErrChannelFault)

	reading, err = h.ctrl.ReadChannel(model.ChannelPRO1)
	require.NoError(t, err)
	assert.Equal(t, 1.0e-2, reading.Value)
}

func TestAttributes(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.ctrl.Relays()
	assert.ErrorIs(t, err, model.ErrCommFailure)

	h.healthy(testNow)
	h.ctrl.Tick(context.Background())

	relays, err := h.ctrl.Relays()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false, true}, relays)
	assert.Equal(t, "1.10", h.ctrl.FirmwareVersion())
	assert.Equal(t, []string{"1.0E-02", "2.0E-02"}, h.ctrl.ProtectSetpoints())
	assert.Equal(t, "/dev/ttyUSB0", h.ctrl.SerialLine())
	assert.Contains(t, h.ctrl.ModulesInstalled(), "P1=CC:")
	assert.Equal(t, []string{"P1:5.23E-05", "P2:4.10E-05", "P3:4.00E-05", "P4:NOGAUGE", "P5:NOGAUGE"}, h.ctrl.ChannelStates())

	snap := h.ctrl.Snapshot()
	assert.Equal(t, model.StateOn, snap.State)
	assert.Equal(t, 5.23e-5, snap.PressureValues[0])
	assert.Len(t, snap.RelaySetpoints, 5)

	health := h.ctrl.Health()
	assert.True(t, health.Healthy)

	h.cache.set("RELAYS", "0a101", testNow.Add(time.Second))
	_, err = h.ctrl.Relays()
	assert.ErrorIs(t, err, model.ErrProtocolViolation)
}

func TestWriteSetpoints(t *testing.T) {
	h := newHarness(t, Options{Protocol: "485"})

	_, err := h.ctrl.WriteSetpoints(context.Background(), driver.SetpointProtect, []float64{1e-2})
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Empty(t, h.line.sent)

	_, err = h.ctrl.WriteSetpoints(context.Background(), driver.SetpointProtect, []float64{1e-2, 2.5e-3})
	require.NoError(t, err)
	assert.Equal(t, []string{"$0PRO1=1.0E-02", "$0PRO2=2.5E-03"}, h.line.sent)

	h.line.sent = nil
	_, err = h.ctrl.WriteSetpoints(context.Background(), driver.SetpointRelay, []float64{1e-3, 1e-3, 1e-3, 1e-3, 1e-3})
	require.NoError(t, err)
	assert.Len(t, h.line.sent, 5)
	assert.Equal(t, "$0RLY5=1.0E-03", h.line.sent[4])
}

func TestDispatchOnUsesModules(t *testing.T) {
	h := newHarness(t, Options{})
	h.healthy(testNow)

	reply, err := h.ctrl.DispatchCommand(context.Background(), "On", "")
	require.NoError(t, err)
	assert.Equal(t, "OK,OK", reply)
	assert.Equal(t, []string{"ECC1", "ECC2"}, h.line.sent)
	require.Len(t, h.events.completed, 1)
	assert.Equal(t, "On", h.events.completed[0].Command)
}

func TestDispatchOnUsesDefaultStatus(t *testing.T) {
	h := newHarness(t, Options{DefaultStatus: []string{"Off", "On"}})
	h.healthy(testNow)

	reply, err := h.ctrl.DispatchCommand(context.Background(), "On", "")
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	assert.Equal(t, []string{"ECC2"}, h.line.sent)
}

func TestDispatchOffAndRejection(t *testing.T) {
	h := newHarness(t, Options{})
	h.healthy(testNow)
	h.line.replies["ECC1"] = "PENDING"

	reply, err := h.ctrl.DispatchCommand(context.Background(), "Off", "")
	require.NoError(t, err)
	assert.Equal(t, "OK,OK", reply)
	assert.Equal(t, []string{"XCC1", "XCC2"}, h.line.sent)

	_, err = h.ctrl.DispatchCommand(context.Background(), "CC_On", "CC1")
	assert.ErrorIs(t, err, model.ErrCommandRejected)
	require.Len(t, h.events.failed, 1)
	assert.NotEmpty(t, h.events.failed[0].Error)
}

func TestDispatchSendCommandAndChannelState(t *testing.T) {
	h := newHarness(t, Options{})
	h.healthy(testNow)
	h.ctrl.Tick(context.Background())
	h.line.replies["P1"] = "5.00E-05"
	h.line.replies["VER"] = "1.10"

	reply, err := h.ctrl.DispatchCommand(context.Background(), "SendCommand", "P1, VER")
	require.NoError(t, err)
	assert.Equal(t, "5.00E-05\n1.10", reply)

	state, err := h.ctrl.DispatchCommand(context.Background(), "getChannelState", "P4")
	require.NoError(t, err)
	assert.Equal(t, "NOGAUGE", state)

	state, err = h.ctrl.DispatchCommand(context.Background(), "getChannelState", "RLY1")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", state)
}

func TestDispatchValidation(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.ctrl.DispatchCommand(context.Background(), "Reboot", "")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = h.ctrl.DispatchCommand(context.Background(), "CC_On", " ")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = h.ctrl.DispatchCommand(context.Background(), "CC_Off", "CC7")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.Empty(t, h.line.sent)

	assert.Len(t, h.ctrl.Commands(), 7)
}

func TestWarmUpCommand(t *testing.T) {
	h := newHarness(t, Options{StartSequence: []string{"# start both", "CC_On(ALL)"}})
	h.healthy(testNow)

	reply, err := h.ctrl.DispatchCommand(context.Background(), "WarmUp", "")
	require.NoError(t, err)
	assert.Equal(t, "CC_On(ALL)", reply)
	assert.Equal(t, []string{"ECC1", "ECC2"}, h.line.sent)
}

func TestTickDropsStaleStateWhenAlarmReturns(t *testing.T) {
	h := newHarness(t, Options{})
	h.healthy(testNow)
	h.ctrl.Tick(context.Background())
	require.Equal(t, model.StateOn, h.ctrl.State())

	step := func(d time.Duration, p1 string) {
		h.now = testNow.Add(d)
		if p1 != "" {
			h.cache.set("P1", p1, h.now)
		}
		h.ctrl.Tick(context.Background())
	}

	step(2*time.Second, "HI>")
	require.Equal(t, model.StateAlarm, h.ctrl.State())

	// one On evaluation inside the alarm hold, then the alarm comes back
	step(3*time.Second, "5.23E-05")
	step(4*time.Second, "HI>")
	for _, d := range []time.Duration{22 * time.Second, 23 * time.Second, 30 * time.Second} {
		step(d, "")
		assert.Equal(t, model.StateAlarm, h.ctrl.State(), d)
	}

	require.Len(t, h.events.states, 2)
	assert.Equal(t, model.StateAlarm, h.events.states[1].NewState)
}

func TestNewControllerRejectsBadSequence(t *testing.T) {
	_, err := NewController(newFakeCache(), nil, Options{StartSequence: []string{"CC_On(P1): P1 +"}}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewControllerSkipsUnknownSequenceAction(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctrl, err := NewController(newFakeCache(), nil, Options{StartSequence: []string{"Reboot(P1)", "CC_On(P2)"}}, zap.New(core))
	require.NoError(t, err)
	require.Len(t, ctrl.sequence.Steps(), 1)
	assert.Equal(t, "P2", ctrl.sequence.Steps()[0].Target)

	skipped := logs.FilterMessage("Unknown start sequence action, step skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "Reboot(P1)", skipped[0].ContextMap()["entry"])
}

func TestCloseStopsCache(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, 1, h.cache.stopped)
}
