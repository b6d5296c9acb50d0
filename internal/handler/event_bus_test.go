package handler

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gauge-service/internal/model"
)

func receive(t *testing.T, ch <-chan model.DeviceEvent) model.DeviceEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return model.DeviceEvent{}
	}
}

func TestEventBusDistributesByType(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	go bus.Start()
	defer bus.Stop()

	states := bus.Subscribe(model.EventStateChanged)
	all := bus.Subscribe(AllEvents)

	handler := NewGaugeEventHandler(bus, zaptest.NewLogger(t))
	handler.OnCommandCompleted("vgct-01", model.CommandEventData{OperationID: uuid.New(), Command: "CC_On", Argument: "P1", Reply: "OK"})
	handler.OnStateChanged("vgct-01", model.StateChangedEventData{OldState: model.StateOn, NewState: model.StateFault, Status: "no serial line"})

	first := receive(t, all)
	assert.Equal(t, model.EventCommandCompleted, first.EventType)
	assert.Equal(t, "OK", first.Data["reply"])
	assert.Equal(t, "P1", first.Data["argument"])

	state := receive(t, states)
	assert.Equal(t, "ERROR", state.Severity)
	assert.Equal(t, model.StateFault, state.Data["new_state"])
	assert.Equal(t, model.EventStateChanged, receive(t, all).EventType)
}

func TestEventBusHistory(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	go bus.Start()

	handler := NewGaugeEventHandler(bus, zaptest.NewLogger(t))
	for i := 0; i < historySize+5; i++ {
		handler.OnReadingAnomaly("vgct-01", model.ChannelP2, "garbage",
			model.NewReadingError(model.ErrorKindProtocolViolation, model.ChannelP2, "garbage"))
	}
	handler.OnCommandFailed("vgct-01", model.CommandEventData{Command: "Off", Error: errors.New("rejected").Error()})
	bus.Stop()

	history := bus.History()
	require.Len(t, history, historySize)
	last := history[len(history)-1]
	assert.Equal(t, model.EventCommandFailed, last.EventType)
	assert.Equal(t, "rejected", last.Data["error"])
	assert.Equal(t, model.ErrorKindProtocolViolation, history[0].Data["kind"])

	handler.OnWarmUp("vgct-01", "CC_On(P1)")
	assert.Len(t, bus.History(), historySize)
}
