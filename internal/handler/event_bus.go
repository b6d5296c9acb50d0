// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"gauge-service/internal/model"
	"gauge-service/pkg/driver"
)

// AllEvents subscribes to every event type
const AllEvents model.EventType = "*"

const historySize = 100

// EventBus manages event distribution
type EventBus struct {
	subscribers map[model.EventType][]chan model.DeviceEvent
	events      chan model.DeviceEvent
	history     []model.DeviceEvent
	mutex       sync.RWMutex
	logger      *zap.Logger
	done        chan struct{}
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[model.EventType][]chan model.DeviceEvent),
		events:      make(chan model.DeviceEvent, 1000),
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start distributes published events until Stop is called
func (eb *EventBus) Start() {
	defer close(eb.done)
	for event := range eb.events {
		eb.distributeEvent(event)
	}
}

// Stop closes the bus and waits for pending events to be distributed
func (eb *EventBus) Stop() {
	eb.mutex.Lock()
	if !eb.closed {
		eb.closed = true
		close(eb.events)
	}
	eb.mutex.Unlock()
	<-eb.done
}

// Publish publishes an event. Events published after Stop are discarded.
func (eb *EventBus) Publish(event model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	if eb.closed {
		return
	}
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
		)
	}
}

// Subscribe subscribes to events of a specific type, or AllEvents
func (eb *EventBus) Subscribe(eventType model.EventType) <-chan model.DeviceEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	subscriber := make(chan model.DeviceEvent, 100)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
	return subscriber
}

// History returns the most recent events, oldest first
func (eb *EventBus) History() []model.DeviceEvent {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	out := make([]model.DeviceEvent, len(eb.history))
	copy(out, eb.history)
	return out
}

func (eb *EventBus) distributeEvent(event model.DeviceEvent) {
	eb.mutex.Lock()
	eb.history = append(eb.history, event)
	if len(eb.history) > historySize {
		eb.history = eb.history[len(eb.history)-historySize:]
	}
	subscribers := append([]chan model.DeviceEvent{}, eb.subscribers[event.EventType]...)
	subscribers = append(subscribers, eb.subscribers[AllEvents]...)
	eb.mutex.Unlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
			// slow subscriber
		}
	}
}

// GaugeEventHandler turns controller callbacks into bus events
type GaugeEventHandler struct {
	bus    *EventBus
	logger *zap.Logger
}

var _ driver.EventHandler = (*GaugeEventHandler)(nil)

// NewGaugeEventHandler creates a new gauge event handler
func NewGaugeEventHandler(bus *EventBus, logger *zap.Logger) *GaugeEventHandler {
	return &GaugeEventHandler{bus: bus, logger: logger}
}

// OnStateChanged publishes a visible state transition
func (h *GaugeEventHandler) OnStateChanged(device string, data model.StateChangedEventData) {
	severity := "INFO"
	switch data.NewState {
	case model.StateAlarm, model.StateUnknown:
		severity = "WARNING"
	case model.StateFault:
		severity = "ERROR"
	}

	h.bus.Publish(model.NewDeviceEvent(model.EventStateChanged, device, severity, map[string]interface{}{
		"old_state": data.OldState,
		"new_state": data.NewState,
		"status":    data.Status,
	}))
}

// OnCommandCompleted publishes a successful command
func (h *GaugeEventHandler) OnCommandCompleted(device string, data model.CommandEventData) {
	h.bus.Publish(model.NewDeviceEvent(model.EventCommandCompleted, device, "INFO", commandData(data)))
}

// OnCommandFailed publishes a failed command
func (h *GaugeEventHandler) OnCommandFailed(device string, data model.CommandEventData) {
	h.bus.Publish(model.NewDeviceEvent(model.EventCommandFailed, device, "ERROR", commandData(data)))
}

// OnReadingAnomaly publishes a newly missed reading
func (h *GaugeEventHandler) OnReadingAnomaly(device string, channel model.Channel, raw string, err error) {
	data := map[string]interface{}{
		"channel": channel,
		"raw":     raw,
	}
	if kind, ok := model.KindOf(err); ok {
		data["kind"] = kind
	}
	h.bus.Publish(model.NewDeviceEvent(model.EventReadingAnomaly, device, "WARNING", data))
}

// OnWarmUp publishes an executed start sequence
func (h *GaugeEventHandler) OnWarmUp(device string, sequence string) {
	h.logger.Info("Start sequence executed", zap.String("device", device))
	h.bus.Publish(model.NewDeviceEvent(model.EventWarmUp, device, "INFO", map[string]interface{}{
		"sequence": sequence,
	}))
}

func commandData(data model.CommandEventData) map[string]interface{} {
	out := map[string]interface{}{
		"operation_id": data.OperationID.String(),
		"command":      data.Command,
		"duration_ms":  data.DurationMs,
	}
	if data.Argument != "" {
		out["argument"] = data.Argument
	}
	if data.Reply != "" {
		out["reply"] = data.Reply
	}
	if data.Error != "" {
		out["error"] = data.Error
	}
	return out
}
