// pkg/driver/interfaces.go
package driver

import (
	"context"

	"gauge-service/internal/model"
)

// GaugeDriver is the surface a host exposes for one gauge controller
type GaugeDriver interface {
	// Lifecycle
	Init(ctx context.Context) error
	Tick(ctx context.Context)
	Close() error

	// Attributes
	ReadChannel(channel model.Channel) (model.ChannelReading, error)
	WriteSetpoints(ctx context.Context, kind SetpointKind, values []float64) (string, error)
	Snapshot() Snapshot
	Health() HealthReport

	// Commands
	Commands() []CommandInfo
	DispatchCommand(ctx context.Context, name, argument string) (string, error)

	// Event handling
	SetEventHandler(handler EventHandler)
}

// EventHandler receives controller events
type EventHandler interface {
	OnStateChanged(device string, data model.StateChangedEventData)
	OnCommandCompleted(device string, data model.CommandEventData)
	OnCommandFailed(device string, data model.CommandEventData)
	OnReadingAnomaly(device string, channel model.Channel, raw string, err error)
	OnWarmUp(device string, sequence string)
}
