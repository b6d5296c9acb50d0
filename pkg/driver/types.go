// pkg/driver/types.go
package driver

import (
	"time"

	"gauge-service/internal/model"
)

// SetpointKind names a writable setpoint array
type SetpointKind string

const (
	SetpointProtect SetpointKind = "ProtectSetpoints"
	SetpointRelay   SetpointKind = "RelaySetpoints"
)

// Size returns how many values a write must carry, or 0 for an unknown kind
func (k SetpointKind) Size() int {
	switch k {
	case SetpointProtect:
		return 2
	case SetpointRelay:
		return 5
	}
	return 0
}

// Register returns the register prefix the setpoints are written to
func (k SetpointKind) Register() string {
	switch k {
	case SetpointProtect:
		return "PRO"
	case SetpointRelay:
		return "RLY"
	}
	return ""
}

// CommandInfo describes a command accepted by DispatchCommand
type CommandInfo struct {
	Name        string `json:"name"`
	Argument    string `json:"argument,omitempty"`
	Description string `json:"description"`
}

// Snapshot is every readable attribute of the controller at one instant
type Snapshot struct {
	Device           string            `json:"device"`
	State            model.DeviceState `json:"state"`
	Status           string            `json:"status"`
	PressureValues   [5]float64        `json:"pressure_values"`
	ChannelStates    []string          `json:"channel_states"`
	ModulesInstalled string            `json:"modules_installed,omitempty"`
	FirmwareVersion  string            `json:"firmware_version,omitempty"`
	SerialLine       string            `json:"serial_line"`
	Relays           []bool            `json:"relays,omitempty"`
	ProtectSetpoints []string          `json:"protect_setpoints"`
	RelaySetpoints   []string          `json:"relay_setpoints"`
	Missreadings     []string          `json:"missreadings"`
	Timestamp        time.Time         `json:"timestamp"`
}

// HealthReport describes communication with the controller
type HealthReport struct {
	Healthy bool              `json:"healthy"`
	Comm    model.CommHealth  `json:"comm"`
	Report  string            `json:"report"`
	State   model.DeviceState `json:"state"`
}
