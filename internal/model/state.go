// internal/model/state.go
package model

import (
	"fmt"
	"time"
)

// DeviceState represents the authoritative state of the controller
type DeviceState string

const (
	StateInit    DeviceState = "INIT"
	StateOn      DeviceState = "ON"
	StateOff     DeviceState = "OFF"
	StateUnknown DeviceState = "UNKNOWN"
	StateAlarm   DeviceState = "ALARM"
	StateFault   DeviceState = "FAULT"
	StateDisable DeviceState = "DISABLE"
	StateMoving  DeviceState = "MOVING"
)

// AllStates lists every device state in a stable order
var AllStates = []DeviceState{
	StateInit, StateOn, StateOff, StateUnknown, StateAlarm, StateFault, StateDisable, StateMoving,
}

// Code returns a stable numeric code for the state, used by metrics
func (s DeviceState) Code() int {
	for i, st := range AllStates {
		if st == s {
			return i
		}
	}
	return -1
}

func (s DeviceState) String() string {
	return string(s)
}

// StaleAfter is how old the last successful poll may be before comms count as failed
const StaleAfter = 2 * time.Minute

// CommHealth summarizes recent polling success
type CommHealth struct {
	Errors        int       `json:"errors"`
	Registers     int       `json:"registers"`
	LastSuccess   time.Time `json:"last_success"`
	Initialized   bool      `json:"initialized"`
	EverSucceeded bool      `json:"ever_succeeded"`
}

// Failed reports whether communication must be considered lost at the given time
func (h CommHealth) Failed(now time.Time) bool {
	if h.Errors >= h.Registers {
		return true
	}
	return h.LastSuccess.Before(now.Add(-StaleAfter))
}

func (h CommHealth) String() string {
	return fmt.Sprintf("errors=%d/%d last_success=%s", h.Errors, h.Registers, h.LastSuccess.Format(time.DateTime))
}
