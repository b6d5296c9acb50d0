// internal/poller/registers.go
package poller

import (
	"time"

	"gauge-service/internal/model"
)

const (
	// MaxRefresh caps the fast polling cycle
	MaxRefresh = 5 * time.Second
	// SlowPeriod is the period of configuration registers
	SlowPeriod = 60 * time.Second
)

// Register is a polled controller command and its period
type Register struct {
	Command string
	Period  time.Duration
}

// Prefix returns the addressing prefix for the line protocol
func Prefix(protocol string) string {
	switch protocol {
	case "422", "485":
		return "$0"
	}
	return ""
}

// SlowCommands are the configuration registers read once per SlowPeriod
var SlowCommands = []string{
	"C1", "C2",
	"PRO1", "PRO2",
	"RLY1", "RLY2", "RLY3", "RLY4", "RLY5",
	"RELAYS", "GAUGES", "VER",
}

// DefaultRegisters returns the fast pressure registers followed by the slow ones
func DefaultRegisters(prefix string, refresh time.Duration) []Register {
	regs := make([]Register, 0, len(model.PressureChannels)+len(SlowCommands))
	for _, ch := range model.PressureChannels {
		regs = append(regs, Register{Command: prefix + ch.String(), Period: refresh})
	}
	for _, cmd := range SlowCommands {
		regs = append(regs, Register{Command: prefix + cmd, Period: SlowPeriod})
	}
	return regs
}
