// internal/model/channel.go
package model

import (
	"fmt"
	"strings"
)

// Channel identifies a controller register that carries a measurement or setpoint
type Channel string

const (
	ChannelP1 Channel = "P1"
	ChannelP2 Channel = "P2"
	ChannelP3 Channel = "P3"
	ChannelP4 Channel = "P4"
	ChannelP5 Channel = "P5"

	ChannelC1 Channel = "C1"
	ChannelC2 Channel = "C2"

	ChannelPRO1 Channel = "PRO1"
	ChannelPRO2 Channel = "PRO2"

	ChannelRLY1 Channel = "RLY1"
	ChannelRLY2 Channel = "RLY2"
	ChannelRLY3 Channel = "RLY3"
	ChannelRLY4 Channel = "RLY4"
	ChannelRLY5 Channel = "RLY5"
)

// PressureChannels lists the pressure channels in index order
var PressureChannels = [5]Channel{ChannelP1, ChannelP2, ChannelP3, ChannelP4, ChannelP5}

// ProtectChannels lists the protect setpoint registers
var ProtectChannels = [2]Channel{ChannelPRO1, ChannelPRO2}

// RelayChannels lists the relay setpoint registers
var RelayChannels = [5]Channel{ChannelRLY1, ChannelRLY2, ChannelRLY3, ChannelRLY4, ChannelRLY5}

var knownChannels = map[Channel]bool{
	ChannelP1: true, ChannelP2: true, ChannelP3: true, ChannelP4: true, ChannelP5: true,
	ChannelC1: true, ChannelC2: true,
	ChannelPRO1: true, ChannelPRO2: true,
	ChannelRLY1: true, ChannelRLY2: true, ChannelRLY3: true, ChannelRLY4: true, ChannelRLY5: true,
}

// ParseChannel converts a register name into a Channel
func ParseChannel(name string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(name)))
	if !knownChannels[ch] {
		return "", fmt.Errorf("unknown channel: %q", name)
	}
	return ch, nil
}

// Index returns the position of a pressure channel, or -1 for any other channel
func (c Channel) Index() int {
	for i, p := range PressureChannels {
		if p == c {
			return i
		}
	}
	return -1
}

// IsPressure reports whether the channel is one of P1..P5
func (c Channel) IsPressure() bool {
	return c.Index() >= 0
}

func (c Channel) String() string {
	return string(c)
}

// Quality represents the trust level of a channel reading
type Quality string

const (
	QualityValid   Quality = "VALID"
	QualityWarning Quality = "WARNING"
	QualityAlarm   Quality = "ALARM"
)

// ChannelReading is the parsed form of one raw register reply
type ChannelReading struct {
	Channel  Channel `json:"channel"`
	Value    float64 `json:"value"`
	Quality  Quality `json:"quality"`
	Raw      string  `json:"raw"`
	IsPirani bool    `json:"is_pirani"`
}
