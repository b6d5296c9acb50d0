// internal/gauge/table.go
package gauge

import (
	"time"

	"gauge-service/internal/model"
)

// UnknownState is the channel state used before any reply or after comms are lost
const UnknownState = "Unknown"

type channelEntry struct {
	value     float64
	previous  float64
	quality   model.Quality
	state     string
	isPirani  bool
	sampledAt time.Time
}

// ChannelTable holds the last known telemetry of the pressure channels.
// It is not safe for concurrent use; the controller serializes access.
type ChannelTable struct {
	entries [len(model.PressureChannels)]channelEntry
}

// NewChannelTable creates a table with every channel in the unknown state
func NewChannelTable() *ChannelTable {
	t := &ChannelTable{}
	for i := range t.entries {
		t.entries[i].state = UnknownState
		t.entries[i].quality = model.QualityValid
	}
	return t
}

// Apply records a parse outcome for a sample taken at the given time.
// A successful reading moves the current value into the previous slot and
// replaces value, quality and state together. A failed one only updates the state.
func (t *ChannelTable) Apply(reading model.ChannelReading, err error, at time.Time) {
	i := reading.Channel.Index()
	if i < 0 {
		return
	}
	e := &t.entries[i]
	e.sampledAt = at
	e.isPirani = reading.IsPirani

	if err != nil {
		if reading.Raw == "" {
			e.state = UnknownState
		} else {
			e.state = reading.Raw
		}
		return
	}

	e.previous = e.value
	e.value = reading.Value
	e.quality = reading.Quality
	e.state = reading.Raw
}

// SampledAt returns when the channel's last applied sample was taken
func (t *ChannelTable) SampledAt(ch model.Channel) time.Time {
	if i := ch.Index(); i >= 0 {
		return t.entries[i].sampledAt
	}
	return time.Time{}
}

// ResetStates sets every channel state to unknown, leaving values untouched
func (t *ChannelTable) ResetStates() {
	for i := range t.entries {
		t.entries[i].state = UnknownState
	}
}

// Reading returns the last known reading of a pressure channel
func (t *ChannelTable) Reading(ch model.Channel) (model.ChannelReading, bool) {
	i := ch.Index()
	if i < 0 {
		return model.ChannelReading{}, false
	}
	e := t.entries[i]
	return model.ChannelReading{
		Channel:  ch,
		Value:    e.value,
		Quality:  e.quality,
		Raw:      e.state,
		IsPirani: e.isPirani,
	}, true
}

// Values returns the current pressure of every channel
func (t *ChannelTable) Values() [5]float64 {
	var out [5]float64
	for i, e := range t.entries {
		out[i] = e.value
	}
	return out
}

// Previous returns the value each channel held before its latest successful update
func (t *ChannelTable) Previous() [5]float64 {
	var out [5]float64
	for i, e := range t.entries {
		out[i] = e.previous
	}
	return out
}

// States returns the raw state string of every channel
func (t *ChannelTable) States() [5]string {
	var out [5]string
	for i, e := range t.entries {
		out[i] = e.state
	}
	return out
}
