// internal/gauge/parser.go
package gauge

import (
	"strconv"
	"strings"

	"gauge-service/internal/model"
)

// ParseReading converts the raw reply of a pressure register into a reading.
// On error the returned reading still carries the trimmed raw string so the
// caller can record it as the channel state.
func ParseReading(channel model.Channel, raw string, isPirani bool) (model.ChannelReading, error) {
	s := strings.TrimSpace(raw)
	reading := model.ChannelReading{Channel: channel, Raw: s, IsPirani: isPirani}

	switch {
	case s == "":
		return reading, model.NewReadingError(model.ErrorKindCommFailure, channel, s)

	case hardFaults[s]:
		return reading, model.NewReadingError(model.ErrorKindChannelFault, channel, s)

	case strings.Contains(s, "LO") || strings.Contains(s, "OFF"):
		reading.Value, reading.Quality = 0.0, model.QualityWarning
		return reading, nil

	case strings.Contains(s, "PRO"):
		reading.Value, reading.Quality = 1.0, model.QualityAlarm
		return reading, nil

	case floatPattern.MatchString(s):
		return checkRange(reading, s, s)

	case !IsRecognized(s):
		return reading, model.NewReadingError(model.ErrorKindProtocolViolation, channel, s)
	}

	// recognized status tokens may embed a reading, e.g. HI>1.0E-02
	if number := expNumber.FindString(s); number != "" {
		return checkRange(reading, s, number)
	}
	return reading, model.NewReadingError(model.ErrorKindChannelFault, channel, s)
}

func checkRange(reading model.ChannelReading, s, number string) (model.ChannelReading, error) {
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return reading, model.NewReadingError(model.ErrorKindProtocolViolation, reading.Channel, s)
	}
	if !strings.Contains(s, "+") && !(value > 0 && value < 1) {
		return reading, model.NewReadingError(model.ErrorKindRangeAnomaly, reading.Channel, s)
	}
	reading.Value, reading.Quality = value, model.QualityValid
	return reading, nil
}
