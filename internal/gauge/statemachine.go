// internal/gauge/statemachine.go
package gauge

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gauge-service/internal/model"
)

// Status fragments produced by Evaluate
const (
	StatusNoSerialLine   = "SerialLine property requires a value!"
	StatusAboveRange     = "Channel readings above range!"
	StatusPiraniReadings = "Pirani has readings!"
	StatusWorking        = "Controller is working properly."
	StatusHVOff          = "HV output is Off."
	StatusNotWorking     = "Some Controller Channel is NOT working properly, check device."
)

var (
	ccgOnPattern = regexp.MustCompile(`^(ok|lo|` + floatExpr + `)`)
	loPattern    = regexp.MustCompile(`^lo`)
)

// Input is everything the state machine looks at in one evaluation
type Input struct {
	SerialLineConfigured bool
	Health               model.CommHealth
	Now                  time.Time
	StartedAt            time.Time
	Modules              string
	States               [5]string
	Values               [5]float64
	Previous             [5]float64
	DefaultStatus        []string
}

// Result is the outcome of one evaluation
type Result struct {
	State       model.DeviceState
	Status      string
	ResetStates bool
}

// Evaluate derives the device state from a snapshot of the controller.
// It is a pure function of its input.
func Evaluate(in Input) Result {
	switch {
	case !in.SerialLineConfigured:
		return Result{State: model.StateFault, Status: StatusNoSerialLine}

	case !in.Health.Initialized:
		return Result{
			State:  model.StateInit,
			Status: fmt.Sprintf("Hardware values not read yet, started at %s", in.StartedAt.Format(time.DateTime)),
		}

	case in.Health.Failed(in.Now):
		state := model.StateFault
		if in.Health.EverSucceeded {
			state = model.StateUnknown
		}
		return Result{
			State:       state,
			Status:      fmt.Sprintf("Unable to communicate since %s", in.Health.LastSuccess.Format(time.DateTime)),
			ResetStates: true,
		}

	case strings.HasPrefix(in.Modules, model.WrongModuleMarker):
		return Result{
			State:  model.StateFault,
			Status: fmt.Sprintf("WrongModuleError: %s!, check device", in.Modules),
		}
	}

	piranis := map[int]bool{}
	for _, ch := range model.PiraniChannels(in.Modules) {
		piranis[ch.Index()] = true
	}

	var ccg, pir []string
	for i, s := range in.States {
		if piranis[i] {
			pir = append(pir, strings.ToLower(s))
		} else {
			ccg = append(ccg, strings.ToLower(s))
		}
	}

	var status []string
	var state model.DeviceState

	switch {
	case anyContains(ccg, "pro", "hi"):
		state = model.StateAlarm
		status = append(status, StatusAboveRange)

	case anyMatch(ccgOnPattern, ccg):
		state = model.StateOn
		if anyMatch(loPattern, ccg) {
			state = model.StateMoving
			status = append(status, fmt.Sprintf("Channel readings below range!: [%s]", strings.Join(ccg, ", ")))
		}

		for i, expected := range in.DefaultStatus {
			if i >= len(in.States) {
				break
			}
			if strings.ToLower(strings.TrimSpace(expected)) == "on" && strings.Contains(strings.ToLower(in.States[i]), "off") {
				state = model.StateAlarm
				status = append(status, fmt.Sprintf("Channel %d should be ON!", i+1))
			}
		}

		if state == model.StateOn || state == model.StateMoving {
			if anyMatch(floatPattern, pir) {
				if anyMatch(floatPattern, ccg) {
					state = model.StateMoving
				} else {
					state = model.StateAlarm
				}
				status = append(status, StatusPiraniReadings)
			} else {
				status = append(status, StatusWorking)
			}

			for i := range in.Values {
				prev, cur := in.Previous[i], in.Values[i]
				if prev != 0 && cur != 0 && !(prev/cur > 0.5 && prev/cur < 1.5) {
					state = model.StateMoving
					status = append(status, fmt.Sprintf("Gauge oscillates between %g and %g!", prev, cur))
					break
				}
			}
		}

	case allContain(ccg, "off"):
		state = model.StateOff
		status = append(status, StatusHVOff)

	default:
		status = append(status, StatusNotWorking)
		state = model.StateFault
		for _, s := range ccg {
			if isRecognizedFold(s) {
				state = model.StateAlarm
				break
			}
		}
	}

	status = append(status, summary(in.States, in.Values))
	return Result{State: state, Status: strings.Join(status, "\n")}
}

// summary renders one entry per pressure channel: the value when the channel reads OK, its state otherwise
func summary(states [5]string, values [5]float64) string {
	parts := make([]string, len(states))
	for i, s := range states {
		if strings.Contains(s, "OK") {
			parts[i] = fmt.Sprintf("%g", values[i])
		} else {
			parts[i] = s
		}
	}
	return strings.Join(parts, ",")
}

func anyContains(states []string, needles ...string) bool {
	for _, s := range states {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
	}
	return false
}

func allContain(states []string, needle string) bool {
	for _, s := range states {
		if !strings.Contains(s, needle) {
			return false
		}
	}
	return true
}

func anyMatch(p *regexp.Regexp, states []string) bool {
	for _, s := range states {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
