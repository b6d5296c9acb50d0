// internal/driver/mks937/commands.go
package mks937

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gauge-service/internal/model"
	"gauge-service/pkg/driver"
)

type commandFunc func(c *Controller, ctx context.Context, argument string) (string, error)

type command struct {
	info     driver.CommandInfo
	needsArg bool
	run      commandFunc
}

var commandTable = []command{
	{
		info:     driver.CommandInfo{Name: "SendCommand", Argument: "command[,command...]", Description: "Sends raw commands to the controller and joins the replies"},
		needsArg: true,
		run: func(c *Controller, ctx context.Context, arg string) (string, error) {
			return c.dispatcher.Send(ctx, splitCommands(arg), "\n")
		},
	},
	{
		info:     driver.CommandInfo{Name: "getChannelState", Argument: "channel", Description: "Returns the raw state of a pressure channel"},
		needsArg: true,
		run: func(c *Controller, _ context.Context, arg string) (string, error) {
			return c.channelStateLocked(arg), nil
		},
	},
	{
		info: driver.CommandInfo{Name: "On", Description: "Switches on the cold cathodes expected on"},
		run:  (*Controller).onLocked,
	},
	{
		info: driver.CommandInfo{Name: "Off", Description: "Switches off every cold cathode"},
		run: func(c *Controller, ctx context.Context, _ string) (string, error) {
			return c.dispatcher.CCOff(ctx, "ALL", c.raw("GAUGES"))
		},
	},
	{
		info:     driver.CommandInfo{Name: "CC_On", Argument: "channel", Description: "Switches on the high voltage of a cold cathode"},
		needsArg: true,
		run: func(c *Controller, ctx context.Context, arg string) (string, error) {
			return c.dispatcher.CCOn(ctx, arg, c.raw("GAUGES"))
		},
	},
	{
		info:     driver.CommandInfo{Name: "CC_Off", Argument: "channel", Description: "Switches off the high voltage of a cold cathode"},
		needsArg: true,
		run: func(c *Controller, ctx context.Context, arg string) (string, error) {
			return c.dispatcher.CCOff(ctx, arg, c.raw("GAUGES"))
		},
	},
	{
		info: driver.CommandInfo{Name: "WarmUp", Description: "Runs the configured start sequence"},
		run: func(c *Controller, ctx context.Context, _ string) (string, error) {
			return c.warmUpLocked(ctx)
		},
	},
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commandTable {
		if cmd.info.Name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// Commands lists the commands accepted by DispatchCommand
func (c *Controller) Commands() []driver.CommandInfo {
	out := make([]driver.CommandInfo, len(commandTable))
	for i, cmd := range commandTable {
		out[i] = cmd.info
	}
	return out
}

// DispatchCommand runs a named command
func (c *Controller) DispatchCommand(ctx context.Context, name, argument string) (string, error) {
	cmd, ok := lookupCommand(name)
	if !ok {
		return "", fmt.Errorf("unknown command %q: %w", name, model.ErrInvalidArgument)
	}
	argument = strings.TrimSpace(argument)
	if cmd.needsArg && argument == "" {
		return "", fmt.Errorf("command %s requires an argument: %w", name, model.ErrInvalidArgument)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	operationID := uuid.New()
	start := time.Now()
	reply, err := cmd.run(c, ctx, argument)
	duration := time.Since(start)

	c.logger.LogCommand(name, argument, operationID.String(), duration, reply, err)
	if r := c.opts.Recorder; r != nil {
		r.ObserveCommand(name, duration, err)
	}

	if c.events != nil {
		data := model.CommandEventData{
			OperationID: operationID,
			Command:     name,
			Argument:    argument,
			Reply:       reply,
			DurationMs:  duration.Milliseconds(),
		}
		if err != nil {
			data.Error = err.Error()
			c.events.OnCommandFailed(c.opts.Name, data)
		} else {
			c.events.OnCommandCompleted(c.opts.Name, data)
		}
	}
	return reply, err
}

// channelStateLocked returns the raw state of a pressure channel, or UNKNOWN
func (c *Controller) channelStateLocked(name string) string {
	ch, err := model.ParseChannel(name)
	if err != nil || !ch.IsPressure() {
		return "UNKNOWN"
	}
	return c.table.States()[ch.Index()]
}

// onLocked switches on every channel of the expected status marked on
func (c *Controller) onLocked(ctx context.Context, _ string) (string, error) {
	modules := c.raw("GAUGES")

	expected := c.opts.DefaultStatus
	if len(expected) == 0 {
		expected = []string{"On"}
		if model.SlotCode(modules, 1) == model.ColdCathodeCode {
			expected = []string{"On", "On"}
		}
	}

	var replies []string
	for i, s := range expected {
		if !strings.EqualFold(strings.TrimSpace(s), "on") {
			continue
		}
		reply, err := c.dispatcher.CCOn(ctx, fmt.Sprintf("P%d", i+1), modules)
		if err != nil {
			return strings.Join(replies, ","), err
		}
		replies = append(replies, reply)
	}
	return strings.Join(replies, ","), nil
}

// warmUpLocked runs each start sequence step whose guard holds against the channel states
func (c *Controller) warmUpLocked(ctx context.Context) (string, error) {
	if c.sequence.Empty() {
		return "", nil
	}

	states := map[string]string{}
	for i, s := range c.table.States() {
		states[model.PressureChannels[i].String()] = s
	}
	modules := c.raw("GAUGES")

	c.logger.Info("Executing start sequence", zap.String("sequence", c.sequence.String()))

	var errs []error
	for _, step := range c.sequence.Steps() {
		ready, err := step.Ready(states)
		if err != nil {
			c.logger.Warn("Start sequence condition failed", zap.String("step", step.Text), zap.Error(err))
			continue
		}
		if !ready {
			c.logger.Debug("Start sequence step skipped", zap.String("step", step.Text))
			continue
		}

		var reply string
		switch step.Action {
		case "CC_On":
			reply, err = c.dispatcher.CCOn(ctx, step.Target, modules)
		case "CC_Off":
			reply, err = c.dispatcher.CCOff(ctx, step.Target, modules)
		}
		if err != nil {
			c.logger.Error("Start sequence step failed", zap.String("step", step.Text), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", step.Text, err))
			continue
		}
		c.logger.Info("Start sequence step executed", zap.String("step", step.Text), zap.String("reply", reply))
	}

	sequence := c.sequence.String()
	if c.events != nil {
		c.events.OnWarmUp(c.opts.Name, sequence)
	}
	return sequence, errors.Join(errs...)
}

func splitCommands(argument string) []string {
	var out []string
	for _, part := range strings.Split(argument, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
