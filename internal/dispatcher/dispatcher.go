// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/model"
)

const (
	DefaultCommandWait = 100 * time.Millisecond
	DefaultPendingWait = 510 * time.Millisecond
)

// Sender is the blocking serial request/reply primitive
type Sender interface {
	Exchange(ctx context.Context, command string, wait time.Duration) (string, error)
}

// Pauser grants exclusive use of the line while paused
type Pauser interface {
	Pause()
	Resume()
}

// Options configures a Dispatcher
type Options struct {
	Prefix string
	// CommandWait separates consecutive commands of one Send
	CommandWait time.Duration
	// ReplyWait is the settle time passed to the sender
	ReplyWait   time.Duration
	PendingWait time.Duration
}

// Dispatcher sends foreground commands with the poll loop paused
type Dispatcher struct {
	sender Sender
	pauser Pauser
	opts   Options
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(sender Sender, pauser Pauser, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.CommandWait <= 0 {
		opts.CommandWait = DefaultCommandWait
	}
	if opts.PendingWait <= 0 {
		opts.PendingWait = DefaultPendingWait
	}
	return &Dispatcher{
		sender: sender,
		pauser: pauser,
		opts:   opts,
		logger: logger.With(zap.String("component", "dispatcher")),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Prefix returns the addressing prefix put in front of every command
func (d *Dispatcher) Prefix() string {
	return d.opts.Prefix
}

func (d *Dispatcher) address(command string) string {
	if d.opts.Prefix == "" || strings.HasPrefix(command, d.opts.Prefix) {
		return command
	}
	return d.opts.Prefix + command
}

// Send writes each command in order and joins the replies with separator.
// A transport failure aborts the remaining commands.
func (d *Dispatcher) Send(ctx context.Context, commands []string, separator string) (string, error) {
	d.pauser.Pause()
	defer d.pauser.Resume()

	replies := make([]string, 0, len(commands))
	for i, cmd := range commands {
		if i > 0 {
			if err := d.sleep(ctx, d.opts.CommandWait); err != nil {
				return "", model.NewCommandError(model.ErrorKindTransportError, cmd, "", err)
			}
		}

		wire := d.address(cmd)
		reply, err := d.sender.Exchange(ctx, wire, d.opts.ReplyWait)
		if err != nil {
			d.logger.Error("Command failed", zap.String("command", wire), zap.Error(err))
			return "", model.NewCommandError(model.ErrorKindTransportError, wire, "", err)
		}
		d.logger.Debug("Command sent", zap.String("command", wire), zap.String("reply", reply))
		replies = append(replies, reply)
	}
	return strings.TrimSpace(strings.Join(replies, separator)), nil
}

// HVOn enables the high voltage of channel n, retrying once on AGAIN and once on PENDING
func (d *Dispatcher) HVOn(ctx context.Context, n int) (string, error) {
	d.pauser.Pause()
	defer d.pauser.Resume()

	cmd := fmt.Sprintf("ECC%d", n)
	reply, err := d.Send(ctx, []string{cmd}, "")
	if err != nil {
		return "", err
	}

	if strings.Contains(reply, "AGAIN") {
		d.logger.Info("Controller asked to repeat command", zap.String("command", cmd))
		if reply, err = d.Send(ctx, []string{cmd}, ""); err != nil {
			return "", err
		}
	}

	if strings.Contains(reply, "PENDING") {
		d.logger.Info("Command pending, retrying", zap.String("command", cmd), zap.Duration("wait", d.opts.PendingWait))
		if err := d.sleep(ctx, d.opts.PendingWait); err != nil {
			return "", model.NewCommandError(model.ErrorKindTransportError, cmd, reply, err)
		}
		if reply, err = d.Send(ctx, []string{cmd}, ""); err != nil {
			return "", err
		}
	}

	if strings.Contains(reply, "AGAIN") || strings.Contains(reply, "PENDING") {
		return "", model.NewCommandError(model.ErrorKindCommandRejected, cmd, reply, nil)
	}
	return reply, nil
}

// HVOff disables the high voltage of channel n
func (d *Dispatcher) HVOff(ctx context.Context, n int) (string, error) {
	return d.Send(ctx, []string{fmt.Sprintf("XCC%d", n)}, "")
}

var channelAliases = map[string]int{
	"CC1": 1, "C1": 1, "CCG1": 1, "P1": 1,
	"CC2": 2, "C2": 2, "CCG2": 2, "P2": 2,
	"CC3": 4, "P4": 4,
	"P3": 3, "P5": 5,
}

// ResolveChannels maps a channel alias to controller channel numbers.
// ALL expands to every cold-cathode channel installed according to modules.
func ResolveChannels(alias, modules string) ([]int, error) {
	alias = strings.ToUpper(strings.TrimSpace(alias))

	if alias == "ALL" {
		channels := []int{1}
		if model.SlotCode(modules, 1) == model.ColdCathodeCode {
			channels = append(channels, 2)
		}
		if model.SlotCode(modules, 2) == model.ColdCathodeCode {
			channels = append(channels, 4)
		}
		return channels, nil
	}

	if n, err := strconv.Atoi(alias); err == nil {
		if n < 1 || n > 5 {
			return nil, fmt.Errorf("%w: channel number %d out of range 1-5", model.ErrInvalidArgument, n)
		}
		return []int{n}, nil
	}

	if n, ok := channelAliases[alias]; ok {
		return []int{n}, nil
	}
	return nil, fmt.Errorf("%w: unknown channel %q", model.ErrInvalidArgument, alias)
}

// CCOn switches on every channel the alias resolves to and joins replies with ","
func (d *Dispatcher) CCOn(ctx context.Context, alias, modules string) (string, error) {
	return d.each(ctx, alias, modules, d.HVOn)
}

// CCOff switches off every channel the alias resolves to and joins replies with ","
func (d *Dispatcher) CCOff(ctx context.Context, alias, modules string) (string, error) {
	return d.each(ctx, alias, modules, d.HVOff)
}

func (d *Dispatcher) each(ctx context.Context, alias, modules string, fn func(context.Context, int) (string, error)) (string, error) {
	channels, err := ResolveChannels(alias, modules)
	if err != nil {
		return "", err
	}

	replies := make([]string, 0, len(channels))
	for _, n := range channels {
		reply, err := fn(ctx, n)
		if err != nil {
			return strings.Join(replies, ","), err
		}
		replies = append(replies, reply)
	}
	return strings.Join(replies, ","), nil
}
