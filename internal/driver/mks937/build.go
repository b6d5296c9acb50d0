// internal/driver/mks937/build.go
package mks937

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/dispatcher"
	"gauge-service/internal/metrics"
	"gauge-service/internal/poller"
	"gauge-service/internal/protocol"
)

// ErrNoSerialLine is returned by commands when no serial line is configured
var ErrNoSerialLine = errors.New("serial line is not configured")

type offline struct{}

func (offline) Exchange(context.Context, string, time.Duration) (string, error) {
	return "", ErrNoSerialLine
}

// OpenLine creates the line client for the configured serial line
func OpenLine(cfg *config.DeviceConfig, logger *zap.Logger) (*protocol.LineClient, error) {
	conn, err := protocol.CreateProtocol(cfg.SerialLine,
		protocol.SerialConfig{
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
			Timeout:  cfg.Serial.Timeout,
		},
		protocol.TCPConfig{
			KeepAlive:    cfg.TCP.KeepAlive,
			Timeout:      cfg.TCP.ConnectTimeout,
			ReadTimeout:  cfg.TCP.ReadTimeout,
			WriteTimeout: cfg.TCP.WriteTimeout,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return protocol.NewLineClient(conn, protocol.LineOptions{
		Terminator:   cfg.Terminator,
		ReplyTimeout: cfg.ReplyTimeout,
	}, logger), nil
}

// NewFromConfig assembles line, poller, dispatcher and controller for one device.
// The collector may be nil.
func NewFromConfig(cfg *config.DeviceConfig, collector *metrics.Collector, logger *zap.Logger) (*Controller, error) {
	var sender poller.Sender = offline{}
	var line *protocol.LineClient
	if cfg.SerialLine != "" {
		var err error
		if line, err = OpenLine(cfg, logger); err != nil {
			return nil, err
		}
		sender = line
	}

	pollOpts := poller.Options{Wait: cfg.PollWait, Refresh: cfg.Refresh}
	if collector != nil {
		pollOpts.Observer = collector
	}
	cache := poller.NewManager(sender, pollOpts, logger)

	prefix := poller.Prefix(cfg.Protocol)
	cache.ScheduleAll(poller.DefaultRegisters(prefix, cache.Refresh()))

	disp := dispatcher.NewDispatcher(sender, cache, dispatcher.Options{
		Prefix:      prefix,
		CommandWait: cfg.CommandWait,
		ReplyWait:   cfg.PollWait,
		PendingWait: cfg.PendingWait,
	}, logger)

	opts := Options{
		Name:          cfg.Name,
		SerialLine:    cfg.SerialLine,
		Protocol:      cfg.Protocol,
		DefaultStatus: cfg.DefaultStatus,
		StartSequence: cfg.StartSequence,
		Description:   cfg.Description,
	}
	if collector != nil {
		opts.Recorder = collector
	}

	ctrl, err := NewController(cache, disp, opts, logger)
	if err != nil {
		if line != nil {
			line.Close()
		}
		return nil, err
	}
	if line != nil {
		ctrl.line = line
	}
	return ctrl, nil
}
