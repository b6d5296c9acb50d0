// internal/protocol/line.go
package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoReply is returned when nothing arrives before the reply timeout
var ErrNoReply = errors.New("no reply before timeout")

const (
	DefaultTerminator   = "\r"
	DefaultReplyTimeout = time.Second
	readChunk           = 64
)

// LineOptions configures a LineClient
type LineOptions struct {
	Terminator   string
	ReplyTimeout time.Duration
}

// inputResetter is implemented by transports that can drop stale input
type inputResetter interface {
	ResetInputBuffer() error
}

// LineClient runs terminated request/reply exchanges over a DeviceProtocol.
// Exchanges are serialized, so at most one command is on the wire at a time.
type LineClient struct {
	conn         DeviceProtocol
	terminator   []byte
	replyTimeout time.Duration
	logger       *zap.Logger
	mu           sync.Mutex
}

// NewLineClient creates a new line client
func NewLineClient(conn DeviceProtocol, opts LineOptions, logger *zap.Logger) *LineClient {
	if opts.Terminator == "" {
		opts.Terminator = DefaultTerminator
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = DefaultReplyTimeout
	}
	return &LineClient{
		conn:         conn,
		terminator:   []byte(opts.Terminator),
		replyTimeout: opts.ReplyTimeout,
		logger:       logger.With(zap.String("component", "line")),
	}
}

// Exchange writes command plus terminator, waits settle, and reads one reply line.
// The reply is returned without the terminator and surrounding whitespace.
func (c *LineClient) Exchange(ctx context.Context, command string, settle time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conn.IsOpen() {
		if err := c.conn.Open(ctx); err != nil {
			return "", fmt.Errorf("open line: %w", err)
		}
	}

	if r, ok := c.conn.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			c.logger.Debug("Failed to reset input buffer", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, settle+c.replyTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, append([]byte(command), c.terminator...)); err != nil {
		c.drop()
		return "", fmt.Errorf("write %q: %w", command, err)
	}

	if settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	var buf bytes.Buffer
	for {
		chunk, err := c.conn.Read(ctx, readChunk)
		buf.Write(chunk)
		if idx := bytes.Index(buf.Bytes(), c.terminator); idx >= 0 {
			return strings.TrimSpace(string(buf.Bytes()[:idx])), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.partial(&buf, command)
			}
			c.drop()
			return "", fmt.Errorf("read %q: %w", command, err)
		}
		if ctx.Err() != nil {
			return c.partial(&buf, command)
		}
	}
}

// partial returns an unterminated reply, or ErrNoReply when nothing arrived
func (c *LineClient) partial(buf *bytes.Buffer, command string) (string, error) {
	if reply := strings.TrimSpace(buf.String()); reply != "" {
		return reply, nil
	}
	return "", fmt.Errorf("%q: %w", command, ErrNoReply)
}

// drop closes the transport so the next exchange reopens it
func (c *LineClient) drop() {
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("Failed to close line after error", zap.Error(err))
	}
}

// Close closes the underlying transport
func (c *LineClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Stats returns transport statistics
func (c *LineClient) Stats() ProtocolStats {
	return c.conn.Stats()
}
