// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPConnection implements DeviceProtocol for a serial line behind a terminal server
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  ProtocolStats
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Address returns host:port
func (tc *TCPConnection) Address() string {
	return net.JoinHostPort(tc.config.Host, fmt.Sprintf("%d", tc.config.Port))
}

// Open opens the TCP connection
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	tc.logger.Info("Opening TCP connection")

	dialer := &net.Dialer{Timeout: tc.config.Timeout}
	if tc.config.KeepAlive {
		dialer.KeepAlive = 30 * time.Second
	}

	conn, err := dialer.DialContext(ctx, "tcp", tc.Address())
	if err != nil {
		tc.logger.Error("Failed to open TCP connection", zap.Error(err))
		return fmt.Errorf("failed to connect to %s: %w", tc.Address(), err)
	}

	tc.conn = conn
	tc.isOpen = true
	tc.stats.IsConnected = true
	tc.stats.LastActivity = time.Now()

	tc.logger.Info("TCP connection opened")
	return nil
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()
	tc.conn = nil
	tc.isOpen = false
	tc.stats.IsConnected = false

	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}
	tc.logger.Info("TCP connection closed")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return fmt.Errorf("TCP connection not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tc.conn.SetWriteDeadline(tc.deadline(ctx, tc.config.WriteTimeout))

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.ErrorCount++
		tc.logger.Error("TCP write failed", zap.Error(err))
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	if n != len(data) {
		tc.stats.ErrorCount++
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	tc.stats.BytesWritten += int64(n)
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()
	tc.stats.updateAverageLatency(time.Since(startTime))
	return nil
}

// Read returns the bytes that arrive within one read timeout. A timeout yields no data and no error.
func (tc *TCPConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, fmt.Errorf("TCP connection not open")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tc.conn.SetReadDeadline(tc.deadline(ctx, tc.config.ReadTimeout))

	buffer := make([]byte, maxBytes)
	n, err := tc.conn.Read(buffer)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return buffer[:n], nil
		}
		tc.stats.ErrorCount++
		return nil, fmt.Errorf("failed to read from TCP connection: %w", err)
	}

	tc.stats.BytesRead += int64(n)
	tc.stats.OperationCount++
	tc.stats.LastActivity = time.Now()
	return buffer[:n], nil
}

// deadline picks the earlier of the context deadline and now+timeout
func (tc *TCPConnection) deadline(ctx context.Context, timeout time.Duration) time.Time {
	var d time.Time
	if timeout > 0 {
		d = time.Now().Add(timeout)
	}
	if cd, ok := ctx.Deadline(); ok && (d.IsZero() || cd.Before(d)) {
		d = cd
	}
	return d
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() ConnectionType {
	return ConnectionTypeTCP
}

// Stats returns a copy of the connection statistics
func (tc *TCPConnection) Stats() ProtocolStats {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.stats
}
