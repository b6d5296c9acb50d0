// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const tcpScheme = "tcp://"

// ParseTarget reports the transport a serial line name refers to.
// "tcp://host:port" selects a terminal server, anything else is a local device path.
func ParseTarget(target string) (ConnectionType, string, int, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", 0, fmt.Errorf("serial line is not configured")
	}
	if !strings.HasPrefix(target, tcpScheme) {
		return ConnectionTypeSerial, target, 0, nil
	}

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(target, tcpScheme))
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid tcp serial line %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", "", 0, fmt.Errorf("invalid tcp port in %q", target)
	}
	return ConnectionTypeTCP, host, port, nil
}

// CreateProtocol creates a protocol for the serial line name using the given defaults
func CreateProtocol(target string, serialDefaults SerialConfig, tcpDefaults TCPConfig, logger *zap.Logger) (DeviceProtocol, error) {
	kind, host, port, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	switch kind {
	case ConnectionTypeTCP:
		cfg := tcpDefaults
		cfg.Host = host
		cfg.Port = port
		logger.Info("Creating TCP protocol",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
		)
		return NewTCPConnection(&cfg, logger), nil
	default:
		cfg := serialDefaults
		cfg.Port = host
		if cfg.BaudRate == 0 {
			cfg.BaudRate = 9600
		}
		if cfg.DataBits == 0 {
			cfg.DataBits = 8
		}
		if cfg.StopBits == 0 {
			cfg.StopBits = 1
		}
		logger.Info("Creating serial protocol",
			zap.String("port", cfg.Port),
			zap.Int("baud_rate", cfg.BaudRate),
		)
		return NewSerialConnection(&cfg, logger), nil
	}
}
