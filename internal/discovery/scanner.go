// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"gauge-service/internal/model"
	"gauge-service/internal/poller"
	"gauge-service/internal/protocol"
)

// Line is one opened serial line that can be probed
type Line interface {
	Exchange(ctx context.Context, command string, settle time.Duration) (string, error)
	Close() error
}

// Config for the serial scanner
type Config struct {
	Protocol     string        `json:"protocol"`
	PortPatterns []string      `json:"port_patterns"`
	Settle       time.Duration `json:"settle"`
	PortTimeout  time.Duration `json:"port_timeout"`

	// ListPorts and Dial default to the host serial ports
	ListPorts func() ([]string, error)        `json:"-"`
	Dial      func(port string) (Line, error) `json:"-"`
}

// DiscoveredGauge is a serial port that answered like a gauge controller
type DiscoveredGauge struct {
	Port             string  `json:"port"`
	FirmwareVersion  string  `json:"firmware_version"`
	ModulesInstalled string  `json:"modules_installed,omitempty"`
	Confidence       float64 `json:"confidence"` // 0.0-1.0
}

// Scanner probes serial ports for MKS 937A controllers
type Scanner struct {
	config *Config
	prefix string
	logger *zap.Logger
}

// NewScanner creates a new serial scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config == nil {
		config = &Config{}
	}
	if len(config.PortPatterns) == 0 {
		config.PortPatterns = defaultPortPatterns()
	}
	if config.Settle <= 0 {
		config.Settle = 100 * time.Millisecond
	}
	if config.PortTimeout <= 0 {
		config.PortTimeout = 3 * time.Second
	}
	if config.ListPorts == nil {
		config.ListPorts = serial.GetPortsList
	}
	if config.Dial == nil {
		config.Dial = func(port string) (Line, error) {
			conn := protocol.NewSerialConnection(&protocol.SerialConfig{
				Port:     port,
				BaudRate: 9600,
				DataBits: 8,
				StopBits: 1,
				Parity:   "none",
				Timeout:  100 * time.Millisecond,
			}, logger)
			return protocol.NewLineClient(conn, protocol.LineOptions{}, logger), nil
		}
	}

	return &Scanner{
		config: config,
		prefix: poller.Prefix(config.Protocol),
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// Scan probes every matching port and returns the ones that answered
func (s *Scanner) Scan(ctx context.Context) ([]*DiscoveredGauge, error) {
	ports, err := s.config.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports = s.filterPorts(ports)
	s.logger.Info("Starting serial port scan", zap.Strings("ports", ports))

	var discovered []*DiscoveredGauge
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return discovered, ctx.Err()
		default:
		}

		if gauge := s.probe(ctx, port); gauge != nil {
			discovered = append(discovered, gauge)
		}
	}

	s.logger.Info("Serial scan completed", zap.Int("gauges_found", len(discovered)))
	return discovered, nil
}

func (s *Scanner) probe(ctx context.Context, port string) *DiscoveredGauge {
	ctx, cancel := context.WithTimeout(ctx, s.config.PortTimeout)
	defer cancel()

	line, err := s.config.Dial(port)
	if err != nil {
		s.logger.Debug("Cannot open port", zap.String("port", port), zap.Error(err))
		return nil
	}
	defer line.Close()

	version, err := line.Exchange(ctx, s.prefix+"VER", s.config.Settle)
	if err != nil || version == "" {
		s.logger.Debug("No answer to VER", zap.String("port", port), zap.Error(err))
		return nil
	}

	gauge := &DiscoveredGauge{Port: port, FirmwareVersion: version, Confidence: 0.5}

	modules, err := line.Exchange(ctx, s.prefix+"GAUGES", s.config.Settle)
	if err == nil {
		if decoded, derr := model.DecodeModules(modules); derr == nil {
			gauge.ModulesInstalled = decoded.String()
			gauge.Confidence = 1.0
		}
	}

	s.logger.Info("Gauge controller found",
		zap.String("port", port),
		zap.String("firmware", version),
		zap.Float64("confidence", gauge.Confidence),
	)
	return gauge
}

func (s *Scanner) filterPorts(ports []string) []string {
	var filtered []string
	for _, port := range ports {
		for _, pattern := range s.config.PortPatterns {
			if ok, _ := filepath.Match(pattern, port); ok || strings.EqualFold(pattern, port) {
				filtered = append(filtered, port)
				break
			}
		}
	}
	return filtered
}

func defaultPortPatterns() []string {
	return []string{"/dev/ttyS*", "/dev/ttyUSB*", "/dev/ttyACM*", "/dev/tty.usb*", "COM*"}
}
