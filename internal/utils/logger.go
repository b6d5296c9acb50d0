// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"gauge-service/internal/config"
)

const defaultLogFile = "./logs/gauge-service.log"

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	sink, err := writeSyncer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	core := zapcore.NewCore(encoder(cfg.Format), sink, level)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// encoder returns a JSON encoder unless the console format is requested
func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder

	if format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime)
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// writeSyncer returns stdout, stderr or a rotated log file
func writeSyncer(cfg *config.LoggingConfig) (zapcore.WriteSyncer, error) {
	switch cfg.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	}

	filename := cfg.Output
	if filename == "" {
		filename = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize, // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	}), nil
}

// DeviceLogger wraps zap.Logger with gauge controller fields
type DeviceLogger struct {
	*zap.Logger
	device     string
	serialLine string
}

// NewDeviceLogger creates a device-specific logger
func NewDeviceLogger(baseLogger *zap.Logger, device, serialLine string) *DeviceLogger {
	logger := baseLogger.With(
		zap.String("device", device),
		zap.String("serial_line", serialLine),
		zap.String("component", "device"),
	)

	return &DeviceLogger{
		Logger:     logger,
		device:     device,
		serialLine: serialLine,
	}
}

// LogCommand logs a foreground command with its outcome
func (dl *DeviceLogger) LogCommand(command, argument, operationID string, duration time.Duration, reply string, err error) {
	fields := []zap.Field{
		zap.String("command", command),
		zap.String("argument", argument),
		zap.String("operation_id", operationID),
		zap.Duration("duration", duration),
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		dl.Error("Command failed", fields...)
		return
	}
	dl.Info("Command completed", append(fields, zap.String("reply", reply))...)
}

// LogStateChange logs a visible state transition
func (dl *DeviceLogger) LogStateChange(from, to, status string) {
	dl.Info("State changed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("status", status),
	)
}

// LogAnomaly logs a reply the parser could not accept
func (dl *DeviceLogger) LogAnomaly(channel, raw string, err error) {
	dl.Warn("Reading anomaly",
		zap.String("channel", channel),
		zap.String("raw", raw),
		zap.Error(err),
	)
}

// LogPoll logs the communication summary of the poll loop
func (dl *DeviceLogger) LogPoll(registers, errors int, lastSuccess time.Time) {
	level := zapcore.DebugLevel
	if errors > 0 {
		level = zapcore.WarnLevel
	}
	if ce := dl.Check(level, "Poll health"); ce != nil {
		ce.Write(
			zap.Int("registers", registers),
			zap.Int("errors", errors),
			zap.Time("last_success", lastSuccess),
		)
	}
}

// ServiceLogger provides service-level logging functionality
type ServiceLogger struct {
	*zap.Logger
	serviceName string
}

// NewServiceLogger creates a service-specific logger
func NewServiceLogger(baseLogger *zap.Logger, serviceName string) *ServiceLogger {
	logger := baseLogger.With(
		zap.String("service", serviceName),
		zap.String("component", "service"),
	)

	return &ServiceLogger{
		Logger:      logger,
		serviceName: serviceName,
	}
}

// LogServiceStart logs service startup
func (sl *ServiceLogger) LogServiceStart(version string, config interface{}) {
	sl.Info("Service starting",
		zap.String("version", version),
		zap.Any("config", config),
	)
}

// LogServiceStop logs service shutdown
func (sl *ServiceLogger) LogServiceStop(reason string) {
	sl.Info("Service stopping",
		zap.String("reason", reason),
	)
}

// APIRequest describes one served HTTP request
type APIRequest struct {
	Method    string
	Route     string
	Path      string
	ClientIP  string
	RequestID string
	Target    string
	Status    int
	Size      int
	Duration  time.Duration
}

// LogAPIRequest logs HTTP API requests. Metrics scrapes are logged at debug level.
func (sl *ServiceLogger) LogAPIRequest(req APIRequest) {
	level := zapcore.InfoLevel
	switch {
	case req.Status >= 500:
		level = zapcore.ErrorLevel
	case req.Status >= 400:
		level = zapcore.WarnLevel
	case req.Route == "/metrics":
		level = zapcore.DebugLevel
	}

	ce := sl.Check(level, "API request")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("route", req.Route),
		zap.String("path", req.Path),
		zap.String("client_ip", req.ClientIP),
		zap.String("request_id", req.RequestID),
		zap.Int("status_code", req.Status),
		zap.Int("size", req.Size),
		zap.Duration("duration", req.Duration),
	}
	if req.Target != "" {
		fields = append(fields, zap.String("target", req.Target))
	}
	ce.Write(fields...)
}

// LogPanic logs a recovered handler panic with its stack
func (sl *ServiceLogger) LogPanic(recovered interface{}, method, path, requestID string) {
	sl.Error("Panic recovered",
		zap.Any("panic", recovered),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Stack("stacktrace"),
	)
}

// LoggerWithRequestID adds request ID to logger
func LoggerWithRequestID(logger *zap.Logger, requestID string) *zap.Logger {
	return logger.With(zap.String("request_id", requestID))
}

// CloseLogger flushes buffered entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
