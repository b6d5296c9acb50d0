// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Device   DeviceConfig   `mapstructure:"device"`
	App      AppConfig      `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DeviceConfig describes the gauge controller and how to reach it
type DeviceConfig struct {
	Name          string        `mapstructure:"name"`
	Model         string        `mapstructure:"model"`
	SerialLine    string        `mapstructure:"serial_line"`
	Protocol      string        `mapstructure:"protocol"`
	Refresh       time.Duration `mapstructure:"refresh"`
	DefaultStatus []string      `mapstructure:"default_status"`
	StartSequence []string      `mapstructure:"start_sequence"`
	Description   string        `mapstructure:"description"`
	PollWait      time.Duration `mapstructure:"poll_wait"`
	CommandWait   time.Duration `mapstructure:"command_wait"`
	PendingWait   time.Duration `mapstructure:"pending_wait"`
	ReplyTimeout  time.Duration `mapstructure:"reply_timeout"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	Terminator    string        `mapstructure:"terminator"`
	Serial        SerialConfig  `mapstructure:"serial"`
	TCP           TCPConfig     `mapstructure:"tcp"`
}

// SerialConfig represents serial port configuration
type SerialConfig struct {
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TCPConfig represents terminal server connection configuration
type TCPConfig struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Load reads configuration from path (or the default search paths when empty) and the environment
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gauge-service")
	}

	v.SetEnvPrefix("GAUGE_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Device.DefaultStatus = splitList(config.Device.DefaultStatus)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// splitList accepts both a YAML list and a single comma separated string
func splitList(entries []string) []string {
	if len(entries) != 1 || !strings.Contains(entries[0], ",") {
		return entries
	}
	parts := strings.Split(entries[0], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Device defaults
	v.SetDefault("device.name", "mks937a")
	v.SetDefault("device.model", "937A")
	v.SetDefault("device.protocol", "232")
	v.SetDefault("device.refresh", "3s")
	v.SetDefault("device.poll_wait", "10ms")
	v.SetDefault("device.command_wait", "100ms")
	v.SetDefault("device.pending_wait", "510ms")
	v.SetDefault("device.reply_timeout", "1s")
	v.SetDefault("device.tick_interval", "1s")
	v.SetDefault("device.terminator", "\r")

	v.SetDefault("device.serial.baud_rate", 9600)
	v.SetDefault("device.serial.data_bits", 8)
	v.SetDefault("device.serial.stop_bits", 1)
	v.SetDefault("device.serial.parity", "none")
	v.SetDefault("device.serial.timeout", "100ms")

	v.SetDefault("device.tcp.connect_timeout", "5s")
	v.SetDefault("device.tcp.read_timeout", "100ms")
	v.SetDefault("device.tcp.write_timeout", "1s")
	v.SetDefault("device.tcp.keep_alive", true)

	// App defaults
	v.SetDefault("app.name", "gauge-service")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	validEnvs := []string{"development", "staging", "production", "test"}
	if !oneOf(config.App.Environment, validEnvs) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !oneOf(config.Logging.Level, validLevels) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	d := config.Device
	validProtocols := []string{"232", "422", "485"}
	if !oneOf(d.Protocol, validProtocols) {
		return fmt.Errorf("device.protocol must be one of: %v", validProtocols)
	}
	if d.Refresh <= 0 {
		return fmt.Errorf("device.refresh must be positive")
	}
	if d.TickInterval <= 0 {
		return fmt.Errorf("device.tick_interval must be positive")
	}
	if d.PollWait < 0 || d.CommandWait < 0 || d.PendingWait < 0 || d.ReplyTimeout < 0 {
		return fmt.Errorf("device wait times must not be negative")
	}
	if d.Terminator == "" {
		return fmt.Errorf("device.terminator is required")
	}
	for i, s := range d.DefaultStatus {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "on" && s != "off" && s != "" {
			return fmt.Errorf("device.default_status[%d] must be on or off, got %q", i, d.DefaultStatus[i])
		}
	}
	if len(d.DefaultStatus) > 5 {
		return fmt.Errorf("device.default_status has %d entries, the controller has 5 channels", len(d.DefaultStatus))
	}
	if !oneOf(d.Serial.Parity, []string{"none", "odd", "even"}) {
		return fmt.Errorf("device.serial.parity must be none, odd or even")
	}
	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
