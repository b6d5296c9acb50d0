// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/metrics"
	"gauge-service/pkg/driver"
)

// DriverFactory creates a gauge driver from the device configuration
type DriverFactory func(cfg *config.DeviceConfig, collector *metrics.Collector, logger *zap.Logger) (driver.GaugeDriver, error)

// Registry maps controller models to driver factories
type Registry struct {
	drivers map[string]DriverFactory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]DriverFactory),
		logger:  logger,
	}
}

func normalize(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}

// Register registers a driver factory for a model
func (r *Registry) Register(model string, factory DriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[normalize(model)] = factory
	r.logger.Debug("Driver registered", zap.String("model", model))
}

// CreateDriver creates the driver for the configured model
func (r *Registry) CreateDriver(cfg *config.DeviceConfig, collector *metrics.Collector) (driver.GaugeDriver, error) {
	r.mu.RLock()
	factory, ok := r.drivers[normalize(cfg.Model)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no driver found for model %q, supported: %s",
			cfg.Model, strings.Join(r.ListDrivers(), ", "))
	}

	r.logger.Info("Creating driver",
		zap.String("model", cfg.Model),
		zap.String("device", cfg.Name),
	)
	return factory(cfg, collector, r.logger)
}

// ListDrivers returns the registered models, sorted
func (r *Registry) ListDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.drivers))
	for model := range r.drivers {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// IsSupported checks if a model has a driver
func (r *Registry) IsSupported(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[normalize(model)]
	return ok
}
