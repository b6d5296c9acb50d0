// internal/driver/registry_init.go
package driver

import (
	"go.uber.org/zap"

	"gauge-service/internal/config"
	"gauge-service/internal/driver/mks937"
	"gauge-service/internal/metrics"
	"gauge-service/pkg/driver"
)

// RegisterDefaultDrivers registers all default gauge drivers
func RegisterDefaultDrivers(registry *Registry, logger *zap.Logger) {
	factory := func(cfg *config.DeviceConfig, collector *metrics.Collector, logger *zap.Logger) (driver.GaugeDriver, error) {
		return mks937.NewFromConfig(cfg, collector, logger)
	}

	for _, model := range []string{"937A", "MKS937A"} {
		registry.Register(model, factory)
	}

	logger.Info("MKS gauge controller drivers registered", zap.Int("models", 2))
}
