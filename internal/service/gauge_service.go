// internal/service/gauge_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

// GaugeService drives the controller state machine on a fixed interval
type GaugeService struct {
	gauge    driver.GaugeDriver
	interval time.Duration
	logger   *utils.ServiceLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	ticks   uint64
	running bool
}

// NewGaugeService creates a new gauge service
func NewGaugeService(gauge driver.GaugeDriver, interval time.Duration, logger *zap.Logger) *GaugeService {
	if interval <= 0 {
		interval = time.Second
	}
	return &GaugeService{
		gauge:    gauge,
		interval: interval,
		logger:   utils.NewServiceLogger(logger, "gauge-service"),
	}
}

// Start initializes the controller and begins ticking its state machine
func (s *GaugeService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("gauge service already running")
	}
	if err := s.gauge.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize controller: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(loopCtx, s.done)

	s.logger.Info("Gauge state machine started", zap.Duration("interval", s.interval))
	return nil
}

func (s *GaugeService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *GaugeService) tick(ctx context.Context) {
	s.gauge.Tick(ctx)

	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()
}

// Stop ends the tick loop and closes the controller
func (s *GaugeService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	if err := s.gauge.Close(); err != nil {
		s.logger.Error("Failed to close controller", zap.Error(err))
		return err
	}
	s.logger.Info("Gauge state machine stopped")
	return nil
}

// Ticks returns how many state machine ticks have run
func (s *GaugeService) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}
