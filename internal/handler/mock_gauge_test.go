package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gauge-service/internal/model"
	"gauge-service/pkg/driver"
)

type mockGauge struct {
	mock.Mock
}

var _ driver.GaugeDriver = (*mockGauge)(nil)

func (m *mockGauge) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockGauge) Tick(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockGauge) Close() error {
	return m.Called().Error(0)
}

func (m *mockGauge) ReadChannel(channel model.Channel) (model.ChannelReading, error) {
	args := m.Called(channel)
	return args.Get(0).(model.ChannelReading), args.Error(1)
}

func (m *mockGauge) WriteSetpoints(ctx context.Context, kind driver.SetpointKind, values []float64) (string, error) {
	args := m.Called(ctx, kind, values)
	return args.String(0), args.Error(1)
}

func (m *mockGauge) Snapshot() driver.Snapshot {
	return m.Called().Get(0).(driver.Snapshot)
}

func (m *mockGauge) Health() driver.HealthReport {
	return m.Called().Get(0).(driver.HealthReport)
}

func (m *mockGauge) Commands() []driver.CommandInfo {
	return m.Called().Get(0).([]driver.CommandInfo)
}

func (m *mockGauge) DispatchCommand(ctx context.Context, name, argument string) (string, error) {
	args := m.Called(ctx, name, argument)
	return args.String(0), args.Error(1)
}

func (m *mockGauge) SetEventHandler(handler driver.EventHandler) {
	m.Called(handler)
}
