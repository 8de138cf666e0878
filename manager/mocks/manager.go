package mocks

import (
	"context"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
	"github.com/stretchr/testify/mock"
)

var _ manager.Service = (*MockService)(nil)

// MockService is a testify mock of manager.Service.
type MockService struct {
	mock.Mock
}

func (m *MockService) StartFit(ctx context.Context, req manager.FitRequest) (manager.Fit, error) {
	args := m.Called(ctx, req)

	return args.Get(0).(manager.Fit), args.Error(1)
}

func (m *MockService) GetFit(ctx context.Context, fitID string) (manager.Fit, error) {
	args := m.Called(ctx, fitID)

	return args.Get(0).(manager.Fit), args.Error(1)
}

func (m *MockService) ListFits(ctx context.Context, offset, limit uint64) (manager.FitPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(manager.FitPage), args.Error(1)
}

func (m *MockService) CancelFit(ctx context.Context, fitID string) error {
	args := m.Called(ctx, fitID)

	return args.Error(0)
}

func (m *MockService) Predict(ctx context.Context, fitID string, features [][]float64) ([]predictor.Prediction, error) {
	args := m.Called(ctx, fitID, features)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]predictor.Prediction), args.Error(1)
}

func (m *MockService) ListRounds(ctx context.Context, fitID string, offset, limit uint64) (manager.RoundPage, error) {
	args := m.Called(ctx, fitID, offset, limit)

	return args.Get(0).(manager.RoundPage), args.Error(1)
}

func (m *MockService) GetWorker(ctx context.Context, workerID string) (manager.Worker, error) {
	args := m.Called(ctx, workerID)

	return args.Get(0).(manager.Worker), args.Error(1)
}

func (m *MockService) ListWorkers(ctx context.Context, offset, limit uint64) (manager.WorkerPage, error) {
	args := m.Called(ctx, offset, limit)

	return args.Get(0).(manager.WorkerPage), args.Error(1)
}

func (m *MockService) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockService) Shutdown(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
