package middleware

import (
	"context"
	"time"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
	"github.com/go-kit/kit/metrics"
)

var _ manager.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     manager.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc manager.Service) manager.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) StartFit(ctx context.Context, req manager.FitRequest) (manager.Fit, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "start-fit").Add(1)
		mm.latency.With("method", "start-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.StartFit(ctx, req)
}

func (mm *metricsMiddleware) GetFit(ctx context.Context, fitID string) (manager.Fit, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-fit").Add(1)
		mm.latency.With("method", "get-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetFit(ctx, fitID)
}

func (mm *metricsMiddleware) ListFits(ctx context.Context, offset, limit uint64) (manager.FitPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-fits").Add(1)
		mm.latency.With("method", "list-fits").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListFits(ctx, offset, limit)
}

func (mm *metricsMiddleware) CancelFit(ctx context.Context, fitID string) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "cancel-fit").Add(1)
		mm.latency.With("method", "cancel-fit").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CancelFit(ctx, fitID)
}

func (mm *metricsMiddleware) Predict(ctx context.Context, fitID string, features [][]float64) ([]predictor.Prediction, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "predict").Add(1)
		mm.latency.With("method", "predict").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Predict(ctx, fitID, features)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, fitID string, offset, limit uint64) (manager.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, fitID, offset, limit)
}

func (mm *metricsMiddleware) GetWorker(ctx context.Context, workerID string) (manager.Worker, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-worker").Add(1)
		mm.latency.With("method", "get-worker").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetWorker(ctx, workerID)
}

func (mm *metricsMiddleware) ListWorkers(ctx context.Context, offset, limit uint64) (manager.WorkerPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-workers").Add(1)
		mm.latency.With("method", "list-workers").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListWorkers(ctx, offset, limit)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Subscribe(ctx)
}

func (mm *metricsMiddleware) Shutdown(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "shutdown").Add(1)
		mm.latency.With("method", "shutdown").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Shutdown(ctx)
}
