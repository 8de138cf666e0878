package middleware

import (
	"context"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ manager.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    manager.Service
}

func Tracing(tracer trace.Tracer, svc manager.Service) manager.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) StartFit(ctx context.Context, req manager.FitRequest) (manager.Fit, error) {
	ctx, span := tm.tracer.Start(ctx, "start-fit", trace.WithAttributes(
		attribute.String("name", req.Name),
		attribute.Int("rows", len(req.Rows)),
		attribute.Int("num_workers", req.Config.NumWorkers),
		attribute.Int("rounds", req.Config.Rounds),
		attribute.Bool("remote", req.Remote),
	))
	defer span.End()

	return tm.svc.StartFit(ctx, req)
}

func (tm *tracing) GetFit(ctx context.Context, fitID string) (manager.Fit, error) {
	ctx, span := tm.tracer.Start(ctx, "get-fit", trace.WithAttributes(
		attribute.String("id", fitID),
	))
	defer span.End()

	return tm.svc.GetFit(ctx, fitID)
}

func (tm *tracing) ListFits(ctx context.Context, offset, limit uint64) (manager.FitPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-fits", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListFits(ctx, offset, limit)
}

func (tm *tracing) CancelFit(ctx context.Context, fitID string) error {
	ctx, span := tm.tracer.Start(ctx, "cancel-fit", trace.WithAttributes(
		attribute.String("id", fitID),
	))
	defer span.End()

	return tm.svc.CancelFit(ctx, fitID)
}

func (tm *tracing) Predict(ctx context.Context, fitID string, features [][]float64) ([]predictor.Prediction, error) {
	ctx, span := tm.tracer.Start(ctx, "predict", trace.WithAttributes(
		attribute.String("id", fitID),
		attribute.Int("rows", len(features)),
	))
	defer span.End()

	return tm.svc.Predict(ctx, fitID, features)
}

func (tm *tracing) ListRounds(ctx context.Context, fitID string, offset, limit uint64) (manager.RoundPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.String("id", fitID),
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, fitID, offset, limit)
}

func (tm *tracing) GetWorker(ctx context.Context, workerID string) (manager.Worker, error) {
	ctx, span := tm.tracer.Start(ctx, "get-worker", trace.WithAttributes(
		attribute.String("id", workerID),
	))
	defer span.End()

	return tm.svc.GetWorker(ctx, workerID)
}

func (tm *tracing) ListWorkers(ctx context.Context, offset, limit uint64) (manager.WorkerPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-workers", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListWorkers(ctx, offset, limit)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}

func (tm *tracing) Shutdown(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "shutdown")
	defer span.End()

	return tm.svc.Shutdown(ctx)
}
