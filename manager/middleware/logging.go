package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
)

var _ manager.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    manager.Service
}

func Logging(logger *slog.Logger, svc manager.Service) manager.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) StartFit(ctx context.Context, req manager.FitRequest) (resp manager.Fit, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("fit",
				slog.String("id", resp.ID),
				slog.String("name", req.Name),
				slog.Int("rows", len(req.Rows)),
				slog.Int("workers", req.Config.NumWorkers),
				slog.Int("rounds", req.Config.Rounds),
				slog.Bool("remote", req.Remote),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Start fit failed", args...)

			return
		}
		lm.logger.Info("Start fit completed successfully", args...)
	}(time.Now())

	return lm.svc.StartFit(ctx, req)
}

func (lm *loggingMiddleware) GetFit(ctx context.Context, fitID string) (resp manager.Fit, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("fit",
				slog.String("id", fitID),
				slog.String("state", string(resp.State)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get fit failed", args...)

			return
		}
		lm.logger.Info("Get fit completed successfully", args...)
	}(time.Now())

	return lm.svc.GetFit(ctx, fitID)
}

func (lm *loggingMiddleware) ListFits(ctx context.Context, offset, limit uint64) (resp manager.FitPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List fits failed", args...)

			return
		}
		lm.logger.Info("List fits completed successfully", args...)
	}(time.Now())

	return lm.svc.ListFits(ctx, offset, limit)
}

func (lm *loggingMiddleware) CancelFit(ctx context.Context, fitID string) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("fit",
				slog.String("id", fitID),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Cancel fit failed", args...)

			return
		}
		lm.logger.Info("Cancel fit completed successfully", args...)
	}(time.Now())

	return lm.svc.CancelFit(ctx, fitID)
}

func (lm *loggingMiddleware) Predict(ctx context.Context, fitID string, features [][]float64) (resp []predictor.Prediction, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("fit",
				slog.String("id", fitID),
			),
			slog.Int("rows", len(features)),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Predict failed", args...)

			return
		}
		lm.logger.Info("Predict completed successfully", args...)
	}(time.Now())

	return lm.svc.Predict(ctx, fitID, features)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, fitID string, offset, limit uint64) (resp manager.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("fit",
				slog.String("id", fitID),
			),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, fitID, offset, limit)
}

func (lm *loggingMiddleware) GetWorker(ctx context.Context, workerID string) (resp manager.Worker, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("worker",
				slog.String("id", workerID),
				slog.Bool("alive", resp.Alive),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get worker failed", args...)

			return
		}
		lm.logger.Info("Get worker completed successfully", args...)
	}(time.Now())

	return lm.svc.GetWorker(ctx, workerID)
}

func (lm *loggingMiddleware) ListWorkers(ctx context.Context, offset, limit uint64) (resp manager.WorkerPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List workers failed", args...)

			return
		}
		lm.logger.Info("List workers completed successfully", args...)
	}(time.Now())

	return lm.svc.ListWorkers(ctx, offset, limit)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe to worker heartbeats failed", args...)

			return
		}
		lm.logger.Info("Subscribe to worker heartbeats completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}

func (lm *loggingMiddleware) Shutdown(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Shutdown failed", args...)

			return
		}
		lm.logger.Info("Shutdown completed successfully", args...)
	}(time.Now())

	return lm.svc.Shutdown(ctx)
}
