package manager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/worker"
)

const (
	aliveHistoryLimit = 10
	statusOffline     = worker.StatusOffline
)

var errEmptyWorkerID = errors.New("worker id is empty")

func subscribe(ctx context.Context, pubsub mqtt.PubSub, workersDB storage.Storage, logger *slog.Logger) error {
	return pubsub.Subscribe(ctx, mqtt.AliveTopic, handle(ctx, workersDB, logger))
}

func handle(ctx context.Context, workersDB storage.Storage, logger *slog.Logger) mqtt.Handler {
	return func(_ string, payload []byte) error {
		var hb worker.Heartbeat
		if err := mqtt.Decode(payload, &hb); err != nil {
			return err
		}
		if hb.WorkerID == "" {
			return errEmptyWorkerID
		}

		created, err := updateLiveness(ctx, hb, workersDB)
		if err != nil {
			logger.Warn("failed to update worker liveness", slog.String("worker_id", hb.WorkerID), slog.Any("error", err))

			return err
		}
		if created {
			logger.InfoContext(ctx, "successfully registered worker", slog.String("worker_id", hb.WorkerID))
		}
		if hb.Status == worker.StatusOffline {
			logger.InfoContext(ctx, "worker went offline", slog.String("worker_id", hb.WorkerID))
		}

		return nil
	}
}

func updateLiveness(ctx context.Context, hb worker.Heartbeat, workersDB storage.Storage) (bool, error) {
	var w Worker
	data, err := workersDB.Get(ctx, hb.WorkerID)
	switch {
	case err == nil:
		var ok bool
		if w, ok = data.(Worker); !ok {
			return false, pkgerrors.ErrInvalidData
		}
	case errors.Is(err, pkgerrors.ErrNotFound):
		w = Worker{ID: hb.WorkerID}
	default:
		return false, err
	}

	w.Status = hb.Status
	if hb.Usage != nil {
		w.Usage = hb.Usage
	}
	if hb.Status != worker.StatusOffline {
		w.AliveHistory = append(w.AliveHistory, time.Now())
		if len(w.AliveHistory) > aliveHistoryLimit {
			w.AliveHistory = w.AliveHistory[1:]
		}
	}

	if data == nil {
		return true, workersDB.Create(ctx, w.ID, w)
	}

	return false, workersDB.Update(ctx, w.ID, w)
}
