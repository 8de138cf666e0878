package manager

import (
	"context"
	"errors"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/predictor"
	"github.com/absmach/cohort/worker"
)

var (
	ErrFitNotFinished = errors.New("fit has no fitted parameters yet")
	ErrFitFinished    = errors.New("fit already finished")
	ErrNoWorkers      = errors.New("no live remote workers")
	ErrShuttingDown   = errors.New("manager is shutting down")
)

// StateRunning is reported by fits whose coordinator has not yet reached a
// terminal state.
const StateRunning coordinator.State = "RUNNING"

type Service interface {
	// StartFit validates the request, records the fit and trains it in the
	// background.
	StartFit(ctx context.Context, req FitRequest) (Fit, error)
	GetFit(ctx context.Context, fitID string) (Fit, error)
	ListFits(ctx context.Context, offset, limit uint64) (FitPage, error)
	// CancelFit asks a running fit to stop after its current round.
	CancelFit(ctx context.Context, fitID string) error
	Predict(ctx context.Context, fitID string, features [][]float64) ([]predictor.Prediction, error)
	ListRounds(ctx context.Context, fitID string, offset, limit uint64) (RoundPage, error)

	GetWorker(ctx context.Context, workerID string) (Worker, error)
	ListWorkers(ctx context.Context, offset, limit uint64) (WorkerPage, error)

	// Subscribe starts tracking worker heartbeats.
	Subscribe(ctx context.Context) error
	// Shutdown cancels running fits and waits for them to stop.
	Shutdown(ctx context.Context) error
}

type FitRequest struct {
	Name   string           `json:"name,omitempty"`
	Config estimator.Config `json:"config"`
	Rows   []dataset.Row    `json:"rows"`
	// Remote trains on the live workers announced over MQTT instead of
	// in-process workers.
	Remote bool `json:"remote,omitempty"`
}

type Fit struct {
	ID        string             `json:"id"`
	Name      string             `json:"name,omitempty"`
	State     coordinator.State  `json:"state"`
	Config    estimator.Config   `json:"config"`
	Spec      *model.Spec        `json:"spec,omitempty"`
	Rows      int                `json:"rows"`
	Remote    bool               `json:"remote,omitempty"`
	Workers   []string           `json:"workers,omitempty"`
	Round     int                `json:"round"`
	Version   uint64             `json:"version"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	EndTime   time.Time          `json:"end_time,omitempty"`
}

// Finished reports whether the fit left parameters a predictor can use.
func (f Fit) Finished() bool {
	return (f.State == coordinator.StateConverged || f.State == coordinator.StateCancelled) && f.Spec != nil
}

type FitPage struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
	Total  uint64 `json:"total"`
	Fits   []Fit  `json:"fits"`
}

type RoundPage struct {
	Offset uint64          `json:"offset"`
	Limit  uint64          `json:"limit"`
	Total  uint64          `json:"total"`
	Rounds []fl.RoundState `json:"rounds"`
}

type Worker struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Alive        bool          `json:"alive"`
	AliveHistory []time.Time   `json:"alive_history,omitempty"`
	Usage        *worker.Usage `json:"usage,omitempty"`
}

// SetAlive marks w alive when its last heartbeat is recent enough.
func (w *Worker) SetAlive(timeout time.Duration) {
	if len(w.AliveHistory) > 0 && w.Status != statusOffline {
		last := w.AliveHistory[len(w.AliveHistory)-1]
		if time.Since(last) <= timeout {
			w.Alive = true

			return
		}
	}
	w.Alive = false
}

type WorkerPage struct {
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Total   uint64   `json:"total"`
	Workers []Worker `json:"workers"`
}
