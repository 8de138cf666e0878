package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/predictor"
	"github.com/absmach/cohort/worker"
	"github.com/google/uuid"
)

const (
	defOffset = 0
	defLimit  = 100

	DefAliveTimeout = 10 * time.Second
)

type service struct {
	fitsDB       storage.Storage
	workersDB    storage.Storage
	history      storage.History
	pubsub       mqtt.PubSub
	aliveTimeout time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	running    map[string]context.CancelCauseFunc
	predictors map[string]*predictor.Predictor
	closed     bool
	subscribed bool
	wg         sync.WaitGroup
}

// NewService returns a manager keeping fit records in fitsDB, worker
// liveness in workersDB and round history in history. pubsub may be nil, in
// which case only in-process fits are available.
func NewService(fitsDB, workersDB storage.Storage, history storage.History, pubsub mqtt.PubSub, aliveTimeout time.Duration, logger *slog.Logger) Service {
	if aliveTimeout <= 0 {
		aliveTimeout = DefAliveTimeout
	}

	return &service{
		fitsDB:       fitsDB,
		workersDB:    workersDB,
		history:      history,
		pubsub:       pubsub,
		aliveTimeout: aliveTimeout,
		logger:       logger,
		running:      make(map[string]context.CancelCauseFunc),
		predictors:   make(map[string]*predictor.Predictor),
	}
}

func (svc *service) StartFit(ctx context.Context, req FitRequest) (Fit, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return Fit{}, err
	}
	ds, err := dataset.NewTable(cfg.FeatureColumn, cfg.LabelColumn, req.Rows)
	if err != nil {
		return Fit{}, err
	}
	if ds.Len() == 0 {
		return Fit{}, fmt.Errorf("%w: dataset is empty", errors.ErrInvalidConfiguration)
	}
	spec, err := cfg.Spec(ds)
	if err != nil {
		return Fit{}, err
	}
	pool, err := svc.pool(ctx, req.Remote, cfg.NumWorkers)
	if err != nil {
		return Fit{}, err
	}

	now := time.Now()
	f := Fit{
		ID:        uuid.NewString(),
		Name:      req.Name,
		State:     StateRunning,
		Config:    cfg,
		Spec:      &spec,
		Rows:      ds.Len(),
		Remote:    req.Remote,
		Workers:   pool.IDs(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return Fit{}, ErrShuttingDown
	}
	if err := svc.fitsDB.Create(ctx, f.ID, f); err != nil {
		return Fit{}, err
	}

	est := estimator.New(cfg,
		estimator.WithPool(pool),
		estimator.WithHistory(svc.history),
		estimator.WithLogger(svc.logger),
		estimator.WithFitID(f.ID),
		estimator.WithRoundHook(svc.roundHook(f.ID)),
	)
	runCtx, cancel := context.WithCancelCause(context.Background())
	svc.running[f.ID] = cancel
	svc.wg.Add(1)
	go svc.run(runCtx, f.ID, est, ds)

	return f, nil
}

func (svc *service) run(ctx context.Context, fitID string, est *estimator.Estimator, ds dataset.Dataset) {
	defer svc.wg.Done()

	p, res, err := est.FitResult(ctx, ds)

	svc.mu.Lock()
	if cancel, ok := svc.running[fitID]; ok {
		cancel(nil)
		delete(svc.running, fitID)
	}
	if p != nil {
		svc.predictors[fitID] = p
	}
	svc.mu.Unlock()

	uerr := svc.updateFit(fitID, func(f *Fit) {
		f.State = res.State
		if f.State == "" {
			f.State = coordinator.StateFailed
		}
		f.Version = res.Params.Version
		if err != nil {
			f.Error = err.Error()
		}
		f.EndTime = time.Now()
	})
	if uerr != nil {
		svc.logger.Error("failed to update fit", slog.String("fit_id", fitID), slog.Any("error", uerr))
	}
}

func (svc *service) roundHook(fitID string) coordinator.RoundHook {
	return func(rs fl.RoundState) {
		err := svc.updateFit(fitID, func(f *Fit) {
			f.Round = rs.Round
			if rs.Outcome == fl.OutcomeAggregated {
				f.Version = rs.Version
				f.Metrics = rs.Metrics
			}
		})
		if err != nil {
			svc.logger.Warn("failed to record round", slog.String("fit_id", fitID), slog.Int("round", rs.Round), slog.Any("error", err))
		}
	}
}

func (svc *service) updateFit(fitID string, fn func(*Fit)) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	ctx := context.Background()
	f, err := svc.getFit(ctx, fitID)
	if err != nil {
		return err
	}
	fn(&f)
	f.UpdatedAt = time.Now()

	return svc.fitsDB.Update(ctx, fitID, f)
}

func (svc *service) pool(ctx context.Context, remote bool, n int) (*worker.Pool, error) {
	if !remote {
		return worker.NewLocalPool(n)
	}
	if svc.pubsub == nil {
		return nil, fmt.Errorf("%w: mqtt is not configured", ErrNoWorkers)
	}

	page, err := svc.ListWorkers(ctx, defOffset, defLimit)
	if err != nil {
		return nil, err
	}
	var workers []worker.Worker
	for _, w := range page.Workers {
		if w.Alive {
			workers = append(workers, worker.NewRemote(w.ID, svc.pubsub, svc.logger))
		}
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	return worker.NewPool(workers...)
}

func (svc *service) GetFit(ctx context.Context, fitID string) (Fit, error) {
	return svc.getFit(ctx, fitID)
}

func (svc *service) getFit(ctx context.Context, fitID string) (Fit, error) {
	data, err := svc.fitsDB.Get(ctx, fitID)
	if err != nil {
		return Fit{}, err
	}
	f, ok := data.(Fit)
	if !ok {
		return Fit{}, errors.ErrInvalidData
	}

	return f, nil
}

func (svc *service) ListFits(ctx context.Context, offset, limit uint64) (FitPage, error) {
	data, total, err := svc.fitsDB.List(ctx, offset, limit)
	if err != nil {
		return FitPage{}, err
	}
	fits := make([]Fit, len(data))
	for i := range data {
		f, ok := data[i].(Fit)
		if !ok {
			return FitPage{}, errors.ErrInvalidData
		}
		fits[i] = f
	}

	return FitPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Fits:   fits,
	}, nil
}

func (svc *service) CancelFit(ctx context.Context, fitID string) error {
	f, err := svc.getFit(ctx, fitID)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	cancel, ok := svc.running[fitID]
	if !ok || f.State.Terminal() {
		return ErrFitFinished
	}
	cancel(errors.ErrCancelled)

	return nil
}

func (svc *service) Predict(ctx context.Context, fitID string, features [][]float64) ([]predictor.Prediction, error) {
	p, err := svc.predictor(ctx, fitID)
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.Row, len(features))
	for i, f := range features {
		rows[i] = dataset.Row{Features: f}
	}
	ds, err := dataset.NewTable("", "", rows)
	if err != nil {
		return nil, err
	}

	return p.Transform(ds)
}

// predictor returns the cached predictor of a finished fit, rebuilding it
// from the recorded history when the cache does not have it.
func (svc *service) predictor(ctx context.Context, fitID string) (*predictor.Predictor, error) {
	svc.mu.Lock()
	p, ok := svc.predictors[fitID]
	svc.mu.Unlock()
	if ok {
		return p, nil
	}

	f, err := svc.getFit(ctx, fitID)
	if err != nil {
		return nil, err
	}
	if !f.Finished() {
		return nil, ErrFitNotFinished
	}
	set, err := svc.history.GetParameters(ctx, fitID, f.Version)
	if err != nil {
		return nil, err
	}
	p, err = predictor.New(*f.Spec, set)
	if err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.predictors[fitID] = p
	svc.mu.Unlock()

	return p, nil
}

func (svc *service) ListRounds(ctx context.Context, fitID string, offset, limit uint64) (RoundPage, error) {
	if _, err := svc.getFit(ctx, fitID); err != nil {
		return RoundPage{}, err
	}
	rounds, total, err := svc.history.ListRounds(ctx, fitID, offset, limit)
	if err != nil {
		return RoundPage{}, err
	}

	return RoundPage{
		Offset: offset,
		Limit:  limit,
		Total:  total,
		Rounds: rounds,
	}, nil
}

func (svc *service) GetWorker(ctx context.Context, workerID string) (Worker, error) {
	data, err := svc.workersDB.Get(ctx, workerID)
	if err != nil {
		return Worker{}, err
	}
	w, ok := data.(Worker)
	if !ok {
		return Worker{}, errors.ErrInvalidData
	}
	w.SetAlive(svc.aliveTimeout)

	return w, nil
}

func (svc *service) ListWorkers(ctx context.Context, offset, limit uint64) (WorkerPage, error) {
	data, total, err := svc.workersDB.List(ctx, offset, limit)
	if err != nil {
		return WorkerPage{}, err
	}
	workers := make([]Worker, len(data))
	for i := range data {
		w, ok := data[i].(Worker)
		if !ok {
			return WorkerPage{}, errors.ErrInvalidData
		}
		w.SetAlive(svc.aliveTimeout)
		workers[i] = w
	}

	return WorkerPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Workers: workers,
	}, nil
}

func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return fmt.Errorf("%w: mqtt is not configured", errors.ErrInvalidConfiguration)
	}

	if err := subscribe(ctx, svc.pubsub, svc.workersDB, svc.logger); err != nil {
		return err
	}
	svc.mu.Lock()
	svc.subscribed = true
	svc.mu.Unlock()

	return nil
}

func (svc *service) Shutdown(ctx context.Context) error {
	svc.mu.Lock()
	svc.closed = true
	for _, cancel := range svc.running {
		cancel(ErrShuttingDown)
	}
	subscribed := svc.subscribed
	svc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if subscribed {
		return svc.pubsub.Unsubscribe(ctx, mqtt.AliveTopic)
	}

	return nil
}
