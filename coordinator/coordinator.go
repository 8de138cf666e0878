// Package coordinator drives distributed fitting: it partitions a dataset,
// broadcasts versioned parameter snapshots to a worker pool, collects local
// updates under a strict or quorum policy and publishes one aggregated
// version per round.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/params"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/worker"
	"github.com/google/uuid"
)

type State string

const (
	StateInit           State = "INIT"
	StatePartitioning   State = "PARTITIONING"
	StateRoundDispatch  State = "ROUND_DISPATCH"
	StateRoundCollect   State = "ROUND_COLLECT"
	StateRoundAggregate State = "ROUND_AGGREGATE"
	StateConverged      State = "CONVERGED"
	StateFailed         State = "FAILED"
	StateCancelled      State = "CANCELLED"
)

func (s State) Terminal() bool {
	return s == StateConverged || s == StateFailed || s == StateCancelled
}

var errAlreadyStarted = fmt.Errorf("%w: coordinator already ran a fit", pkgerrors.ErrInvalidConfiguration)

// Result is what a fit leaves behind. Params is the last published set; it
// is the zero Set only if the fit failed before initialisation.
type Result struct {
	FitID  string
	State  State
	Params params.Set
	Rounds []fl.RoundState
}

type RoundHook func(fl.RoundState)

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithHistory records every published version and round into h.
func WithHistory(h storage.History) Option {
	return func(c *Coordinator) {
		c.history = h
	}
}

// WithRoundHook registers fn to run synchronously after each round closes,
// whatever its outcome.
func WithRoundHook(fn RoundHook) Option {
	return func(c *Coordinator) {
		c.hooks = append(c.hooks, fn)
	}
}

func WithFitID(id string) Option {
	return func(c *Coordinator) {
		c.fitID = id
	}
}

// Coordinator runs exactly one fit. Create a new one per Fit call.
type Coordinator struct {
	cfg     Config
	spec    model.Spec
	pool    *worker.Pool
	fitID   string
	history storage.History
	hooks   []RoundHook
	logger  *slog.Logger

	engine model.Engine
	agg    fl.Aggregator

	started atomic.Bool
	mu      sync.RWMutex
	state   State
}

func New(cfg Config, spec model.Spec, pool *worker.Pool, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		spec:    spec.Clone(),
		pool:    pool,
		fitID:   uuid.NewString(),
		history: storage.NewInMemoryHistory(),
		logger:  slog.Default(),
		state:   StateInit,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Coordinator) FitID() string {
	return c.fitID
}

func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

func (c *Coordinator) transition(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("coordinator state changed", slog.String("fit_id", c.fitID), slog.String("from", string(prev)), slog.String("to", string(s)))
	}
}

// Fit trains the model described by the coordinator's spec on ds. On success
// the Result is in StateConverged. Failures are returned as
// *errors.RoundError naming the round and state they happened in.
func (c *Coordinator) Fit(ctx context.Context, ds dataset.Dataset) (Result, error) {
	res := Result{FitID: c.fitID}
	if !c.started.CompareAndSwap(false, true) {
		return res, errAlreadyStarted
	}

	// Rounds and history writes outlive cancellation; ctx is only checked
	// between rounds.
	bg := context.WithoutCancel(ctx)
	start := time.Now()
	c.transition(StateInit)
	if err := c.init(ds); err != nil {
		return c.fail(res, 0, err)
	}

	c.transition(StatePartitioning)
	shards, err := dataset.Partition(ds, c.cfg.NumWorkers, c.cfg.Shuffle, c.cfg.Seed)
	if err != nil {
		return c.fail(res, 0, err)
	}
	current, err := c.engine.Init(c.spec, c.cfg.Seed)
	if err != nil {
		return c.fail(res, 0, err)
	}
	if err := c.history.SaveParameters(bg, c.fitID, current); err != nil {
		return c.fail(res, 0, fmt.Errorf("failed to save parameters: %w", err))
	}
	res.Params = current

	c.logger.Info("fit started",
		slog.String("fit_id", c.fitID),
		slog.Int("rows", ds.Len()),
		slog.Int("shards", len(shards)),
		slog.Int("workers", c.pool.Len()),
		slog.Int("rounds", c.cfg.Rounds),
		slog.String("policy", string(c.agg.Policy())),
		slog.String("collect_mode", string(c.cfg.CollectMode)),
	)

	for round := 1; round <= c.cfg.Rounds; round++ {
		if ctx.Err() != nil {
			return c.cancel(res, round-1, context.Cause(ctx))
		}
		if round > 1 && c.cfg.ReshuffleEachRound {
			c.transition(StatePartitioning)
			shards, err = dataset.Partition(ds, c.cfg.NumWorkers, true, c.cfg.Seed+uint64(round))
			if err != nil {
				return c.fail(res, round, err)
			}
		}

		next, rs, err := c.runRound(bg, round, current, shards)
		res.Rounds = append(res.Rounds, rs)
		if serr := c.history.SaveRound(bg, c.fitID, rs); serr != nil {
			c.logger.Warn("failed to save round", slog.String("fit_id", c.fitID), slog.Int("round", round), slog.Any("error", serr))
		}
		for _, hook := range c.hooks {
			hook(rs)
		}
		if err != nil {
			return c.fail(res, round, err)
		}
		current = next
		res.Params = current
	}

	c.transition(StateConverged)
	res.State = StateConverged
	c.logger.Info("fit converged",
		slog.String("fit_id", c.fitID),
		slog.Uint64("version", current.Version),
		slog.String("duration", time.Since(start).String()),
	)

	return res, nil
}

func (c *Coordinator) init(ds dataset.Dataset) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	if c.pool == nil {
		return fmt.Errorf("%w: worker pool is required", pkgerrors.ErrInvalidConfiguration)
	}
	if err := c.spec.Validate(); err != nil {
		return err
	}
	engine, err := model.Lookup(c.spec.Engine)
	if err != nil {
		return err
	}
	agg, err := fl.NewAggregator(c.cfg.Policy, c.cfg.Decay)
	if err != nil {
		return err
	}
	if ds == nil || ds.Len() == 0 {
		return fmt.Errorf("%w: dataset is empty", pkgerrors.ErrInvalidConfiguration)
	}
	if ds.NumFeatures() != c.spec.InputDim {
		return fmt.Errorf("%w: dataset has %d features, spec expects %d", pkgerrors.ErrInvalidConfiguration, ds.NumFeatures(), c.spec.InputDim)
	}
	for i := 0; i < ds.Len(); i++ {
		if err := c.checkRow(i, ds.Row(i)); err != nil {
			return err
		}
	}
	c.engine = engine
	c.agg = agg

	return nil
}

func (c *Coordinator) checkRow(i int, r dataset.Row) error {
	if len(r.Features) != c.spec.InputDim {
		return fmt.Errorf("%w: row %d has %d features, spec expects %d", pkgerrors.ErrInvalidConfiguration, i, len(r.Features), c.spec.InputDim)
	}
	if c.spec.Mode == model.Categorical {
		k := int(r.Label)
		if float64(k) != r.Label || k < 0 || k >= c.spec.NumClasses {
			return fmt.Errorf("%w: row %d label %g is not a class in [0, %d)", pkgerrors.ErrInvalidConfiguration, i, r.Label, c.spec.NumClasses)
		}
	}

	return nil
}

func (c *Coordinator) fail(res Result, round int, err error) (Result, error) {
	state := c.State()
	c.transition(StateFailed)
	res.State = StateFailed
	c.logger.Error("fit failed",
		slog.String("fit_id", c.fitID),
		slog.Int("round", round),
		slog.String("state", string(state)),
		slog.Any("error", err),
	)

	return res, &pkgerrors.RoundError{Round: round, State: string(state), Err: err}
}

func (c *Coordinator) cancel(res Result, completed int, cause error) (Result, error) {
	c.transition(StateCancelled)
	res.State = StateCancelled
	c.logger.Warn("fit cancelled",
		slog.String("fit_id", c.fitID),
		slog.Int("completed_rounds", completed),
		slog.Uint64("version", res.Params.Version),
		slog.String("mode", string(c.cfg.CancelMode)),
	)
	if c.cfg.CancelMode == Graceful {
		return res, nil
	}

	return res, &pkgerrors.RoundError{
		Round: completed,
		State: string(StateCancelled),
		Err:   errors.Join(pkgerrors.ErrCancelled, cause),
	}
}
