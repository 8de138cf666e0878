package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/model/dense"
	"github.com/absmach/cohort/pkg/params"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/absmach/cohort/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSpec() model.Spec {
	return model.Spec{
		FormatVersion: model.FormatVersion,
		Engine:        dense.Name,
		Architecture:  dense.EncodeArchitecture(8),
		Loss:          model.LossCrossEntropy,
		Optimizer:     model.OptimizerSGD,
		Mode:          model.Categorical,
		InputDim:      4,
		NumClasses:    3,
		Hyperparams:   map[string]float64{model.HyperLearningRate: 0.1},
	}
}

// blobs returns n rows of 4 features in 3 balanced, well separated classes.
func blobs(t *testing.T, n int) *dataset.Table {
	rng := rand.New(rand.NewPCG(7, 11))
	rows := make([]dataset.Row, n)
	for i := range rows {
		class := i % 3
		f := make([]float64, 4)
		for j := range f {
			f[j] = rng.NormFloat64() * 0.3
		}
		f[class] += 3
		rows[i] = dataset.Row{Features: f, Label: float64(class)}
	}
	ds, err := dataset.NewTable("", "", rows)
	require.NoError(t, err)

	return ds
}

func testConfig(workers, rounds int) coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.NumWorkers = workers
	cfg.Rounds = rounds
	cfg.Epochs = 1
	cfg.BatchSize = 8
	cfg.RetryInterval = time.Millisecond
	cfg.RoundTimeout = 10 * time.Second

	return cfg
}

type fakeWorker struct {
	id    string
	calls atomic.Int32
	train func(ctx context.Context, task trainer.Task, call int) (fl.Update, error)
}

func (f *fakeWorker) ID() string {
	return f.id
}

func (f *fakeWorker) Train(ctx context.Context, task trainer.Task) (fl.Update, error) {
	call := int(f.calls.Add(1))

	return f.train(ctx, task, call)
}

// constant answers with the snapshot with every value set to shard+1.
func constant(_ context.Context, task trainer.Task, _ int) (fl.Update, error) {
	set := task.Snapshot.Clone()
	for i := range set.Tensors {
		for j := range set.Tensors[i].Data {
			set.Tensors[i].Data[j] = float64(task.Shard.ID + 1)
		}
	}

	return fl.Update{
		ShardID:     task.Shard.ID,
		BaseVersion: task.Snapshot.Version,
		NumSamples:  task.Shard.Len(),
		Params:      set,
	}, nil
}

func failing(err error) func(context.Context, trainer.Task, int) (fl.Update, error) {
	return func(context.Context, trainer.Task, int) (fl.Update, error) {
		return fl.Update{}, err
	}
}

func fakePool(t *testing.T, fns ...func(context.Context, trainer.Task, int) (fl.Update, error)) (*worker.Pool, []*fakeWorker) {
	fakes := make([]*fakeWorker, len(fns))
	workers := make([]worker.Worker, len(fns))
	for i, fn := range fns {
		fakes[i] = &fakeWorker{id: string(rune('a' + i)), train: fn}
		workers[i] = fakes[i]
	}
	pool, err := worker.NewPool(workers...)
	require.NoError(t, err)

	return pool, fakes
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		desc   string
		mutate func(*coordinator.Config)
		err    error
	}{
		{desc: "default config", mutate: func(*coordinator.Config) {}},
		{desc: "zero workers", mutate: func(c *coordinator.Config) { c.NumWorkers = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "zero epochs", mutate: func(c *coordinator.Config) { c.Epochs = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "zero rounds", mutate: func(c *coordinator.Config) { c.Rounds = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "zero batch size", mutate: func(c *coordinator.Config) { c.BatchSize = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "validation fraction of one", mutate: func(c *coordinator.Config) { c.ValidationFraction = 1 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "negative validation fraction", mutate: func(c *coordinator.Config) { c.ValidationFraction = -0.1 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "zero quorum", mutate: func(c *coordinator.Config) { c.QuorumFraction = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "quorum above one", mutate: func(c *coordinator.Config) { c.QuorumFraction = 1.5 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "negative retry limit", mutate: func(c *coordinator.Config) { c.RetryLimit = -1 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "zero round timeout", mutate: func(c *coordinator.Config) { c.RoundTimeout = 0 }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "unknown collect mode", mutate: func(c *coordinator.Config) { c.CollectMode = "eventual" }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "unknown cancel mode", mutate: func(c *coordinator.Config) { c.CancelMode = "never" }, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "unknown policy", mutate: func(c *coordinator.Config) { c.Policy = "median" }, err: pkgerrors.ErrInvalidConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := coordinator.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestFitEndToEnd(t *testing.T) {
	ds := blobs(t, 100)
	cfg := testConfig(2, 3)
	cfg.Policy = fl.SimpleAverage
	pool, err := worker.NewLocalPool(2)
	require.NoError(t, err)
	history := storage.NewInMemoryHistory()

	c := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger), coordinator.WithHistory(history))
	res, err := c.Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, coordinator.StateConverged, res.State)
	assert.Equal(t, coordinator.StateConverged, c.State())
	assert.Equal(t, uint64(3), res.Params.Version)
	require.Len(t, res.Rounds, 3)
	for i, rs := range res.Rounds {
		assert.Equal(t, i+1, rs.Round)
		assert.Equal(t, uint64(i), rs.BaseVersion)
		assert.Equal(t, uint64(i+1), rs.Version)
		assert.Equal(t, fl.OutcomeAggregated, rs.Outcome)
		assert.Equal(t, []int{0, 1}, rs.Received)
		assert.Contains(t, rs.Metrics, fl.MetricTrainLoss)
	}

	for v := uint64(0); v <= 3; v++ {
		_, err := history.GetParameters(context.Background(), c.FitID(), v)
		assert.NoError(t, err)
	}
	rounds, total, err := history.ListRounds(context.Background(), c.FitID(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), total)
	assert.Len(t, rounds, 3)

	out, err := dense.New().Forward(testSpec(), res.Params, []float64{3, 0, 0, 0})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	_, err = c.Fit(context.Background(), ds)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfiguration)
}

func TestFitIsDeterministic(t *testing.T) {
	run := func() params.Set {
		pool, err := worker.NewLocalPool(3)
		require.NoError(t, err)
		res, err := coordinator.New(testConfig(3, 2), testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 60))
		require.NoError(t, err)

		return res.Params
	}

	assert.Equal(t, run(), run())
}

func TestQuorum(t *testing.T) {
	shardEmpty := failing(pkgerrors.ErrShardEmpty)

	cases := []struct {
		desc     string
		fns      []func(context.Context, trainer.Task, int) (fl.Update, error)
		received []int
		attempts int
		calls    []int32
		err      error
	}{
		{
			desc:     "three of five meets a 0.6 quorum",
			fns:      []func(context.Context, trainer.Task, int) (fl.Update, error){constant, constant, constant, shardEmpty, shardEmpty},
			received: []int{0, 1, 2},
		},
		{
			desc:     "two of five retries then fails",
			fns:      []func(context.Context, trainer.Task, int) (fl.Update, error){constant, constant, shardEmpty, shardEmpty, shardEmpty},
			received: []int{0, 1},
			attempts: 3,
			calls:    []int32{1, 1, 3, 3, 3},
			err:      pkgerrors.ErrQuorumNotReached,
		},
		{
			desc:     "nothing received",
			fns:      []func(context.Context, trainer.Task, int) (fl.Update, error){shardEmpty, shardEmpty, shardEmpty, shardEmpty, shardEmpty},
			attempts: 3,
			calls:    []int32{3, 3, 3, 3, 3},
			err:      pkgerrors.ErrNoUpdatesReceived,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testConfig(5, 1)
			cfg.CollectMode = coordinator.Quorum
			cfg.QuorumFraction = 0.6
			cfg.RetryLimit = 2
			cfg.Policy = fl.SimpleAverage
			pool, fakes := fakePool(t, tc.fns...)

			var closed []fl.RoundState
			c := coordinator.New(cfg, testSpec(), pool,
				coordinator.WithLogger(logger),
				coordinator.WithRoundHook(func(rs fl.RoundState) { closed = append(closed, rs) }),
			)
			res, err := c.Fit(context.Background(), blobs(t, 50))

			require.Len(t, closed, 1)
			rs := closed[0]
			assert.Equal(t, 3, rs.Required)
			assert.Equal(t, tc.received, rs.Received)
			if tc.attempts > 0 {
				assert.Equal(t, tc.attempts, rs.Attempts)
			}
			for i, f := range fakes {
				assert.LessOrEqual(t, f.calls.Load(), int32(cfg.RetryLimit+1), "worker %d", i)
				if tc.calls != nil {
					assert.Equal(t, tc.calls[i], f.calls.Load(), "worker %d", i)
				}
			}

			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				var rerr *pkgerrors.RoundError
				require.ErrorAs(t, err, &rerr)
				assert.Equal(t, 1, rerr.Round)
				assert.Equal(t, coordinator.StateFailed, res.State)
				assert.Equal(t, fl.OutcomeFailed, rs.Outcome)
				assert.Equal(t, uint64(0), res.Params.Version)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(1), res.Params.Version)
			assert.Contains(t, rs.Failed, 3)
			assert.Contains(t, rs.Failed, 4)
			// Mean of shards 0, 1 and 2 answering 1, 2 and 3.
			for _, tensor := range res.Params.Tensors {
				for _, v := range tensor.Data {
					assert.InDelta(t, 2.0, v, 1e-12)
				}
			}
		})
	}
}

func TestQuorumSkipsStragglers(t *testing.T) {
	for _, policy := range []fl.Policy{fl.SimpleAverage, fl.WeightedAverage} {
		t.Run(string(policy), func(t *testing.T) {
			release := make(chan struct{})
			defer close(release)
			straggler := func(ctx context.Context, task trainer.Task, call int) (fl.Update, error) {
				select {
				case <-release:
					return constant(ctx, task, call)
				case <-ctx.Done():
					return fl.Update{}, ctx.Err()
				}
			}

			cfg := testConfig(5, 1)
			cfg.CollectMode = coordinator.Quorum
			cfg.QuorumFraction = 0.6
			cfg.Policy = policy
			pool, _ := fakePool(t, constant, constant, constant, straggler, straggler)

			start := time.Now()
			res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 50))
			require.NoError(t, err)
			assert.Less(t, time.Since(start), cfg.RoundTimeout/2)

			require.Len(t, res.Rounds, 1)
			rs := res.Rounds[0]
			assert.Equal(t, []int{0, 1, 2}, rs.Received)
			assert.Contains(t, rs.Failed, 3)
			assert.Contains(t, rs.Failed, 4)
			// Equal shard sizes make both policies the mean of 1, 2 and 3.
			for _, tensor := range res.Params.Tensors {
				for _, v := range tensor.Data {
					assert.InDelta(t, 2.0, v, 1e-12)
				}
			}
		})
	}
}

func TestStrictCollection(t *testing.T) {
	flaky := func(ctx context.Context, task trainer.Task, call int) (fl.Update, error) {
		if call <= 2 {
			return fl.Update{}, pkgerrors.ErrNumericDivergence
		}

		return constant(ctx, task, call)
	}

	t.Run("flaky worker recovers within retry limit", func(t *testing.T) {
		cfg := testConfig(2, 1)
		cfg.RetryLimit = 2
		pool, fakes := fakePool(t, constant, flaky)

		res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
		require.NoError(t, err)
		assert.Equal(t, coordinator.StateConverged, res.State)
		assert.Equal(t, int32(3), fakes[1].calls.Load())
	})

	t.Run("missing worker fails the round", func(t *testing.T) {
		cfg := testConfig(2, 2)
		cfg.RetryLimit = 1
		pool, fakes := fakePool(t, constant, failing(pkgerrors.ErrShardEmpty))

		res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
		assert.ErrorIs(t, err, pkgerrors.ErrQuorumNotReached)
		assert.Equal(t, coordinator.StateFailed, res.State)
		require.Len(t, res.Rounds, 1)
		assert.Equal(t, []int{0}, res.Rounds[0].Received)
		assert.Equal(t, 2, res.Rounds[0].Attempts)
		assert.Equal(t, pkgerrors.ErrShardEmpty.Error(), res.Rounds[0].Failed[1])
		assert.Equal(t, int32(1), fakes[0].calls.Load())
		assert.Equal(t, int32(2), fakes[1].calls.Load())
	})

	t.Run("fatal worker error is not retried", func(t *testing.T) {
		cfg := testConfig(2, 1)
		cfg.RetryLimit = 3
		pool, fakes := fakePool(t, constant, failing(pkgerrors.ErrParameterShapeMismatch))

		_, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
		assert.ErrorIs(t, err, pkgerrors.ErrParameterShapeMismatch)
		assert.Equal(t, int32(1), fakes[1].calls.Load())
	})
}

func TestShapeMismatchLeavesVersionUnpublished(t *testing.T) {
	wrongShape := func(ctx context.Context, task trainer.Task, call int) (fl.Update, error) {
		u, err := constant(ctx, task, call)
		u.Params.Tensors[0].Shape = []int{1, u.Params.Tensors[0].Size()}

		return u, err
	}
	cfg := testConfig(2, 3)
	pool, _ := fakePool(t, constant, wrongShape)
	history := storage.NewInMemoryHistory()
	c := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger), coordinator.WithHistory(history))

	res, err := c.Fit(context.Background(), blobs(t, 30))
	assert.ErrorIs(t, err, pkgerrors.ErrParameterShapeMismatch)
	var rerr *pkgerrors.RoundError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 1, rerr.Round)
	assert.Equal(t, string(coordinator.StateRoundAggregate), rerr.State)
	assert.Equal(t, uint64(0), res.Params.Version)

	_, err = history.GetParameters(context.Background(), c.FitID(), 1)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	initial, err := history.GetParameters(context.Background(), c.FitID(), 0)
	require.NoError(t, err)
	assert.Equal(t, initial, res.Params)
}

func TestStaleUpdatesAreRejected(t *testing.T) {
	stale := func(ctx context.Context, task trainer.Task, call int) (fl.Update, error) {
		u, err := constant(ctx, task, call)
		u.BaseVersion += 7

		return u, err
	}
	cfg := testConfig(2, 1)
	cfg.CollectMode = coordinator.Quorum
	cfg.QuorumFraction = 0.5
	pool, _ := fakePool(t, constant, stale)

	res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
	require.NoError(t, err)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, 1, res.Rounds[0].Stale)
	assert.Equal(t, []int{0}, res.Rounds[0].Received)
	assert.Contains(t, res.Rounds[0].Failed[1], pkgerrors.ErrVersionMismatch.Error())
}

func TestRoundTimeout(t *testing.T) {
	hanging := func(ctx context.Context, _ trainer.Task, _ int) (fl.Update, error) {
		<-ctx.Done()

		return fl.Update{}, ctx.Err()
	}
	cfg := testConfig(2, 1)
	cfg.RetryLimit = 2
	cfg.RoundTimeout = 200 * time.Millisecond
	pool, fakes := fakePool(t, constant, hanging)

	start := time.Now()
	res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, pkgerrors.ErrQuorumNotReached)
	assert.Equal(t, coordinator.StateFailed, res.State)
	assert.GreaterOrEqual(t, elapsed, cfg.RoundTimeout)
	assert.Less(t, elapsed, 2*cfg.RoundTimeout)
	assert.Equal(t, int32(1), fakes[1].calls.Load())
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, []int{0}, res.Rounds[0].Received)
	assert.Contains(t, res.Rounds[0].Failed, 1)
}

func TestIncrementalClosesAtQuorum(t *testing.T) {
	release := make(chan struct{})
	blocked := func(ctx context.Context, task trainer.Task, call int) (fl.Update, error) {
		select {
		case <-release:
			return constant(ctx, task, call)
		case <-ctx.Done():
			return fl.Update{}, ctx.Err()
		}
	}
	defer close(release)

	cfg := testConfig(3, 1)
	cfg.Policy = fl.Incremental
	cfg.CollectMode = coordinator.Quorum
	cfg.QuorumFraction = 0.3
	pool, _ := fakePool(t, constant, blocked, blocked)

	res, err := coordinator.New(cfg, testSpec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), blobs(t, 30))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Rounds[0].Received)
	// The first update is taken as is.
	for _, tensor := range res.Params.Tensors {
		for _, v := range tensor.Data {
			assert.Equal(t, 1.0, v)
		}
	}
}

func TestCancellation(t *testing.T) {
	cases := []struct {
		desc  string
		mode  coordinator.CancelMode
		state coordinator.State
		err   error
	}{
		{desc: "graceful returns round one parameters", mode: coordinator.Graceful, state: coordinator.StateCancelled},
		{desc: "strict returns cancelled", mode: coordinator.Abort, state: coordinator.StateCancelled, err: pkgerrors.ErrCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := testConfig(2, 5)
			cfg.CancelMode = tc.mode
			pool, err := worker.NewLocalPool(2)
			require.NoError(t, err)
			history := storage.NewInMemoryHistory()

			c := coordinator.New(cfg, testSpec(), pool,
				coordinator.WithLogger(logger),
				coordinator.WithHistory(history),
				coordinator.WithRoundHook(func(rs fl.RoundState) {
					if rs.Round == 1 {
						cancel()
					}
				}),
			)
			res, err := c.Fit(ctx, blobs(t, 40))
			assert.Equal(t, tc.state, res.State)
			assert.Equal(t, tc.state, c.State())
			require.Len(t, res.Rounds, 1)
			assert.Equal(t, uint64(1), res.Params.Version)

			round1, gerr := history.GetParameters(context.Background(), c.FitID(), 1)
			require.NoError(t, gerr)
			assert.Equal(t, round1, res.Params)
			_, gerr = history.GetParameters(context.Background(), c.FitID(), 2)
			assert.ErrorIs(t, gerr, pkgerrors.ErrNotFound)

			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestFitRejectsInvalidInput(t *testing.T) {
	pool, err := worker.NewLocalPool(2)
	require.NoError(t, err)

	badRows, err := dataset.NewTable("", "", []dataset.Row{
		{Features: []float64{1, 2, 3, 4}, Label: 5},
		{Features: []float64{1, 2, 3, 4}, Label: 0},
	})
	require.NoError(t, err)

	cases := []struct {
		desc string
		cfg  coordinator.Config
		spec func() model.Spec
		ds   dataset.Dataset
		err  error
	}{
		{
			desc: "invalid config",
			cfg:  testConfig(0, 1),
			spec: testSpec,
			ds:   blobs(t, 10),
			err:  pkgerrors.ErrInvalidConfiguration,
		},
		{
			desc: "more workers than rows",
			cfg:  testConfig(20, 1),
			spec: testSpec,
			ds:   blobs(t, 10),
			err:  pkgerrors.ErrInvalidConfiguration,
		},
		{
			desc: "feature dimension differs from spec",
			cfg:  testConfig(2, 1),
			spec: func() model.Spec {
				s := testSpec()
				s.InputDim = 3

				return s
			},
			ds:  blobs(t, 10),
			err: pkgerrors.ErrInvalidConfiguration,
		},
		{
			desc: "label outside class range",
			cfg:  testConfig(2, 1),
			spec: testSpec,
			ds:   badRows,
			err:  pkgerrors.ErrInvalidConfiguration,
		},
		{
			desc: "unknown engine",
			cfg:  testConfig(2, 1),
			spec: func() model.Spec {
				s := testSpec()
				s.Engine = "gbdt"

				return s
			},
			ds:  blobs(t, 10),
			err: pkgerrors.ErrUnknownEngine,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := coordinator.New(tc.cfg, tc.spec(), pool, coordinator.WithLogger(logger)).Fit(context.Background(), tc.ds)
			assert.ErrorIs(t, err, tc.err)
			assert.Equal(t, coordinator.StateFailed, res.State)
			var rerr *pkgerrors.RoundError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, 0, rerr.Round)
		})
	}
}
