package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
	"github.com/absmach/cohort/pkg/trainer"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	errRoundTimeout = errors.New("round timeout elapsed")
	errRoundClosed  = errors.New("round closed before shard reported")
)

type taskResult struct {
	shard  int
	tries  int
	update fl.Update
	err    error
}

// collection is what one round's dispatch produced.
type collection struct {
	updates []fl.Update
	failed  map[int]error
	stale   int
	tries   int
}

// runRound broadcasts base to every shard and returns the next published
// set. Each shard gets at most RetryLimit+1 tries and the whole round shares
// one RoundTimeout deadline.
func (c *Coordinator) runRound(ctx context.Context, round int, base params.Set, shards []dataset.Shard) (params.Set, fl.RoundState, error) {
	rs := fl.RoundState{
		FitID:       c.fitID,
		Round:       round,
		BaseVersion: base.Version,
		Required:    c.cfg.required(len(shards)),
		Failed:      make(map[int]string),
		StartTime:   time.Now().UTC(),
	}
	for _, s := range shards {
		rs.Dispatched = append(rs.Dispatched, s.ID)
	}
	finish := func(outcome fl.Outcome) {
		rs.Outcome = outcome
		rs.EndTime = time.Now().UTC()
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	c.transition(StateRoundDispatch)
	col, err := c.collect(rctx, round, base, shards, rs.Required)
	received := col.updates
	rs.Attempts = col.tries
	rs.Stale = col.stale
	for id, ferr := range col.failed {
		rs.Failed[id] = ferr.Error()
	}
	if err != nil {
		finish(fl.OutcomeFailed)

		return params.Set{}, rs, err
	}

	for _, u := range received {
		rs.Received = append(rs.Received, u.ShardID)
	}
	sort.Ints(rs.Received)

	if len(received) < rs.Required {
		finish(fl.OutcomeFailed)
		err := fmt.Errorf("%w: %d of %d updates after %d tries", pkgerrors.ErrQuorumNotReached, len(received), rs.Required, rs.Attempts)
		if len(received) == 0 {
			err = errors.Join(pkgerrors.ErrNoUpdatesReceived, err)
		}

		return params.Set{}, rs, err
	}

	c.transition(StateRoundAggregate)
	if c.agg.Policy() != fl.Incremental {
		slices.SortFunc(received, func(a, b fl.Update) int {
			return a.ShardID - b.ShardID
		})
	}
	next, err := c.agg.Aggregate(base, received)
	if err != nil {
		finish(fl.OutcomeFailed)

		return params.Set{}, rs, err
	}
	if !next.Finite() {
		finish(fl.OutcomeFailed)

		return params.Set{}, rs, fmt.Errorf("%w: aggregated parameters", pkgerrors.ErrNumericDivergence)
	}
	if err := c.history.SaveParameters(ctx, c.fitID, next); err != nil {
		finish(fl.OutcomeFailed)

		return params.Set{}, rs, fmt.Errorf("failed to save parameters: %w", err)
	}

	rs.Version = next.Version
	rs.Metrics = meanMetrics(received)
	finish(fl.OutcomeAggregated)

	c.logger.Info("round completed",
		slog.String("fit_id", c.fitID),
		slog.Int("round", round),
		slog.Uint64("version", next.Version),
		slog.Int("received", len(received)),
		slog.Int("dispatched", len(shards)),
		slog.Int("attempts", rs.Attempts),
		slog.Any("metrics", rs.Metrics),
		slog.String("duration", rs.EndTime.Sub(rs.StartTime).String()),
	)

	return next, rs, nil
}

// collect dispatches one task per shard and gathers results until need
// updates arrived, every task reported or ctx expired. Shards that have not
// reported by then are skipped and their late results dropped.
func (c *Coordinator) collect(ctx context.Context, round int, base params.Set, shards []dataset.Shard, need int) (collection, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan taskResult, len(shards))
	g := &errgroup.Group{}
	if c.cfg.Parallelism > 0 {
		g.SetLimit(c.cfg.Parallelism)
	}
	go func() {
		for _, s := range shards {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					results <- taskResult{shard: s.ID, err: err}

					return nil
				}
				u, tries, err := c.train(ctx, round, base, s)
				results <- taskResult{shard: s.ID, tries: tries, update: u, err: err}

				return nil
			})
		}
	}()

	c.transition(StateRoundCollect)
	col := collection{failed: make(map[int]error)}
	reported := make(map[int]bool, len(shards))
	skip := func(reason error) {
		for _, s := range shards {
			if !reported[s.ID] {
				col.failed[s.ID] = reason
			}
		}
	}
	for range shards {
		select {
		case <-ctx.Done():
			skip(errRoundTimeout)
			c.logger.Warn("round timeout elapsed",
				slog.String("fit_id", c.fitID),
				slog.Int("round", round),
				slog.Int("reported", len(reported)),
				slog.Int("dispatched", len(shards)),
			)

			return col, nil
		case r := <-results:
			reported[r.shard] = true
			col.tries = max(col.tries, r.tries)
			switch {
			case r.err != nil:
				if !pkgerrors.Recoverable(r.err) {
					return col, fmt.Errorf("shard %d: %w", r.shard, r.err)
				}
				col.failed[r.shard] = r.err
			case r.update.BaseVersion != base.Version:
				col.stale++
				col.failed[r.shard] = fmt.Errorf("%w: got %d, want %d", pkgerrors.ErrVersionMismatch, r.update.BaseVersion, base.Version)
			default:
				col.updates = append(col.updates, r.update)
				if len(col.updates) >= need {
					skip(errRoundClosed)
					if len(reported) < len(shards) {
						c.logger.Info("round closed at quorum",
							slog.String("fit_id", c.fitID),
							slog.Int("round", round),
							slog.Int("received", len(col.updates)),
							slog.Int("dispatched", len(shards)),
						)
					}

					return col, nil
				}
			}
		}
	}

	return col, nil
}

// train runs one shard's task on its assigned worker, retrying recoverable
// failures with exponential backoff. It returns the number of tries made.
func (c *Coordinator) train(ctx context.Context, round int, base params.Set, shard dataset.Shard) (fl.Update, int, error) {
	w := c.pool.Assign(shard.ID)
	task := trainer.Task{
		FitID:              c.fitID,
		Round:              round,
		Spec:               c.spec,
		Snapshot:           base,
		Shard:              shard,
		Epochs:             c.cfg.Epochs,
		BatchSize:          c.cfg.BatchSize,
		ValidationFraction: c.cfg.ValidationFraction,
		Seed:               taskSeed(c.cfg.Seed, round, shard.ID),
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInterval
	eb.MaxInterval = max(c.cfg.RetryInterval*16, c.cfg.RetryInterval)

	tries := 0
	op := func() (fl.Update, error) {
		if err := ctx.Err(); err != nil {
			return fl.Update{}, backoff.Permanent(err)
		}
		tries++
		t := task
		t.ID = uuid.NewString()
		u, err := w.Train(ctx, t)
		if err == nil {
			u.Round = round
			u.ShardID = shard.ID
			if u.WorkerID == "" {
				u.WorkerID = w.ID()
			}

			return u, nil
		}
		if !pkgerrors.Recoverable(err) || ctx.Err() != nil {
			return fl.Update{}, backoff.Permanent(err)
		}
		c.logger.Warn("training task failed",
			slog.String("fit_id", c.fitID),
			slog.Int("round", round),
			slog.Int("shard", shard.ID),
			slog.String("worker", w.ID()),
			slog.Int("attempt", tries),
			slog.Any("error", err),
		)

		return fl.Update{}, err
	}

	u, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(c.cfg.RetryLimit+1)),
	)

	return u, tries, err
}

func taskSeed(seed uint64, round, shard int) uint64 {
	return seed ^ (uint64(round) * 0x9e3779b97f4a7c15) ^ (uint64(shard+1) * 0xbf58476d1ce4e5b9)
}

// meanMetrics averages the update metrics weighted by training samples.
func meanMetrics(updates []fl.Update) map[string]float64 {
	sums := make(map[string]float64)
	weights := make(map[string]float64)
	for _, u := range updates {
		w := float64(max(u.NumSamples, 1))
		for k, v := range u.Metrics {
			sums[k] += w * v
			weights[k] += w
		}
	}
	for k := range sums {
		sums[k] /= weights[k]
	}

	return sums
}
