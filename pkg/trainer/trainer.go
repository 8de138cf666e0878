// Package trainer runs local gradient training for one shard.
package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/params"
)

// Task is everything a worker needs for one local training run. It is sent
// by value; the worker never shares it with the coordinator again.
type Task struct {
	ID                 string        `json:"id"                  cbor:"id"`
	FitID              string        `json:"fit_id"              cbor:"fit_id"`
	Round              int           `json:"round"               cbor:"round"`
	Spec               model.Spec    `json:"spec"                cbor:"spec"`
	Snapshot           params.Set    `json:"snapshot"            cbor:"snapshot"`
	Shard              dataset.Shard `json:"shard"               cbor:"shard"`
	Epochs             int           `json:"epochs"              cbor:"epochs"`
	BatchSize          int           `json:"batch_size"          cbor:"batch_size"`
	ValidationFraction float64       `json:"validation_fraction" cbor:"validation_fraction"`
	Seed               uint64        `json:"seed"                cbor:"seed"`
}

func (t Task) Validate() error {
	switch {
	case t.Epochs < 1:
		return fmt.Errorf("%w: epochs must be positive", pkgerrors.ErrInvalidConfiguration)
	case t.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be positive", pkgerrors.ErrInvalidConfiguration)
	case t.ValidationFraction < 0 || t.ValidationFraction >= 1:
		return fmt.Errorf("%w: validation fraction must be in [0, 1)", pkgerrors.ErrInvalidConfiguration)
	}

	return nil
}

// Train resolves the engine named by the task's spec and runs TrainLocal.
func Train(ctx context.Context, task Task) (fl.Update, error) {
	engine, err := model.Lookup(task.Spec.Engine)
	if err != nil {
		return fl.Update{}, err
	}

	return TrainLocal(ctx, engine, task)
}

// TrainLocal runs task.Epochs passes of mini-batch updates over the shard's
// training split, starting from a private copy of task.Snapshot.
func TrainLocal(ctx context.Context, engine model.Engine, task Task) (fl.Update, error) {
	if err := task.Validate(); err != nil {
		return fl.Update{}, err
	}

	train, validation := task.Shard.Split(task.ValidationFraction, task.Seed)
	if len(train) == 0 {
		return fl.Update{}, fmt.Errorf("%w: shard %d has %d rows, %d held out", pkgerrors.ErrShardEmpty, task.Shard.ID, task.Shard.Len(), len(validation))
	}

	local := task.Snapshot.Clone()
	rng := rand.New(rand.NewPCG(task.Seed, uint64(task.Shard.ID)+1))

	var epochLoss float64
	for epoch := 0; epoch < task.Epochs; epoch++ {
		rng.Shuffle(len(train), func(i, j int) {
			train[i], train[j] = train[j], train[i]
		})

		var sum float64
		var batches int
		for start := 0; start < len(train); start += task.BatchSize {
			if err := ctx.Err(); err != nil {
				return fl.Update{}, err
			}
			end := min(start+task.BatchSize, len(train))
			loss, err := engine.Step(task.Spec, local, train[start:end])
			if err != nil {
				return fl.Update{}, fmt.Errorf("shard %d epoch %d: %w", task.Shard.ID, epoch, err)
			}
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return fl.Update{}, fmt.Errorf("shard %d epoch %d: %w", task.Shard.ID, epoch, pkgerrors.ErrNumericDivergence)
			}
			sum += loss
			batches++
		}
		epochLoss = sum / float64(batches)
	}

	if !local.Finite() {
		return fl.Update{}, fmt.Errorf("shard %d: %w: parameters", task.Shard.ID, pkgerrors.ErrNumericDivergence)
	}

	metrics := map[string]float64{fl.MetricTrainLoss: epochLoss}
	if len(validation) > 0 {
		loss, acc, err := engine.Evaluate(task.Spec, local, validation)
		if err != nil {
			return fl.Update{}, fmt.Errorf("shard %d validation: %w", task.Shard.ID, err)
		}
		metrics[fl.MetricValLoss] = loss
		if task.Spec.Mode == model.Categorical {
			metrics[fl.MetricValAccuracy] = acc
		}
	}

	return fl.Update{
		FitID:       task.FitID,
		Round:       task.Round,
		ShardID:     task.Shard.ID,
		BaseVersion: task.Snapshot.Version,
		NumSamples:  len(train),
		Params:      local,
		Metrics:     metrics,
		ReceivedAt:  time.Now().UTC(),
	}, nil
}
