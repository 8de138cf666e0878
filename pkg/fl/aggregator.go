package fl

import (
	"fmt"
	"math"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/params"
)

// NewAggregator returns the aggregator for policy. decay is only used by the
// incremental policy.
func NewAggregator(policy Policy, decay float64) (Aggregator, error) {
	switch policy {
	case SimpleAverage:
		return NewSimpleAggregator(), nil
	case WeightedAverage, "":
		return NewFedAvgAggregator(), nil
	case Incremental:
		return NewIncrementalAggregator(decay)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownPolicy, policy)
	}
}

type FedAvgAggregator struct {
	weighted bool
}

// NewFedAvgAggregator averages updates weighted by their sample counts.
func NewFedAvgAggregator() Aggregator {
	return &FedAvgAggregator{weighted: true}
}

// NewSimpleAggregator averages updates ignoring sample counts.
func NewSimpleAggregator() Aggregator {
	return &FedAvgAggregator{weighted: false}
}

func (f *FedAvgAggregator) Policy() Policy {
	if f.weighted {
		return WeightedAverage
	}

	return SimpleAverage
}

func (f *FedAvgAggregator) Aggregate(base params.Set, updates []Update) (params.Set, error) {
	if err := check(base, updates); err != nil {
		return params.Set{}, err
	}

	weights := make([]float64, len(updates))
	var totalSamples int64
	for i, u := range updates {
		if int64(u.NumSamples) > math.MaxInt64-totalSamples {
			return params.Set{}, ErrOverflow
		}
		totalSamples += int64(u.NumSamples)
		weights[i] = 1
		if f.weighted {
			weights[i] = float64(u.NumSamples)
		}
	}
	// With no samples reported at all every update counts equally.
	if f.weighted && totalSamples == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}

	out := base.WithVersion(base.Version + 1)
	for ti := range out.Tensors {
		data := out.Tensors[ti].Data
		for i := range data {
			data[i] = 0
		}
		// Running weighted mean: identical inputs reproduce themselves exactly.
		var seen float64
		for ui, u := range updates {
			w := weights[ui]
			if w == 0 {
				continue
			}
			seen += w
			frac := w / seen
			src := u.Params.Tensors[ti].Data
			for i := range data {
				data[i] += frac * (src[i] - data[i])
			}
		}
	}

	return out, nil
}

type IncrementalAggregator struct {
	decay float64
}

// NewIncrementalAggregator merges updates one at a time in arrival order. The
// i-th update is mixed in with weight decay^i, so the first update replaces the
// base outright and later ones move it progressively less.
func NewIncrementalAggregator(decay float64) (Aggregator, error) {
	if decay <= 0 || decay > 1 || math.IsNaN(decay) {
		return nil, fmt.Errorf("%w: decay must be in (0, 1], got %v", pkgerrors.ErrInvalidConfiguration, decay)
	}

	return &IncrementalAggregator{decay: decay}, nil
}

func (a *IncrementalAggregator) Policy() Policy {
	return Incremental
}

func (a *IncrementalAggregator) Aggregate(base params.Set, updates []Update) (params.Set, error) {
	if err := check(base, updates); err != nil {
		return params.Set{}, err
	}

	out := base.WithVersion(base.Version + 1)
	alpha := 1.0
	for _, u := range updates {
		for ti := range out.Tensors {
			data := out.Tensors[ti].Data
			src := u.Params.Tensors[ti].Data
			if alpha == 1 {
				copy(data, src)

				continue
			}
			for i := range data {
				data[i] += alpha * (src[i] - data[i])
			}
		}
		alpha *= a.decay
	}

	return out, nil
}

// check rejects the whole batch before anything is computed, so a bad update
// never yields a partially aggregated Set.
func check(base params.Set, updates []Update) error {
	if len(updates) == 0 {
		return ErrNoUpdates
	}
	for _, u := range updates {
		if u.BaseVersion != base.Version {
			return fmt.Errorf("%w: shard %d trained on version %d, base is %d", pkgerrors.ErrVersionMismatch, u.ShardID, u.BaseVersion, base.Version)
		}
		if u.NumSamples < 0 {
			return fmt.Errorf("%w: shard %d reported %d samples", pkgerrors.ErrInvalidData, u.ShardID, u.NumSamples)
		}
		if err := base.SameShape(u.Params); err != nil {
			return fmt.Errorf("shard %d: %w", u.ShardID, err)
		}
	}

	return nil
}
