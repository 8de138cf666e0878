package fl

import (
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/params"
)

// Update is the result of one local training run. It is consumed exactly once
// by an Aggregator.
type Update struct {
	FitID       string             `json:"fit_id"            cbor:"fit_id"`
	Round       int                `json:"round"             cbor:"round"`
	ShardID     int                `json:"shard_id"          cbor:"shard_id"`
	WorkerID    string             `json:"worker_id"         cbor:"worker_id"`
	BaseVersion uint64             `json:"base_version"      cbor:"base_version"`
	NumSamples  int                `json:"num_samples"       cbor:"num_samples"`
	Params      params.Set         `json:"params"            cbor:"params"`
	Metrics     map[string]float64 `json:"metrics,omitempty" cbor:"metrics,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"       cbor:"received_at"`
}

const (
	MetricTrainLoss   = "train_loss"
	MetricValLoss     = "val_loss"
	MetricValAccuracy = "val_accuracy"
)

type Policy string

const (
	SimpleAverage   Policy = "simple"
	WeightedAverage Policy = "weighted"
	Incremental     Policy = "incremental"

	DefPolicy = WeightedAverage
	DefDecay  = 0.5
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case SimpleAverage, WeightedAverage, Incremental:
		return p, nil
	case "":
		return DefPolicy, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownPolicy, s)
	}
}

// Aggregator combines the updates of one round into the next global Set.
// The result carries version base.Version+1; base itself is never modified.
type Aggregator interface {
	Policy() Policy
	Aggregate(base params.Set, updates []Update) (params.Set, error)
}

type Outcome string

const (
	OutcomeAggregated Outcome = "aggregated"
	OutcomeFailed     Outcome = "failed"
)

// RoundState is the bookkeeping of one broadcast-train-aggregate cycle.
type RoundState struct {
	FitID       string             `json:"fit_id"`
	Round       int                `json:"round"`
	BaseVersion uint64             `json:"base_version"`
	Version     uint64             `json:"version,omitempty"`
	// Attempts is the largest number of tries any shard used.
	Attempts    int                `json:"attempts"`
	Required    int                `json:"required"`
	Dispatched  []int              `json:"dispatched"`
	Received    []int              `json:"received"`
	Failed      map[int]string     `json:"failed,omitempty"`
	Stale       int                `json:"stale"`
	Outcome     Outcome            `json:"outcome"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
}
