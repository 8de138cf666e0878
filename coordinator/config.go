package coordinator

import (
	"fmt"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
)

type CollectMode string

const (
	// Strict fails a round when any shard is missing after retries.
	Strict CollectMode = "strict"
	// Quorum closes a round once QuorumFraction of the shards reported.
	Quorum CollectMode = "quorum"
)

type CancelMode string

const (
	// Graceful returns the latest published parameters when cancelled.
	Graceful CancelMode = "graceful"
	// Abort returns ErrCancelled.
	Abort CancelMode = "strict"
)

type Config struct {
	NumWorkers         int           `toml:"num_workers"`
	Epochs             int           `toml:"epochs"`
	Rounds             int           `toml:"rounds"`
	BatchSize          int           `toml:"batch_size"`
	ValidationFraction float64       `toml:"validation_fraction"`
	Policy             fl.Policy     `toml:"policy"`
	Decay              float64       `toml:"decay"`
	CollectMode        CollectMode   `toml:"collect_mode"`
	QuorumFraction     float64       `toml:"quorum_fraction"`
	RetryLimit         int           `toml:"retry_limit"`
	RetryInterval      time.Duration `toml:"retry_interval"`
	RoundTimeout       time.Duration `toml:"round_timeout"`
	CancelMode         CancelMode    `toml:"cancel_mode"`
	Shuffle            bool          `toml:"shuffle"`
	ReshuffleEachRound bool          `toml:"reshuffle_each_round"`
	// Parallelism caps concurrently running tasks. Zero means one per shard.
	Parallelism int    `toml:"parallelism"`
	Seed        uint64 `toml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		NumWorkers:     1,
		Epochs:         1,
		Rounds:         1,
		BatchSize:      32,
		Policy:         fl.DefPolicy,
		Decay:          fl.DefDecay,
		CollectMode:    Strict,
		QuorumFraction: 1,
		RetryLimit:     2,
		RetryInterval:  100 * time.Millisecond,
		RoundTimeout:   5 * time.Minute,
		CancelMode:     Graceful,
		Shuffle:        true,
		Seed:           42,
	}
}

func (c Config) Validate() error {
	switch {
	case c.NumWorkers < 1:
		return fmt.Errorf("%w: num_workers must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, c.NumWorkers)
	case c.Epochs < 1:
		return fmt.Errorf("%w: epochs must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, c.Epochs)
	case c.Rounds < 1:
		return fmt.Errorf("%w: rounds must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, c.Rounds)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, c.BatchSize)
	case c.ValidationFraction < 0 || c.ValidationFraction >= 1:
		return fmt.Errorf("%w: validation_fraction must be in [0, 1), got %g", pkgerrors.ErrInvalidConfiguration, c.ValidationFraction)
	case c.QuorumFraction <= 0 || c.QuorumFraction > 1:
		return fmt.Errorf("%w: quorum_fraction must be in (0, 1], got %g", pkgerrors.ErrInvalidConfiguration, c.QuorumFraction)
	case c.RetryLimit < 0:
		return fmt.Errorf("%w: retry_limit must not be negative", pkgerrors.ErrInvalidConfiguration)
	case c.RetryInterval < 0:
		return fmt.Errorf("%w: retry_interval must not be negative", pkgerrors.ErrInvalidConfiguration)
	case c.RoundTimeout <= 0:
		return fmt.Errorf("%w: round_timeout must be positive", pkgerrors.ErrInvalidConfiguration)
	case c.Parallelism < 0:
		return fmt.Errorf("%w: parallelism must not be negative", pkgerrors.ErrInvalidConfiguration)
	}

	switch c.CollectMode {
	case Strict, Quorum:
	default:
		return fmt.Errorf("%w: unknown collect mode %q", pkgerrors.ErrInvalidConfiguration, c.CollectMode)
	}
	switch c.CancelMode {
	case Graceful, Abort:
	default:
		return fmt.Errorf("%w: unknown cancel mode %q", pkgerrors.ErrInvalidConfiguration, c.CancelMode)
	}
	if _, err := fl.NewAggregator(c.Policy, c.Decay); err != nil {
		return err
	}

	return nil
}

// required is the number of updates that closes a round over n shards.
func (c Config) required(n int) int {
	if c.CollectMode == Strict {
		return n
	}
	// ceil(q*n), tolerant of products such as 0.6*5.
	r := int(c.QuorumFraction * float64(n))
	if float64(r) < c.QuorumFraction*float64(n)-1e-9 {
		r++
	}

	return max(r, 1)
}
