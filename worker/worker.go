// Package worker runs local training tasks, either in process or on remote
// agents reached over MQTT.
package worker

import (
	"context"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/trainer"
)

// Worker trains one shard from a snapshot and returns its Update. A Worker
// never holds a reference to the coordinator's global parameters.
type Worker interface {
	ID() string
	Train(ctx context.Context, task trainer.Task) (fl.Update, error)
}

// Pool is a fixed, ordered set of workers. Shard i always goes to worker
// i mod Len().
type Pool struct {
	workers []Worker
}

func NewPool(workers ...Worker) (*Pool, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("%w: worker pool is empty", pkgerrors.ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(workers))
	for _, w := range workers {
		if w == nil {
			return nil, fmt.Errorf("%w: nil worker", pkgerrors.ErrInvalidConfiguration)
		}
		if seen[w.ID()] {
			return nil, fmt.Errorf("%w: duplicate worker %q", pkgerrors.ErrInvalidConfiguration, w.ID())
		}
		seen[w.ID()] = true
	}

	return &Pool{workers: append([]Worker(nil), workers...)}, nil
}

// NewLocalPool builds n in-process workers named worker-0 .. worker-(n-1).
func NewLocalPool(n int) (*Pool, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: num_workers must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, n)
	}
	workers := make([]Worker, n)
	for i := range workers {
		workers[i] = NewLocal(fmt.Sprintf("worker-%d", i))
	}

	return NewPool(workers...)
}

func (p *Pool) Len() int {
	return len(p.workers)
}

func (p *Pool) Assign(shardID int) Worker {
	return p.workers[shardID%len(p.workers)]
}

func (p *Pool) IDs() []string {
	ids := make([]string, len(p.workers))
	for i, w := range p.workers {
		ids[i] = w.ID()
	}

	return ids
}
