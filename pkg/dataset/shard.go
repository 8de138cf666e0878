package dataset

import (
	"fmt"
	"math/rand/v2"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

// Shard is an immutable view over the rows assigned to one worker.
type Shard struct {
	ID   int   `json:"id"   cbor:"id"`
	Data []Row `json:"rows" cbor:"rows"`
}

func NewShard(id int, rows []Row) Shard {
	return Shard{ID: id, Data: rows}
}

func (s Shard) Len() int {
	return len(s.Data)
}

func (s Shard) Row(i int) Row {
	return s.Data[i]
}

// Rows returns a copy of the row headers; feature slices are shared and must
// not be written to.
func (s Shard) Rows() []Row {
	return append([]Row(nil), s.Data...)
}

// Split shuffles the shard with seed and holds out floor(len*fraction) rows
// for validation.
func (s Shard) Split(fraction float64, seed uint64) (train, validation []Row) {
	rows := s.Rows()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(rows), func(i, j int) {
		rows[i], rows[j] = rows[j], rows[i]
	})

	n := int(float64(len(rows)) * fraction)

	return rows[n:], rows[:n]
}

// Partition splits ds into numWorkers disjoint shards whose sizes differ by at
// most one row. With shuffle set, row order is permuted deterministically from
// seed before splitting.
func Partition(ds Dataset, numWorkers int, shuffle bool, seed uint64) ([]Shard, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("%w: dataset is empty", pkgerrors.ErrInvalidConfiguration)
	}
	if numWorkers < 1 {
		return nil, fmt.Errorf("%w: num_workers must be at least 1, got %d", pkgerrors.ErrInvalidConfiguration, numWorkers)
	}
	n := ds.Len()
	if numWorkers > n {
		return nil, fmt.Errorf("%w: num_workers %d exceeds %d rows", pkgerrors.ErrInvalidConfiguration, numWorkers, n)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if shuffle {
		rng := rand.New(rand.NewPCG(seed, ^seed))
		rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	base, extra := n/numWorkers, n%numWorkers
	shards := make([]Shard, numWorkers)
	start := 0
	for w := 0; w < numWorkers; w++ {
		size := base
		if w < extra {
			size++
		}
		rows := make([]Row, size)
		for i := 0; i < size; i++ {
			rows[i] = ds.Row(order[start+i])
		}
		shards[w] = NewShard(w, rows)
		start += size
	}

	return shards, nil
}
