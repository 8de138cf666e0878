package worker

import (
	"context"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/trainer"
)

var _ Worker = (*Local)(nil)

// Local trains in the calling process.
type Local struct {
	id string
}

// NewLocal returns a Local worker. An empty id is replaced by a generated name.
func NewLocal(id string) *Local {
	if id == "" {
		id = namegenerator.NewGenerator().Generate()
	}

	return &Local{id: id}
}

func (l *Local) ID() string {
	return l.id
}

func (l *Local) Train(ctx context.Context, task trainer.Task) (fl.Update, error) {
	u, err := trainer.Train(ctx, task)
	if err != nil {
		return fl.Update{}, err
	}
	u.WorkerID = l.id

	return u, nil
}
