package storage

import (
	"context"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
)

type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	List(ctx context.Context, offset, limit uint64) ([]any, uint64, error)
	Delete(ctx context.Context, key string) error
}

// History records every published parameter version and every round of a
// fit. Rounds are listed in round order.
type History interface {
	SaveParameters(ctx context.Context, fitID string, set params.Set) error
	GetParameters(ctx context.Context, fitID string, version uint64) (params.Set, error)
	SaveRound(ctx context.Context, fitID string, state fl.RoundState) error
	ListRounds(ctx context.Context, fitID string, offset, limit uint64) ([]fl.RoundState, uint64, error)
}
