package badger

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
)

// Keys are zero padded so that badger's byte order is round and version order.
const (
	roundKeyFormat = "round:%s:%010d"
	modelKeyFormat = "model:%s:%020d"
	roundKeyPrefix = "round:%s:"
)

// History stores rounds and parameter versions as JSON values.
type History struct {
	db *Database
}

func NewHistory(db *Database) *History {
	return &History{db: db}
}

func (r *History) SaveParameters(ctx context.Context, fitID string, set params.Set) error {
	if fitID == "" {
		return pkgerrors.ErrEmptyKey
	}
	val, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(fmt.Appendf(nil, modelKeyFormat, fitID, set.Version), val)
}

func (r *History) GetParameters(ctx context.Context, fitID string, version uint64) (params.Set, error) {
	val, err := r.db.get(fmt.Appendf(nil, modelKeyFormat, fitID, version))
	if err != nil {
		return params.Set{}, err
	}
	var set params.Set
	if err := json.Unmarshal(val, &set); err != nil {
		return params.Set{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return set, nil
}

func (r *History) SaveRound(ctx context.Context, fitID string, state fl.RoundState) error {
	if fitID == "" {
		return pkgerrors.ErrEmptyKey
	}
	val, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(fmt.Appendf(nil, roundKeyFormat, fitID, state.Round), val)
}

func (r *History) ListRounds(ctx context.Context, fitID string, offset, limit uint64) ([]fl.RoundState, uint64, error) {
	values, total, err := r.db.page(fmt.Appendf(nil, roundKeyPrefix, fitID), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	rounds := make([]fl.RoundState, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &rounds[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return rounds, total, nil
}
