package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
)

type inMemoryStorage struct {
	sync.Mutex

	data map[string]any
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string]any),
	}
}

func (s *inMemoryStorage) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; ok {
		return errors.ErrEntityExists
	}

	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if val, ok := s.data[key]; ok {
		return val, nil
	}

	return nil, errors.ErrNotFound
}

func (s *inMemoryStorage) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		return errors.ErrNotFound
	}

	s.data[key] = value

	return nil
}

// List pages through values in key order.
func (s *inMemoryStorage) List(_ context.Context, offset, limit uint64) (result []any, total uint64, err error) {
	s.Lock()
	defer s.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total = uint64(len(keys))
	if offset >= total {
		return nil, total, nil
	}

	end := min(offset+limit, total)

	result = make([]any, end-offset)
	for i := offset; i < end; i++ {
		result[i-offset] = s.data[keys[i]]
	}

	return result, total, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	delete(s.data, key)

	return nil
}

type inMemoryHistory struct {
	mu     sync.RWMutex
	models map[string]map[uint64]params.Set
	rounds map[string]map[int]fl.RoundState
}

func NewInMemoryHistory() History {
	return &inMemoryHistory{
		models: make(map[string]map[uint64]params.Set),
		rounds: make(map[string]map[int]fl.RoundState),
	}
}

func (h *inMemoryHistory) SaveParameters(_ context.Context, fitID string, set params.Set) error {
	if fitID == "" {
		return errors.ErrEmptyKey
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	versions, ok := h.models[fitID]
	if !ok {
		versions = make(map[uint64]params.Set)
		h.models[fitID] = versions
	}
	versions[set.Version] = set.Clone()

	return nil
}

func (h *inMemoryHistory) GetParameters(_ context.Context, fitID string, version uint64) (params.Set, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.models[fitID][version]
	if !ok {
		return params.Set{}, errors.ErrNotFound
	}

	return set.Clone(), nil
}

func (h *inMemoryHistory) SaveRound(_ context.Context, fitID string, state fl.RoundState) error {
	if fitID == "" {
		return errors.ErrEmptyKey
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rounds, ok := h.rounds[fitID]
	if !ok {
		rounds = make(map[int]fl.RoundState)
		h.rounds[fitID] = rounds
	}
	rounds[state.Round] = state

	return nil
}

func (h *inMemoryHistory) ListRounds(_ context.Context, fitID string, offset, limit uint64) ([]fl.RoundState, uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rounds := h.rounds[fitID]
	ids := make([]int, 0, len(rounds))
	for r := range rounds {
		ids = append(ids, r)
	}
	sort.Ints(ids)

	total := uint64(len(ids))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)

	result := make([]fl.RoundState, 0, end-offset)
	for _, r := range ids[offset:end] {
		result = append(result, rounds[r])
	}

	return result, total, nil
}
