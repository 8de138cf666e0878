package storage_test

import (
	"context"
	"testing"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStorage()

	cases := []struct {
		desc string
		op   func() error
		err  error
	}{
		{desc: "create", op: func() error { return s.Create(ctx, "b", 2) }},
		{desc: "create second", op: func() error { return s.Create(ctx, "a", 1) }},
		{desc: "create duplicate", op: func() error { return s.Create(ctx, "a", 3) }, err: pkgerrors.ErrEntityExists},
		{desc: "create empty key", op: func() error { return s.Create(ctx, "", 3) }, err: pkgerrors.ErrEmptyKey},
		{desc: "update", op: func() error { return s.Update(ctx, "a", 10) }},
		{desc: "update missing", op: func() error { return s.Update(ctx, "z", 10) }, err: pkgerrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.ErrorIs(t, tc.op(), tc.err)
		})
	}

	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	all, total, err := s.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	assert.Equal(t, []any{10, 2}, all)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		desc   string
		cfg    storage.Config
		closer bool
		err    bool
	}{
		{desc: "memory", cfg: storage.Config{Type: "memory"}},
		{desc: "file", cfg: storage.Config{Type: "file", FilePath: dir + "/files"}},
		{desc: "badger", cfg: storage.Config{Type: "badger", BadgerPath: dir + "/badger"}, closer: true},
		{desc: "unknown", cfg: storage.Config{Type: "etcd"}, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			b, err := storage.NewBackend(tc.cfg)
			if tc.err {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			if tc.closer {
				require.NotNil(t, b.Closer)
				defer b.Closer.Close()
			}
			exerciseHistory(t, b.History)
		})
	}
}

func exerciseHistory(t *testing.T, h storage.History) {
	t.Helper()
	ctx := context.Background()

	set := params.Set{Version: 4, Tensors: []params.Tensor{{Name: "w", Shape: []int{2}, Data: []float64{1, 2}}}}
	require.NoError(t, h.SaveParameters(ctx, "fit-a", set))
	got, err := h.GetParameters(ctx, "fit-a", 4)
	require.NoError(t, err)
	assert.Equal(t, set, got)

	_, err = h.GetParameters(ctx, "fit-a", 5)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	for _, r := range []int{2, 1} {
		require.NoError(t, h.SaveRound(ctx, "fit-a", fl.RoundState{FitID: "fit-a", Round: r, Outcome: fl.OutcomeAggregated}))
	}
	rounds, total, err := h.ListRounds(ctx, "fit-a", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	require.Len(t, rounds, 2)
	assert.Equal(t, 1, rounds[0].Round)
	assert.Equal(t, 2, rounds[1].Round)
}
