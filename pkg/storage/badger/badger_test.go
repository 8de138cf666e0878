package badger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
	"github.com/absmach/cohort/pkg/storage/badger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *badger.Database

func TestMain(m *testing.M) {
	tmpDir := os.TempDir()
	dbPath := filepath.Join(tmpDir, "badger_test_"+uuid.NewString())

	var err error
	testDB, err = badger.NewDatabase(dbPath)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	os.RemoveAll(dbPath)

	os.Exit(code)
}

func testSet(version uint64) params.Set {
	return params.Set{
		Version: version,
		Tensors: []params.Tensor{
			{Name: "dense_0/kernel", Shape: []int{2, 1}, Data: []float64{0.25, -1.5}},
			{Name: "dense_0/bias", Shape: []int{1}, Data: []float64{float64(version)}},
		},
	}
}

func TestHistory_Parameters(t *testing.T) {
	repo := badger.NewHistory(testDB)
	fitID := uuid.NewString()

	for v := uint64(0); v < 3; v++ {
		require.NoError(t, repo.SaveParameters(context.Background(), fitID, testSet(v)))
	}

	cases := []struct {
		desc    string
		fitID   string
		version uint64
		want    params.Set
		err     error
	}{
		{
			desc:    "get initial version",
			fitID:   fitID,
			version: 0,
			want:    testSet(0),
		},
		{
			desc:    "get latest version",
			fitID:   fitID,
			version: 2,
			want:    testSet(2),
		},
		{
			desc:    "get unpublished version",
			fitID:   fitID,
			version: 3,
			err:     pkgerrors.ErrNotFound,
		},
		{
			desc:    "get from unknown fit",
			fitID:   uuid.NewString(),
			version: 0,
			err:     pkgerrors.ErrNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := repo.GetParameters(context.Background(), tc.fitID, tc.version)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	err := repo.SaveParameters(context.Background(), "", testSet(0))
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyKey)
}

func TestHistory_ListRounds(t *testing.T) {
	repo := badger.NewHistory(testDB)
	fitID := uuid.NewString()
	other := uuid.NewString()

	now := time.Now().UTC().Truncate(time.Millisecond)
	for _, r := range []int{10, 2, 1, 3} {
		require.NoError(t, repo.SaveRound(context.Background(), fitID, fl.RoundState{
			FitID:     fitID,
			Round:     r,
			Version:   uint64(r),
			Outcome:   fl.OutcomeAggregated,
			Received:  []int{0, 1},
			StartTime: now,
			EndTime:   now,
		}))
	}
	require.NoError(t, repo.SaveRound(context.Background(), other, fl.RoundState{FitID: other, Round: 1}))

	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		rounds []int
	}{
		{desc: "list all rounds in order", offset: 0, limit: 10, rounds: []int{1, 2, 3, 10}},
		{desc: "list with offset", offset: 2, limit: 10, rounds: []int{3, 10}},
		{desc: "list with limit", offset: 1, limit: 2, rounds: []int{2, 3}},
		{desc: "list past the end", offset: 4, limit: 10, rounds: nil},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, total, err := repo.ListRounds(context.Background(), fitID, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(4), total)
			var rounds []int
			for _, r := range got {
				assert.Equal(t, fitID, r.FitID)
				assert.True(t, now.Equal(r.StartTime))
				rounds = append(rounds, r.Round)
			}
			assert.Equal(t, tc.rounds, rounds)
		})
	}
}
