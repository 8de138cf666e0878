package fl_test

import (
	"testing"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/params"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSet(version uint64) params.Set {
	return params.Set{
		Version: version,
		Tensors: []params.Tensor{
			{Name: "w", Shape: []int{2, 2}, Data: []float64{0, 0, 0, 0}},
			{Name: "b", Shape: []int{2}, Data: []float64{0, 0}},
		},
	}
}

func update(shard int, version uint64, samples int, w []float64, b []float64) fl.Update {
	return fl.Update{
		ShardID:     shard,
		BaseVersion: version,
		NumSamples:  samples,
		Params: params.Set{
			Version: version,
			Tensors: []params.Tensor{
				{Name: "w", Shape: []int{2, 2}, Data: w},
				{Name: "b", Shape: []int{2}, Data: b},
			},
		},
	}
}

func TestNewAggregator(t *testing.T) {
	cases := []struct {
		desc   string
		policy fl.Policy
		decay  float64
		want   fl.Policy
		err    error
	}{
		{desc: "simple", policy: fl.SimpleAverage, want: fl.SimpleAverage},
		{desc: "weighted", policy: fl.WeightedAverage, want: fl.WeightedAverage},
		{desc: "default is weighted", policy: "", want: fl.WeightedAverage},
		{desc: "incremental", policy: fl.Incremental, decay: 0.5, want: fl.Incremental},
		{desc: "incremental without decay", policy: fl.Incremental, decay: 0, err: pkgerrors.ErrInvalidConfiguration},
		{desc: "unknown", policy: "median", err: pkgerrors.ErrInvalidConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			agg, err := fl.NewAggregator(tc.policy, tc.decay)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, agg.Policy())
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := fl.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, fl.DefPolicy, p)

	p, err = fl.ParsePolicy("incremental")
	require.NoError(t, err)
	assert.Equal(t, fl.Incremental, p)

	_, err = fl.ParsePolicy("fedprox")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfiguration)
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		desc    string
		agg     fl.Aggregator
		updates []fl.Update
		w       []float64
		b       []float64
		err     error
	}{
		{
			desc: "simple average ignores samples",
			agg:  fl.NewSimpleAggregator(),
			updates: []fl.Update{
				update(0, 3, 10, []float64{1, 2, 3, 4}, []float64{1, 1}),
				update(1, 3, 30, []float64{3, 4, 5, 6}, []float64{3, 3}),
			},
			w: []float64{2, 3, 4, 5},
			b: []float64{2, 2},
		},
		{
			desc: "weighted average uses samples",
			agg:  fl.NewFedAvgAggregator(),
			updates: []fl.Update{
				update(0, 3, 10, []float64{1, 2, 3, 4}, []float64{1, 1}),
				update(1, 3, 30, []float64{3, 4, 5, 6}, []float64{3, 3}),
			},
			w: []float64{2.5, 3.5, 4.5, 5.5},
			b: []float64{2.5, 2.5},
		},
		{
			desc: "weighted average without samples falls back to simple",
			agg:  fl.NewFedAvgAggregator(),
			updates: []fl.Update{
				update(0, 3, 0, []float64{1, 1, 1, 1}, []float64{0, 0}),
				update(1, 3, 0, []float64{3, 3, 3, 3}, []float64{2, 2}),
			},
			w: []float64{2, 2, 2, 2},
			b: []float64{1, 1},
		},
		{
			desc: "no updates",
			agg:  fl.NewFedAvgAggregator(),
			err:  pkgerrors.ErrNoUpdatesReceived,
		},
		{
			desc: "stale update",
			agg:  fl.NewSimpleAggregator(),
			updates: []fl.Update{
				update(0, 3, 1, []float64{1, 1, 1, 1}, []float64{0, 0}),
				update(1, 2, 1, []float64{1, 1, 1, 1}, []float64{0, 0}),
			},
			err: pkgerrors.ErrVersionMismatch,
		},
		{
			desc: "wrong tensor shape",
			agg:  fl.NewFedAvgAggregator(),
			updates: []fl.Update{
				update(0, 3, 1, []float64{1, 1, 1, 1}, []float64{0, 0}),
				update(1, 3, 1, []float64{1, 1, 1, 1}, []float64{0, 0, 0}),
			},
			err: pkgerrors.ErrParameterShapeMismatch,
		},
		{
			desc: "negative samples",
			agg:  fl.NewFedAvgAggregator(),
			updates: []fl.Update{
				update(0, 3, -1, []float64{1, 1, 1, 1}, []float64{0, 0}),
			},
			err: pkgerrors.ErrInvalidData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			base := baseSet(3)
			got, err := tc.agg.Aggregate(base, tc.updates)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				assert.Equal(t, baseSet(3), base)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(4), got.Version)
			assert.InDeltaSlice(t, tc.w, got.Tensors[0].Data, 1e-12)
			assert.InDeltaSlice(t, tc.b, got.Tensors[1].Data, 1e-12)
		})
	}
}

func TestShapeMismatchLeavesBaseUnpublished(t *testing.T) {
	base := baseSet(7)
	base.Tensors[0].Data = []float64{9, 9, 9, 9}
	bad := update(0, 7, 5, []float64{1, 2, 3}, []float64{0, 0})
	bad.Params.Tensors[0].Shape = []int{3}

	got, err := fl.NewFedAvgAggregator().Aggregate(base, []fl.Update{bad})
	require.ErrorIs(t, err, pkgerrors.ErrParameterShapeMismatch)
	assert.Equal(t, params.Set{}, got)
	assert.Equal(t, uint64(7), base.Version)
	assert.Equal(t, []float64{9, 9, 9, 9}, base.Tensors[0].Data)
}

func TestIncrementalAggregate(t *testing.T) {
	agg, err := fl.NewIncrementalAggregator(0.5)
	require.NoError(t, err)

	base := baseSet(0)
	got, err := agg.Aggregate(base, []fl.Update{
		update(1, 0, 10, []float64{4, 4, 4, 4}, []float64{2, 2}),
		update(0, 0, 10, []float64{8, 8, 8, 8}, []float64{6, 6}),
	})
	require.NoError(t, err)

	// First update wins outright, the second is mixed in at half weight.
	assert.Equal(t, uint64(1), got.Version)
	assert.InDeltaSlice(t, []float64{6, 6, 6, 6}, got.Tensors[0].Data, 1e-12)
	assert.InDeltaSlice(t, []float64{4, 4}, got.Tensors[1].Data, 1e-12)
	assert.Equal(t, []float64{0, 0}, base.Tensors[1].Data)
}

func TestAggregationProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("simple average of identical updates is idempotent", prop.ForAll(
		func(n int, w []float64, b0, b1 float64) bool {
			updates := make([]fl.Update, n)
			for i := range updates {
				updates[i] = update(i, 2, i+1, append([]float64(nil), w...), []float64{b0, b1})
			}
			got, err := fl.NewSimpleAggregator().Aggregate(baseSet(2), updates)
			if err != nil {
				return false
			}
			want := updates[0].Params.WithVersion(3)
			for ti := range want.Tensors {
				for i := range want.Tensors[ti].Data {
					if got.Tensors[ti].Data[i] != want.Tensors[ti].Data[i] {
						return false
					}
				}
			}

			return got.Version == 3
		},
		gen.IntRange(1, 12),
		gen.SliceOfN(4, gen.Float64Range(-1e6, 1e6)),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("weighted average of two updates matches the closed form", prop.ForAll(
		func(w1, w2 int, v1, v2 []float64) bool {
			got, err := fl.NewFedAvgAggregator().Aggregate(baseSet(0), []fl.Update{
				update(0, 0, w1, v1, []float64{v1[0], v1[1]}),
				update(1, 0, w2, v2, []float64{v2[0], v2[1]}),
			})
			if err != nil {
				return false
			}
			for i := range v1 {
				want := (float64(w1)*v1[i] + float64(w2)*v2[i]) / float64(w1+w2)
				diff := got.Tensors[0].Data[i] - want
				if diff > 1e-6 || diff < -1e-6 {
					return false
				}
			}

			return true
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
		gen.SliceOfN(4, gen.Float64Range(-1000, 1000)),
		gen.SliceOfN(4, gen.Float64Range(-1000, 1000)),
	))

	properties.Property("every aggregation advances the version by exactly one", prop.ForAll(
		func(start uint64, rounds int) bool {
			agg := fl.NewFedAvgAggregator()
			cur := baseSet(start)
			seen := map[uint64]bool{start: true}
			for r := 0; r < rounds; r++ {
				next, err := agg.Aggregate(cur, []fl.Update{
					update(0, cur.Version, 3, []float64{1, 2, 3, 4}, []float64{5, 6}),
				})
				if err != nil || next.Version != cur.Version+1 || seen[next.Version] {
					return false
				}
				seen[next.Version] = true
				cur = next
			}

			return true
		},
		gen.UInt64Range(0, 1<<40),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
