package dense_test

import (
	"testing"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/model/dense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categoricalSpec(hidden ...int) model.Spec {
	return model.Spec{
		FormatVersion: model.FormatVersion,
		Engine:        dense.Name,
		Architecture:  dense.EncodeArchitecture(hidden...),
		Loss:          model.LossCrossEntropy,
		Optimizer:     model.OptimizerSGD,
		Mode:          model.Categorical,
		InputDim:      2,
		NumClasses:    2,
		Hyperparams:   map[string]float64{model.HyperLearningRate: 0.5},
	}
}

func separable() []dataset.Row {
	return []dataset.Row{
		{Features: []float64{1, 0}, Label: 0},
		{Features: []float64{0.9, 0.1}, Label: 0},
		{Features: []float64{0.8, 0}, Label: 0},
		{Features: []float64{0, 1}, Label: 1},
		{Features: []float64{0.1, 0.9}, Label: 1},
		{Features: []float64{0, 0.8}, Label: 1},
	}
}

func TestRegistered(t *testing.T) {
	e, err := model.Lookup(dense.Name)
	require.NoError(t, err)
	assert.Equal(t, dense.Name, e.Name())
	assert.Contains(t, model.Engines(), dense.Name)
}

func TestInit(t *testing.T) {
	e := dense.New()
	spec := categoricalSpec(4)

	a, err := e.Init(spec, 1)
	require.NoError(t, err)
	b, err := e.Init(spec, 1)
	require.NoError(t, err)

	require.Len(t, a.Tensors, 4)
	assert.Equal(t, []int{2, 4}, a.Tensors[0].Shape)
	assert.Equal(t, []int{4}, a.Tensors[1].Shape)
	assert.Equal(t, []int{4, 2}, a.Tensors[2].Shape)
	assert.Equal(t, []int{2}, a.Tensors[3].Shape)
	assert.Equal(t, uint64(0), a.Version)
	assert.Equal(t, a, b)

	spec.Architecture = []byte(`{"hidden":[0]}`)
	_, err = e.Init(spec, 1)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfiguration)
}

func TestStepReducesLoss(t *testing.T) {
	cases := []struct {
		desc   string
		hidden []int
	}{
		{desc: "logistic regression", hidden: nil},
		{desc: "one hidden layer", hidden: []int{8}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			e := dense.New()
			spec := categoricalSpec(tc.hidden...)
			set, err := e.Init(spec, 3)
			require.NoError(t, err)

			before, _, err := e.Evaluate(spec, set, separable())
			require.NoError(t, err)
			for i := 0; i < 200; i++ {
				_, err := e.Step(spec, set, separable())
				require.NoError(t, err)
			}
			after, acc, err := e.Evaluate(spec, set, separable())
			require.NoError(t, err)

			assert.Less(t, after, before)
			assert.Equal(t, 1.0, acc)
		})
	}
}

func TestForward(t *testing.T) {
	e := dense.New()
	spec := categoricalSpec(3)
	set, err := e.Init(spec, 5)
	require.NoError(t, err)

	p, err := e.Forward(spec, set, []float64{0.3, 0.7})
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.InDelta(t, 1.0, p[0]+p[1], 1e-12)

	_, err = e.Forward(spec, set, []float64{1, 2, 3})
	assert.ErrorIs(t, err, pkgerrors.ErrShapeMismatch)

	set.Tensors = set.Tensors[:2]
	_, err = e.Forward(spec, set, []float64{0.3, 0.7})
	assert.ErrorIs(t, err, pkgerrors.ErrParameterShapeMismatch)
}

func TestRegressionStep(t *testing.T) {
	e := dense.New()
	spec := model.Spec{
		FormatVersion: model.FormatVersion,
		Engine:        dense.Name,
		Loss:          model.LossMSE,
		Optimizer:     model.OptimizerSGD,
		Mode:          model.Regression,
		InputDim:      1,
		NumClasses:    1,
		Hyperparams:   map[string]float64{model.HyperLearningRate: 0.1},
	}
	rows := []dataset.Row{
		{Features: []float64{0}, Label: 1},
		{Features: []float64{1}, Label: 3},
		{Features: []float64{2}, Label: 5},
	}
	set, err := e.Init(spec, 1)
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		_, err := e.Step(spec, set, rows)
		require.NoError(t, err)
	}

	out, err := e.Forward(spec, set, []float64{3})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 7.0, out[0], 0.05)
}

func TestStepDiverges(t *testing.T) {
	e := dense.New()
	spec := categoricalSpec()
	spec.Hyperparams[model.HyperLearningRate] = 1e250
	set, err := e.Init(spec, 1)
	require.NoError(t, err)

	rows := []dataset.Row{
		{Features: []float64{1e50, 1e50}, Label: 1},
		{Features: []float64{1e50, 1e50}, Label: 0},
	}
	for i := 0; i < 10 && err == nil; i++ {
		_, err = e.Step(spec, set, rows)
	}
	assert.ErrorIs(t, err, pkgerrors.ErrNumericDivergence)
}

func TestInvalidLabel(t *testing.T) {
	e := dense.New()
	spec := categoricalSpec()
	set, err := e.Init(spec, 1)
	require.NoError(t, err)

	_, err = e.Step(spec, set, []dataset.Row{{Features: []float64{1, 0}, Label: 2}})
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfiguration)
}
