// Package dense is a small fully connected network engine. It exists so the
// coordinator can be exercised end to end without an external numeric runtime.
package dense

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/params"
)

const (
	Name = "dense"

	defLearningRate = 0.05
)

func init() {
	model.Register(New())
}

// Architecture is the JSON layout of the spec's architecture blob.
type Architecture struct {
	Hidden []int `json:"hidden"`
}

func EncodeArchitecture(hidden ...int) []byte {
	data, _ := json.Marshal(Architecture{Hidden: hidden})

	return data
}

var _ model.Engine = (*engine)(nil)

type engine struct{}

func New() model.Engine {
	return &engine{}
}

func (e *engine) Name() string {
	return Name
}

func (e *engine) Init(spec model.Spec, seed uint64) (params.Set, error) {
	sizes, err := layerSizes(spec)
	if err != nil {
		return params.Set{}, err
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	set := params.Set{Version: 0}
	for l := 0; l+1 < len(sizes); l++ {
		in, out := sizes[l], sizes[l+1]
		k := params.NewTensor(kernelName(l), in, out)
		limit := math.Sqrt(6 / float64(in))
		for i := range k.Data {
			k.Data[i] = (rng.Float64()*2 - 1) * limit
		}
		set.Tensors = append(set.Tensors, k, params.NewTensor(biasName(l), out))
	}

	return set, nil
}

func (e *engine) Step(spec model.Spec, set params.Set, batch []dataset.Row) (float64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	net, err := bind(spec, set)
	if err != nil {
		return 0, err
	}

	grads := net.zeroGrads()
	var total float64
	for _, row := range batch {
		loss, err := net.backprop(spec, row, grads)
		if err != nil {
			return 0, err
		}
		total += loss
	}

	loss := total / float64(len(batch))
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, pkgerrors.ErrNumericDivergence
	}

	lr := spec.Hyper(model.HyperLearningRate, defLearningRate)
	l2 := spec.Hyper(model.HyperL2, 0)
	scale := 1 / float64(len(batch))
	for l, ly := range net.layers {
		g := grads[l]
		for i := range ly.w {
			ly.w[i] -= lr * (g.w[i]*scale + l2*ly.w[i])
		}
		for j := range ly.b {
			ly.b[j] -= lr * g.b[j] * scale
		}
	}

	return loss, nil
}

func (e *engine) Forward(spec model.Spec, set params.Set, features []float64) ([]float64, error) {
	if len(features) != spec.InputDim {
		return nil, fmt.Errorf("%w: got %d features, want %d", pkgerrors.ErrShapeMismatch, len(features), spec.InputDim)
	}
	net, err := bind(spec, set)
	if err != nil {
		return nil, err
	}
	_, z := net.forward(features)
	if spec.Mode == model.Categorical {
		return softmax(z), nil
	}

	return z, nil
}

func (e *engine) Evaluate(spec model.Spec, set params.Set, rows []dataset.Row) (float64, float64, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}
	net, err := bind(spec, set)
	if err != nil {
		return 0, 0, err
	}

	var total float64
	var correct int
	for _, row := range rows {
		if len(row.Features) != spec.InputDim {
			return 0, 0, fmt.Errorf("%w: got %d features, want %d", pkgerrors.ErrShapeMismatch, len(row.Features), spec.InputDim)
		}
		_, z := net.forward(row.Features)
		switch spec.Mode {
		case model.Categorical:
			y, err := classOf(spec, row)
			if err != nil {
				return 0, 0, err
			}
			total += logSumExp(z) - z[y]
			if argmax(z) == y {
				correct++
			}
		default:
			d := z[0] - row.Label
			total += 0.5 * d * d
		}
	}

	loss := total / float64(len(rows))
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, 0, pkgerrors.ErrNumericDivergence
	}

	return loss, float64(correct) / float64(len(rows)), nil
}

func layerSizes(spec model.Spec) ([]int, error) {
	var arch Architecture
	if len(spec.Architecture) > 0 {
		if err := json.Unmarshal(spec.Architecture, &arch); err != nil {
			return nil, fmt.Errorf("%w: invalid dense architecture: %w", pkgerrors.ErrInvalidConfiguration, err)
		}
	}
	if spec.InputDim < 1 || spec.NumClasses < 1 {
		return nil, fmt.Errorf("%w: input and output dimensions must be positive", pkgerrors.ErrInvalidConfiguration)
	}

	sizes := []int{spec.InputDim}
	for _, h := range arch.Hidden {
		if h < 1 {
			return nil, fmt.Errorf("%w: hidden layer size %d", pkgerrors.ErrInvalidConfiguration, h)
		}
		sizes = append(sizes, h)
	}

	return append(sizes, spec.NumClasses), nil
}

func kernelName(l int) string {
	return fmt.Sprintf("dense_%d/kernel", l)
}

func biasName(l int) string {
	return fmt.Sprintf("dense_%d/bias", l)
}

func classOf(spec model.Spec, row dataset.Row) (int, error) {
	y := int(row.Label)
	if y < 0 || y >= spec.NumClasses || float64(y) != row.Label {
		return 0, fmt.Errorf("%w: label %v is not a class index below %d", pkgerrors.ErrInvalidConfiguration, row.Label, spec.NumClasses)
	}

	return y, nil
}
