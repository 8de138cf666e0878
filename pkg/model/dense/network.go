package dense

import (
	"fmt"
	"math"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/params"
)

// layer aliases the tensor storage of a Set; w is row-major [in][out].
type layer struct {
	in, out int
	w, b    []float64
}

type network struct {
	layers []layer
}

type grad struct {
	w, b []float64
}

func bind(spec model.Spec, set params.Set) (network, error) {
	sizes, err := layerSizes(spec)
	if err != nil {
		return network{}, err
	}
	n := len(sizes) - 1
	if len(set.Tensors) != 2*n {
		return network{}, fmt.Errorf("%w: dense network needs %d tensors, got %d", pkgerrors.ErrParameterShapeMismatch, 2*n, len(set.Tensors))
	}

	net := network{layers: make([]layer, n)}
	for l := 0; l < n; l++ {
		in, out := sizes[l], sizes[l+1]
		k, b := set.Tensors[2*l], set.Tensors[2*l+1]
		if k.Name != kernelName(l) || len(k.Shape) != 2 || k.Shape[0] != in || k.Shape[1] != out || len(k.Data) != in*out {
			return network{}, fmt.Errorf("%w: tensor %q %v, want %q [%d %d]", pkgerrors.ErrParameterShapeMismatch, k.Name, k.Shape, kernelName(l), in, out)
		}
		if b.Name != biasName(l) || len(b.Shape) != 1 || b.Shape[0] != out || len(b.Data) != out {
			return network{}, fmt.Errorf("%w: tensor %q %v, want %q [%d]", pkgerrors.ErrParameterShapeMismatch, b.Name, b.Shape, biasName(l), out)
		}
		net.layers[l] = layer{in: in, out: out, w: k.Data, b: b.Data}
	}

	return net, nil
}

func (n network) zeroGrads() []grad {
	g := make([]grad, len(n.layers))
	for l, ly := range n.layers {
		g[l] = grad{w: make([]float64, len(ly.w)), b: make([]float64, len(ly.b))}
	}

	return g
}

// forward returns the input of every layer and the raw output logits.
func (n network) forward(x []float64) ([][]float64, []float64) {
	acts := make([][]float64, 0, len(n.layers))
	a := x
	last := len(n.layers) - 1
	for l, ly := range n.layers {
		acts = append(acts, a)
		z := make([]float64, ly.out)
		copy(z, ly.b)
		for i := 0; i < ly.in; i++ {
			ai := a[i]
			if ai == 0 {
				continue
			}
			row := ly.w[i*ly.out : (i+1)*ly.out]
			for j := range z {
				z[j] += ai * row[j]
			}
		}
		if l < last {
			for j := range z {
				if z[j] < 0 {
					z[j] = 0
				}
			}
		}
		a = z
	}

	return acts, a
}

// backprop accumulates the gradient of one example's loss into grads.
func (n network) backprop(spec model.Spec, row dataset.Row, grads []grad) (float64, error) {
	if len(row.Features) != spec.InputDim {
		return 0, fmt.Errorf("%w: got %d features, want %d", pkgerrors.ErrShapeMismatch, len(row.Features), spec.InputDim)
	}
	acts, z := n.forward(row.Features)

	var loss float64
	delta := make([]float64, len(z))
	switch spec.Mode {
	case model.Categorical:
		y, err := classOf(spec, row)
		if err != nil {
			return 0, err
		}
		loss = logSumExp(z) - z[y]
		p := softmax(z)
		copy(delta, p)
		delta[y]--
	default:
		d := z[0] - row.Label
		loss = 0.5 * d * d
		delta[0] = d
	}

	for l := len(n.layers) - 1; l >= 0; l-- {
		ly, g, a := n.layers[l], grads[l], acts[l]
		for i := 0; i < ly.in; i++ {
			ai := a[i]
			if ai == 0 {
				continue
			}
			gw := g.w[i*ly.out : (i+1)*ly.out]
			for j, d := range delta {
				gw[j] += ai * d
			}
		}
		for j, d := range delta {
			g.b[j] += d
		}
		if l == 0 {
			break
		}
		prev := make([]float64, ly.in)
		for i := 0; i < ly.in; i++ {
			// ReLU passes gradient only where the activation was positive.
			if a[i] <= 0 {
				continue
			}
			row := ly.w[i*ly.out : (i+1)*ly.out]
			var s float64
			for j, d := range delta {
				s += row[j] * d
			}
			prev[i] = s
		}
		delta = prev
	}

	return loss, nil
}

func logSumExp(z []float64) float64 {
	m := math.Inf(-1)
	for _, v := range z {
		m = math.Max(m, v)
	}
	var s float64
	for _, v := range z {
		s += math.Exp(v - m)
	}

	return m + math.Log(s)
}

func softmax(z []float64) []float64 {
	lse := logSumExp(z)
	p := make([]float64, len(z))
	for i, v := range z {
		p[i] = math.Exp(v - lse)
	}

	return p
}

func argmax(z []float64) int {
	best := 0
	for i := range z {
		if z[i] > z[best] {
			best = i
		}
	}

	return best
}
