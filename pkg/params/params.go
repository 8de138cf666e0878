// Package params holds the versioned tensors that make up a model's trainable
// state. A published Set is never mutated; every change happens on a Clone.
package params

import (
	"fmt"
	"math"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

type Tensor struct {
	Name  string    `json:"name"  cbor:"name"`
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data"  cbor:"data"`
}

type Set struct {
	Version uint64   `json:"version" cbor:"version"`
	Tensors []Tensor `json:"tensors" cbor:"tensors"`
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(name string, shape ...int) Tensor {
	return Tensor{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, size(shape)),
	}
}

func (t Tensor) Size() int {
	return size(t.Shape)
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Name:  t.Name,
		Shape: append([]int(nil), t.Shape...),
		Data:  append([]float64(nil), t.Data...),
	}
}

func (t Tensor) sameShape(o Tensor) bool {
	if t.Name != o.Name || len(t.Shape) != len(o.Shape) || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}

	return true
}

func (s Set) Clone() Set {
	out := Set{
		Version: s.Version,
		Tensors: make([]Tensor, len(s.Tensors)),
	}
	for i := range s.Tensors {
		out.Tensors[i] = s.Tensors[i].Clone()
	}

	return out
}

// WithVersion returns a copy of s carrying version v.
func (s Set) WithVersion(v uint64) Set {
	out := s.Clone()
	out.Version = v

	return out
}

func (s Set) Len() int {
	return len(s.Tensors)
}

// NumValues is the total number of scalars across all tensors.
func (s Set) NumValues() int {
	n := 0
	for i := range s.Tensors {
		n += len(s.Tensors[i].Data)
	}

	return n
}

func (s Set) Tensor(name string) (Tensor, bool) {
	for i := range s.Tensors {
		if s.Tensors[i].Name == name {
			return s.Tensors[i], true
		}
	}

	return Tensor{}, false
}

// SameShape checks that o has the same ordered tensors with identical shapes.
func (s Set) SameShape(o Set) error {
	if len(s.Tensors) != len(o.Tensors) {
		return fmt.Errorf("%w: %d tensors, want %d", pkgerrors.ErrParameterShapeMismatch, len(o.Tensors), len(s.Tensors))
	}
	for i := range s.Tensors {
		if !s.Tensors[i].sameShape(o.Tensors[i]) {
			return fmt.Errorf("%w: tensor %q %v, want %q %v",
				pkgerrors.ErrParameterShapeMismatch,
				o.Tensors[i].Name, o.Tensors[i].Shape,
				s.Tensors[i].Name, s.Tensors[i].Shape)
		}
	}

	return nil
}

// Validate checks that every tensor's data length matches its shape.
func (s Set) Validate() error {
	for _, t := range s.Tensors {
		if len(t.Data) != t.Size() {
			return fmt.Errorf("%w: tensor %q has %d values for shape %v",
				pkgerrors.ErrParameterShapeMismatch, t.Name, len(t.Data), t.Shape)
		}
	}

	return nil
}

// Finite reports whether every value is a finite number.
func (s Set) Finite() bool {
	for i := range s.Tensors {
		for _, v := range s.Tensors[i].Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// size is the element count of shape. A zero-rank shape is a scalar.
func size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return n
}
