// Package model describes trainable models in an engine-agnostic way.
//
// A Spec is the only thing the coordinator knows about a model: it is shipped
// unchanged to every worker, and the Engine named in it interprets the opaque
// architecture blob. Specs are values; callers must not mutate them after a
// fit has started.
package model

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/fxamacker/cbor/v2"
)

// FormatVersion is the current version of the serialized Spec layout.
const FormatVersion = 1

type Mode string

const (
	Categorical Mode = "categorical"
	Regression  Mode = "regression"
)

const (
	LossCrossEntropy = "cross_entropy"
	LossMSE          = "mse"
	OptimizerSGD     = "sgd"

	HyperLearningRate = "learning_rate"
	HyperL2           = "l2"
)

type Spec struct {
	FormatVersion int                `json:"format_version"        cbor:"format_version"`
	Engine        string             `json:"engine"                cbor:"engine"`
	Architecture  []byte             `json:"architecture"          cbor:"architecture"`
	Loss          string             `json:"loss"                  cbor:"loss"`
	Optimizer     string             `json:"optimizer"             cbor:"optimizer"`
	Mode          Mode               `json:"mode"                  cbor:"mode"`
	InputDim      int                `json:"input_dim"             cbor:"input_dim"`
	NumClasses    int                `json:"num_classes"           cbor:"num_classes"`
	Hyperparams   map[string]float64 `json:"hyperparams,omitempty" cbor:"hyperparams,omitempty"`
}

func (s Spec) Validate() error {
	switch {
	case s.FormatVersion != FormatVersion:
		return fmt.Errorf("%w: unsupported spec format version %d", pkgerrors.ErrInvalidConfiguration, s.FormatVersion)
	case s.Engine == "":
		return fmt.Errorf("%w: spec engine is required", pkgerrors.ErrInvalidConfiguration)
	case s.InputDim < 1:
		return fmt.Errorf("%w: input dimension must be positive", pkgerrors.ErrInvalidConfiguration)
	}

	switch s.Mode {
	case Categorical:
		if s.NumClasses < 2 {
			return fmt.Errorf("%w: categorical mode needs at least 2 classes, got %d", pkgerrors.ErrInvalidConfiguration, s.NumClasses)
		}
		if s.Loss != LossCrossEntropy {
			return fmt.Errorf("%w: categorical mode needs %s loss", pkgerrors.ErrInvalidConfiguration, LossCrossEntropy)
		}
	case Regression:
		if s.NumClasses != 1 {
			return fmt.Errorf("%w: regression mode has exactly one output", pkgerrors.ErrInvalidConfiguration)
		}
		if s.Loss != LossMSE {
			return fmt.Errorf("%w: regression mode needs %s loss", pkgerrors.ErrInvalidConfiguration, LossMSE)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", pkgerrors.ErrInvalidConfiguration, s.Mode)
	}

	if s.Optimizer != OptimizerSGD {
		return fmt.Errorf("%w: unknown optimizer %q", pkgerrors.ErrInvalidConfiguration, s.Optimizer)
	}

	return nil
}

// Hyper returns the named hyperparameter or def when it is unset.
func (s Spec) Hyper(name string, def float64) float64 {
	if v, ok := s.Hyperparams[name]; ok {
		return v
	}

	return def
}

func (s Spec) Clone() Spec {
	out := s
	out.Architecture = append([]byte(nil), s.Architecture...)
	if s.Hyperparams != nil {
		out.Hyperparams = make(map[string]float64, len(s.Hyperparams))
		for k, v := range s.Hyperparams {
			out.Hyperparams[k] = v
		}
	}

	return out
}

type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

func Encode(s Spec, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(s)
	case FormatCBOR:
		return cbor.Marshal(s)
	default:
		return nil, fmt.Errorf("%w: unknown spec format %q", pkgerrors.ErrInvalidConfiguration, f)
	}
}

func Decode(data []byte, f Format) (Spec, error) {
	var s Spec
	var err error
	switch f {
	case FormatJSON:
		err = json.Unmarshal(data, &s)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &s)
	default:
		return Spec{}, fmt.Errorf("%w: unknown spec format %q", pkgerrors.ErrInvalidConfiguration, f)
	}
	if err != nil {
		return Spec{}, fmt.Errorf("%w: failed to decode spec: %w", pkgerrors.ErrInvalidConfiguration, err)
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}

	return s, nil
}
