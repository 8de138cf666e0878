// Package predictor wraps a fitted parameter set for local inference.
package predictor

import (
	"fmt"
	"io"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/model"
	"github.com/absmach/cohort/pkg/params"
	"github.com/fxamacker/cbor/v2"
)

// Predictor is immutable and safe for concurrent use. It needs nothing but
// its spec and parameters: no workers, no network.
type Predictor struct {
	spec   model.Spec
	params params.Set
	engine model.Engine
}

type Prediction struct {
	// Output is the class distribution, or the single regression value.
	Output []float64 `json:"output"`
	Label  float64   `json:"label"`
	Actual float64   `json:"actual,omitempty"`
}

// New copies spec and set and checks that set matches the shapes spec
// declares.
func New(spec model.Spec, set params.Set) (*Predictor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	engine, err := model.Lookup(spec.Engine)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	ref, err := engine.Init(spec, 0)
	if err != nil {
		return nil, err
	}
	if err := ref.SameShape(set); err != nil {
		return nil, err
	}

	return &Predictor{
		spec:   spec.Clone(),
		params: set.Clone(),
		engine: engine,
	}, nil
}

func (p *Predictor) Predict(features []float64) ([]float64, error) {
	if len(features) != p.spec.InputDim {
		return nil, fmt.Errorf("%w: got %d features, want %d", pkgerrors.ErrShapeMismatch, len(features), p.spec.InputDim)
	}

	return p.engine.Forward(p.spec, p.params, features)
}

// PredictLabel returns the most likely class index, or the regression value.
func (p *Predictor) PredictLabel(features []float64) (float64, error) {
	out, err := p.Predict(features)
	if err != nil {
		return 0, err
	}

	return label(p.spec.Mode, out), nil
}

// Transform predicts every row of ds in order.
func (p *Predictor) Transform(ds dataset.Dataset) ([]Prediction, error) {
	preds := make([]Prediction, ds.Len())
	for i := range preds {
		row := ds.Row(i)
		out, err := p.Predict(row.Features)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		preds[i] = Prediction{
			Output: out,
			Label:  label(p.spec.Mode, out),
			Actual: row.Label,
		}
	}

	return preds, nil
}

// Evaluate returns the mean loss over ds and, for categorical models, the
// accuracy.
func (p *Predictor) Evaluate(ds dataset.Dataset) (loss, accuracy float64, err error) {
	return p.engine.Evaluate(p.spec, p.params, dataset.Rows(ds))
}

func (p *Predictor) Version() uint64 {
	return p.params.Version
}

func (p *Predictor) Spec() model.Spec {
	return p.spec.Clone()
}

func (p *Predictor) Params() params.Set {
	return p.params.Clone()
}

func label(mode model.Mode, out []float64) float64 {
	if mode != model.Categorical {
		return out[0]
	}
	best := 0
	for i, v := range out {
		if v > out[best] {
			best = i
		}
	}

	return float64(best)
}

type bundle struct {
	FormatVersion int        `cbor:"format_version"`
	Spec          model.Spec `cbor:"spec"`
	Params        params.Set `cbor:"params"`
}

// Save writes the predictor as a CBOR bundle.
func (p *Predictor) Save(w io.Writer) error {
	return cbor.NewEncoder(w).Encode(bundle{
		FormatVersion: model.FormatVersion,
		Spec:          p.spec,
		Params:        p.params,
	})
}

func Load(r io.Reader) (*Predictor, error) {
	var b bundle
	if err := cbor.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}
	if b.FormatVersion != model.FormatVersion {
		return nil, fmt.Errorf("%w: unsupported bundle format version %d", pkgerrors.ErrInvalidConfiguration, b.FormatVersion)
	}

	return New(b.Spec, b.Params)
}
