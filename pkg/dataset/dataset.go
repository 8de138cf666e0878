package dataset

import (
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

const (
	DefFeatureColumn = "features"
	DefLabelColumn   = "label"
)

// Row is one labeled example. For categorical models Label holds the class
// index; for regression it holds the target value.
type Row struct {
	Features []float64 `json:"features" cbor:"features"`
	Label    float64   `json:"label"    cbor:"label"`
}

// Dataset is the tabular view the coordinator consumes from data ingestion.
type Dataset interface {
	Len() int
	Row(i int) Row
	NumFeatures() int
	// NumLabels is the number of distinct labels, used to size the output layer.
	NumLabels() int
	Columns() (feature, label string)
}

var _ Dataset = (*Table)(nil)

// Table is an in-memory Dataset. Rows are treated as read-only once added.
type Table struct {
	featureCol string
	labelCol   string
	rows       []Row
	dim        int
	labels     int
}

func NewTable(featureCol, labelCol string, rows []Row) (*Table, error) {
	if featureCol == "" {
		featureCol = DefFeatureColumn
	}
	if labelCol == "" {
		labelCol = DefLabelColumn
	}

	t := &Table{
		featureCol: featureCol,
		labelCol:   labelCol,
		rows:       append([]Row(nil), rows...),
	}

	distinct := make(map[float64]struct{})
	for i, r := range t.rows {
		if i == 0 {
			t.dim = len(r.Features)
		}
		if len(r.Features) != t.dim {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", pkgerrors.ErrShapeMismatch, i, len(r.Features), t.dim)
		}
		distinct[r.Label] = struct{}{}
	}
	t.labels = len(distinct)

	return t, nil
}

func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) Row(i int) Row {
	return t.rows[i]
}

func (t *Table) NumFeatures() int {
	return t.dim
}

func (t *Table) NumLabels() int {
	return t.labels
}

func (t *Table) Columns() (string, string) {
	return t.featureCol, t.labelCol
}

// Rows copies the dataset's rows into a slice.
func Rows(ds Dataset) []Row {
	out := make([]Row, ds.Len())
	for i := range out {
		out[i] = ds.Row(i)
	}

	return out
}
