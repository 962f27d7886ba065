// Package preprocess fits and applies the scaling and encoding step
// between the feature frame and the anomaly model. A fitted
// Preprocessor is part of the saved model artifact so inference uses
// the exact parameters learned at training time.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/feature"
)

// ErrEmptyFrame is returned when fitting against a frame with no rows.
var ErrEmptyFrame = errors.New("preprocess: cannot fit on an empty frame")

// StandardScaler standardizes columns to zero mean and unit variance.
// Zero-variance columns keep a scale of 1 so they pass through
// unchanged after centering.
type StandardScaler struct {
	Columns []string
	Mean    []float64
	Scale   []float64
}

// FitScaler computes per-column mean and scale over the frame.
func FitScaler(f *feature.Frame, columns []string) *StandardScaler {
	s := &StandardScaler{
		Columns: append([]string(nil), columns...),
		Mean:    make([]float64, len(columns)),
		Scale:   make([]float64, len(columns)),
	}
	for j, col := range columns {
		vals, ok := f.Numeric(col)
		if !ok {
			s.Scale[j] = 1
			continue
		}
		var sum float64
		for _, v := range vals {
			sum += v
		}
		mean := sum / float64(len(vals))
		var sq float64
		for _, v := range vals {
			d := v - mean
			sq += d * d
		}
		std := math.Sqrt(sq / float64(len(vals)))
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Index returns the position of a column in the scaler, or -1.
func (s *StandardScaler) Index(col string) int {
	for j, c := range s.Columns {
		if c == col {
			return j
		}
	}
	return -1
}

// Apply standardizes a single value for the column at index j.
func (s *StandardScaler) Apply(j int, v float64) float64 {
	return (v - s.Mean[j]) / s.Scale[j]
}

// LabelEncoder maps distinct string values to stable integer codes in
// first-encountered order. The first class doubles as the fallback
// code for values never seen during fitting.
type LabelEncoder struct {
	Classes []string
}

// FitEncoder builds an encoder over the observed values.
func FitEncoder(vals []string) *LabelEncoder {
	e := &LabelEncoder{}
	seen := make(map[string]bool)
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			e.Classes = append(e.Classes, v)
		}
	}
	return e
}

// Code returns the integer code for a value and whether the value was
// seen during fitting. Unseen values take the fallback code 0.
func (e *LabelEncoder) Code(v string) (int, bool) {
	for i, c := range e.Classes {
		if c == v {
			return i, true
		}
	}
	return 0, false
}

// Preprocessor bundles the fitted scaler and encoders together with
// the column partition they were fitted on.
type Preprocessor struct {
	Scaler      *StandardScaler
	Encoders    map[string]*LabelEncoder
	Numerical   []string
	Categorical []string
	Boolean     []string
}

// Fit learns scaling and encoding parameters from a training frame.
// Numerical coverage is the raw numerical set plus every derived
// numerical column present in the frame.
func Fit(f *feature.Frame) (*Preprocessor, error) {
	if f == nil || f.Len() == 0 {
		return nil, ErrEmptyFrame
	}

	var numerical []string
	for _, col := range feature.RawNumerical {
		if f.Has(col) {
			numerical = append(numerical, col)
		}
	}
	for _, col := range feature.DerivedNumerical {
		if f.Has(col) {
			numerical = append(numerical, col)
		}
	}

	p := &Preprocessor{
		Scaler:    FitScaler(f, numerical),
		Encoders:  make(map[string]*LabelEncoder),
		Numerical: numerical,
	}
	for _, col := range feature.Categorical {
		vals, ok := f.Labels(col)
		if !ok {
			continue
		}
		p.Encoders[col] = FitEncoder(vals)
		p.Categorical = append(p.Categorical, col)
	}
	for _, col := range feature.Boolean {
		if f.Has(col) {
			p.Boolean = append(p.Boolean, col)
		}
	}
	return p, nil
}

// TransformReport records what Transform had to improvise: columns
// missing from the frame that were zero-filled (or defaulted), and
// categorical values never seen during fitting.
type TransformReport struct {
	MissingColumns []string
	UnseenValues   map[string]int
}

// Transform produces the model input matrix for the named features, in
// order. Missing columns are filled with their declared default (zero
// when none is declared) and reported rather than failing the row.
func (p *Preprocessor) Transform(f *feature.Frame, featureNames []string) ([][]float64, *TransformReport, error) {
	if f == nil || f.Len() == 0 {
		return nil, nil, ErrEmptyFrame
	}
	n := f.Len()
	report := &TransformReport{UnseenValues: make(map[string]int)}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, len(featureNames))
	}

	for j, name := range featureNames {
		switch {
		case p.Encoders[name] != nil:
			enc := p.Encoders[name]
			labels, ok := f.Labels(name)
			if !ok {
				report.MissingColumns = append(report.MissingColumns, name)
				continue
			}
			for i := 0; i < n; i++ {
				code, seen := enc.Code(labels[i])
				if !seen {
					report.UnseenValues[name]++
				}
				matrix[i][j] = float64(code)
			}
		default:
			vals, ok := f.Numeric(name)
			if !ok {
				report.MissingColumns = append(report.MissingColumns, name)
				def := feature.OptionalDefaults[name]
				for i := 0; i < n; i++ {
					matrix[i][j] = p.scaled(name, def)
				}
				continue
			}
			si := p.Scaler.Index(name)
			for i := 0; i < n; i++ {
				if si >= 0 {
					matrix[i][j] = p.Scaler.Apply(si, vals[i])
				} else {
					matrix[i][j] = vals[i]
				}
			}
		}
	}
	return matrix, report, nil
}

// scaled standardizes a default value when the column is covered by
// the scaler.
func (p *Preprocessor) scaled(name string, v float64) float64 {
	if si := p.Scaler.Index(name); si >= 0 {
		return p.Scaler.Apply(si, v)
	}
	return v
}

// Validate checks that a fitted preprocessor can serve the given
// feature list. It does not require full coverage, only that at least
// one feature is servable.
func (p *Preprocessor) Validate(featureNames []string) error {
	if p.Scaler == nil {
		return fmt.Errorf("preprocess: scaler not fitted")
	}
	if len(featureNames) == 0 {
		return fmt.Errorf("preprocess: empty feature list")
	}
	return nil
}
