package feature

import "fmt"

// Frame is a column-oriented table of engineered features. Columns
// keep their insertion order so the same build always produces the
// same layout.
type Frame struct {
	n       int
	order   []string
	numeric map[string][]float64
	labels  map[string][]string
}

// NewFrame creates a frame with capacity for n rows.
func NewFrame(n int) *Frame {
	return &Frame{
		n:       n,
		numeric: make(map[string][]float64),
		labels:  make(map[string][]string),
	}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether the column exists, numeric or label.
func (f *Frame) Has(name string) bool {
	_, num := f.numeric[name]
	_, lab := f.labels[name]
	return num || lab
}

// SetNumeric stores a numeric column.
func (f *Frame) SetNumeric(name string, vals []float64) error {
	if len(vals) != f.n {
		return fmt.Errorf("column %s: got %d values, frame has %d rows", name, len(vals), f.n)
	}
	if !f.Has(name) {
		f.order = append(f.order, name)
	}
	f.numeric[name] = vals
	return nil
}

// SetLabels stores a string column.
func (f *Frame) SetLabels(name string, vals []string) error {
	if len(vals) != f.n {
		return fmt.Errorf("column %s: got %d values, frame has %d rows", name, len(vals), f.n)
	}
	if !f.Has(name) {
		f.order = append(f.order, name)
	}
	f.labels[name] = vals
	return nil
}

// Numeric returns a numeric column.
func (f *Frame) Numeric(name string) ([]float64, bool) {
	v, ok := f.numeric[name]
	return v, ok
}

// Labels returns a string column.
func (f *Frame) Labels(name string) ([]string, bool) {
	v, ok := f.labels[name]
	return v, ok
}

// At returns the numeric value at row i, or 0 when the column does not
// exist.
func (f *Frame) At(name string, i int) float64 {
	if v, ok := f.numeric[name]; ok && i < len(v) {
		return v[i]
	}
	return 0
}
