package model

import (
	"math"
	"math/rand"
	"sort"
)

// Gamma selection modes for the RBF kernel, mirroring the usual
// "scale" and "auto" heuristics.
const (
	GammaScale = 0.0
	GammaAuto  = -1.0
)

// maxSupportPoints caps the reference set so scoring stays linear in a
// small constant.
const maxSupportPoints = 256

// OneClassSVM approximates a one-class support vector machine with an
// RBF kernel: the decision value of a sample is its mean kernel
// similarity to a seeded subsample of the training data, offset so
// that roughly a Nu fraction of training points fall below zero.
type OneClassSVM struct {
	Nu        float64
	GammaMode float64 // GammaScale, GammaAuto, or an explicit positive value
	Seed      int64

	Gamma   float64
	Support [][]float64
	Offset  float64
	Dim     int
	Fitted  bool
}

// NewOneClassSVM returns an unfitted detector.
func NewOneClassSVM(nu, gammaMode float64, seed int64) *OneClassSVM {
	return &OneClassSVM{Nu: nu, GammaMode: gammaMode, Seed: seed}
}

// Fit selects the support subsample, resolves gamma and calibrates the
// offset at the Nu quantile of training decision values.
func (m *OneClassSVM) Fit(data [][]float64) error {
	n := len(data)
	if n == 0 {
		return ErrNoData
	}
	m.Dim = len(data[0])
	if m.Dim == 0 {
		return ErrNoData
	}

	switch {
	case m.GammaMode > 0:
		m.Gamma = m.GammaMode
	case m.GammaMode == GammaAuto:
		m.Gamma = 1 / float64(m.Dim)
	default:
		v := totalVariance(data)
		if v == 0 {
			v = 1
		}
		m.Gamma = 1 / (float64(m.Dim) * v)
	}

	rng := rand.New(rand.NewSource(m.Seed))
	if n <= maxSupportPoints {
		m.Support = make([][]float64, n)
		for i, row := range data {
			m.Support[i] = append([]float64(nil), row...)
		}
	} else {
		perm := rng.Perm(n)
		m.Support = make([][]float64, maxSupportPoints)
		for i := 0; i < maxSupportPoints; i++ {
			m.Support[i] = append([]float64(nil), data[perm[i]]...)
		}
	}

	raw := make([]float64, n)
	for i, row := range data {
		raw[i] = m.kernelMean(row)
	}
	sorted := append([]float64(nil), raw...)
	sort.Float64s(sorted)
	m.Offset = quantile(sorted, m.Nu)
	m.Fitted = true
	return nil
}

func (m *OneClassSVM) kernelMean(sample []float64) float64 {
	var total float64
	for _, s := range m.Support {
		var d2 float64
		for j := range s {
			d := sample[j] - s[j]
			d2 += d * d
		}
		total += math.Exp(-m.Gamma * d2)
	}
	return total / float64(len(m.Support))
}

// ScoreSamples implements Detector.
func (m *OneClassSVM) ScoreSamples(data [][]float64) ([]float64, error) {
	out := make([]float64, len(data))
	for i, row := range data {
		s, err := m.Score(row)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// Score returns the offset decision value; points far from the
// training mass score negative.
func (m *OneClassSVM) Score(sample []float64) (float64, error) {
	if !m.Fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != m.Dim {
		return 0, ErrDimMismatch
	}
	return m.kernelMean(sample) - m.Offset, nil
}

// Algorithm implements Detector.
func (m *OneClassSVM) Algorithm() string { return AlgOneClassSVM }

// totalVariance is the mean per-dimension population variance.
func totalVariance(data [][]float64) float64 {
	n := len(data)
	dim := len(data[0])
	var total float64
	for j := 0; j < dim; j++ {
		var sum, sq float64
		for i := 0; i < n; i++ {
			sum += data[i][j]
		}
		mean := sum / float64(n)
		for i := 0; i < n; i++ {
			d := data[i][j] - mean
			sq += d * d
		}
		total += sq / float64(n)
	}
	return total / float64(dim)
}

// quantile interpolates linearly over a sorted slice, q in [0, 1].
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
