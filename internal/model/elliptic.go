package model

import (
	"sort"
)

// covarianceFloor regularizes near-constant dimensions so Mahalanobis
// distances stay finite.
const covarianceFloor = 1e-9

// EllipticEnvelope fits a robust Gaussian with diagonal covariance:
// location and scale are re-estimated over the SupportFraction of
// points closest to the initial fit, trimming outliers out of the
// estimate. Scores are negated squared Mahalanobis distances.
type EllipticEnvelope struct {
	Contamination   float64
	SupportFraction float64 // 0 means the default 0.9

	Mean   []float64
	Var    []float64
	Dim    int
	Fitted bool
}

// NewEllipticEnvelope returns an unfitted detector.
func NewEllipticEnvelope(contamination, supportFraction float64) *EllipticEnvelope {
	return &EllipticEnvelope{Contamination: contamination, SupportFraction: supportFraction}
}

// Fit estimates the trimmed Gaussian parameters.
func (m *EllipticEnvelope) Fit(data [][]float64) error {
	n := len(data)
	if n == 0 {
		return ErrNoData
	}
	m.Dim = len(data[0])
	if m.Dim == 0 {
		return ErrNoData
	}

	mean, variance := diagGaussian(data)

	frac := m.SupportFraction
	if frac <= 0 || frac > 1 {
		frac = 0.9
	}
	support := int(frac * float64(n))
	if support < 2 {
		support = n
	}

	if support < n {
		type scored struct {
			idx int
			d2  float64
		}
		dists := make([]scored, n)
		for i, row := range data {
			dists[i] = scored{idx: i, d2: mahalanobis2(row, mean, variance)}
		}
		sort.Slice(dists, func(a, b int) bool { return dists[a].d2 < dists[b].d2 })
		kept := make([][]float64, support)
		for i := 0; i < support; i++ {
			kept[i] = data[dists[i].idx]
		}
		mean, variance = diagGaussian(kept)
	}

	m.Mean = mean
	m.Var = variance
	m.Fitted = true
	return nil
}

func diagGaussian(data [][]float64) ([]float64, []float64) {
	n := len(data)
	dim := len(data[0])
	mean := make([]float64, dim)
	variance := make([]float64, dim)
	for _, row := range data {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for _, row := range data {
		for j, v := range row {
			d := v - mean[j]
			variance[j] += d * d
		}
	}
	for j := range variance {
		variance[j] /= float64(n)
		if variance[j] < covarianceFloor {
			variance[j] = covarianceFloor
		}
	}
	return mean, variance
}

func mahalanobis2(sample, mean, variance []float64) float64 {
	var d2 float64
	for j := range sample {
		d := sample[j] - mean[j]
		d2 += d * d / variance[j]
	}
	return d2
}

// ScoreSamples implements Detector.
func (m *EllipticEnvelope) ScoreSamples(data [][]float64) ([]float64, error) {
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

// Score returns the negated squared Mahalanobis distance.
func (m *EllipticEnvelope) Score(sample []float64) (float64, error) {
	if !m.Fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != m.Dim {
		return 0, ErrDimMismatch
	}
	return -mahalanobis2(sample, m.Mean, m.Var), nil
}

// Algorithm implements Detector.
func (m *EllipticEnvelope) Algorithm() string { return AlgEllipticEnvelope }
