package model

import (
	"math"
	"sort"
)

// LocalOutlierFactor scores samples by comparing their local density
// to the local density of their k nearest training neighbors. Scores
// are the negated outlier factor: roughly -1 for inliers, increasingly
// negative for points in sparser regions than their neighborhood.
type LocalOutlierFactor struct {
	K             int
	Contamination float64

	Train  [][]float64
	KDist  []float64 // k-distance of each training point
	LRD    []float64 // local reachability density of each training point
	Dim    int
	Fitted bool
}

// NewLocalOutlierFactor returns an unfitted detector.
func NewLocalOutlierFactor(k int, contamination float64) *LocalOutlierFactor {
	return &LocalOutlierFactor{K: k, Contamination: contamination}
}

type neighbor struct {
	idx  int
	dist float64
}

// Fit stores the training set and precomputes each point's k-distance
// and local reachability density.
func (m *LocalOutlierFactor) Fit(data [][]float64) error {
	n := len(data)
	if n == 0 {
		return ErrNoData
	}
	m.Dim = len(data[0])
	if m.Dim == 0 {
		return ErrNoData
	}
	if m.K >= n {
		m.K = n - 1
	}
	if m.K < 1 {
		return ErrNoData
	}

	m.Train = make([][]float64, n)
	for i, row := range data {
		m.Train[i] = append([]float64(nil), row...)
	}

	neighbors := make([][]neighbor, n)
	m.KDist = make([]float64, n)
	for i := 0; i < n; i++ {
		neighbors[i] = m.nearest(m.Train[i], i)
		m.KDist[i] = neighbors[i][len(neighbors[i])-1].dist
	}

	m.LRD = make([]float64, n)
	for i := 0; i < n; i++ {
		var reach float64
		for _, nb := range neighbors[i] {
			reach += math.Max(m.KDist[nb.idx], nb.dist)
		}
		if reach == 0 {
			m.LRD[i] = math.Inf(1)
		} else {
			m.LRD[i] = float64(len(neighbors[i])) / reach
		}
	}
	m.Fitted = true
	return nil
}

// nearest returns the k nearest training points, excluding index skip
// (-1 to include all).
func (m *LocalOutlierFactor) nearest(sample []float64, skip int) []neighbor {
	nbs := make([]neighbor, 0, len(m.Train))
	for i, row := range m.Train {
		if i == skip {
			continue
		}
		var d2 float64
		for j := range row {
			d := sample[j] - row[j]
			d2 += d * d
		}
		nbs = append(nbs, neighbor{idx: i, dist: math.Sqrt(d2)})
	}
	sort.Slice(nbs, func(a, b int) bool {
		if nbs[a].dist != nbs[b].dist {
			return nbs[a].dist < nbs[b].dist
		}
		return nbs[a].idx < nbs[b].idx
	})
	if len(nbs) > m.K {
		nbs = nbs[:m.K]
	}
	return nbs
}

// ScoreSamples implements Detector.
func (m *LocalOutlierFactor) ScoreSamples(data [][]float64) ([]float64, error) {
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

// Score computes the negated local outlier factor of the sample
// against the training set.
func (m *LocalOutlierFactor) Score(sample []float64) (float64, error) {
	if !m.Fitted {
		return 0, ErrNotFitted
	}
	if len(sample) != m.Dim {
		return 0, ErrDimMismatch
	}

	nbs := m.nearest(sample, -1)
	var reach float64
	for _, nb := range nbs {
		reach += math.Max(m.KDist[nb.idx], nb.dist)
	}
	var lrd float64
	if reach == 0 {
		lrd = math.Inf(1)
	} else {
		lrd = float64(len(nbs)) / reach
	}

	var ratioSum float64
	for _, nb := range nbs {
		if math.IsInf(lrd, 1) {
			ratioSum++
			continue
		}
		ratioSum += m.LRD[nb.idx] / lrd
	}
	lof := ratioSum / float64(len(nbs))
	return -lof, nil
}

// Algorithm implements Detector.
func (m *LocalOutlierFactor) Algorithm() string { return AlgLocalOutlierFactor }
