package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterWithOutlier returns a tight cluster near the origin plus one
// point far outside it, which every detector should score lowest.
func clusterWithOutlier(n, dim int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n+1)
	for i := 0; i < n; i++ {
		row := make([]float64, dim)
		for j := range row {
			row[j] = rng.NormFloat64() * 0.5
		}
		data[i] = row
	}
	outlier := make([]float64, dim)
	for j := range outlier {
		outlier[j] = 12.0
	}
	data[n] = outlier
	return data, outlier
}

func assertOutlierScoresLowest(t *testing.T, d Detector, data [][]float64) {
	t.Helper()

	scores, err := d.ScoreSamples(data)
	require.NoError(t, err)
	require.Len(t, scores, len(data))

	outlierScore := scores[len(scores)-1]
	var below int
	for _, s := range scores[:len(scores)-1] {
		if outlierScore < s {
			below++
		}
	}
	// The planted outlier should score below nearly all inliers.
	assert.Greater(t, below, len(data)*9/10,
		"outlier score %v not among the lowest", outlierScore)
}

func TestIsolationForest(t *testing.T) {
	data, outlier := clusterWithOutlier(200, 4, 1)

	f := NewIsolationForest(100, 0, 0.05, 42)
	require.NoError(t, f.Fit(data))
	require.True(t, f.Fitted)

	assertOutlierScoresLowest(t, f, data)

	s, err := f.Score(outlier)
	require.NoError(t, err)
	inlier, err := f.Score(data[0])
	require.NoError(t, err)
	assert.Less(t, s, inlier)
}

func TestIsolationForestDeterminism(t *testing.T) {
	data, _ := clusterWithOutlier(100, 3, 2)

	a := NewIsolationForest(50, 0, 0.05, 7)
	b := NewIsolationForest(50, 0, 0.05, 7)
	require.NoError(t, a.Fit(data))
	require.NoError(t, b.Fit(data))

	as, err := a.ScoreSamples(data)
	require.NoError(t, err)
	bs, err := b.ScoreSamples(data)
	require.NoError(t, err)
	assert.Equal(t, as, bs)
}

func TestOneClassSVM(t *testing.T) {
	data, _ := clusterWithOutlier(150, 4, 3)

	m := NewOneClassSVM(0.05, GammaScale, 42)
	require.NoError(t, m.Fit(data))
	require.True(t, m.Fitted)

	assertOutlierScoresLowest(t, m, data)
}

func TestOneClassSVMGammaAuto(t *testing.T) {
	data, _ := clusterWithOutlier(80, 5, 4)

	m := NewOneClassSVM(0.1, GammaAuto, 42)
	require.NoError(t, m.Fit(data))
	assert.InDelta(t, 1.0/5.0, m.Gamma, 1e-9)
}

func TestLocalOutlierFactor(t *testing.T) {
	data, _ := clusterWithOutlier(120, 3, 5)

	m := NewLocalOutlierFactor(20, 0.05)
	require.NoError(t, m.Fit(data))

	assertOutlierScoresLowest(t, m, data)
}

func TestEllipticEnvelope(t *testing.T) {
	data, _ := clusterWithOutlier(150, 3, 6)

	m := NewEllipticEnvelope(0.05, 0)
	require.NoError(t, m.Fit(data))

	assertOutlierScoresLowest(t, m, data)
}

func TestDetectorErrors(t *testing.T) {
	detectors := []Detector{
		NewIsolationForest(10, 0, 0.1, 1),
		NewOneClassSVM(0.1, GammaScale, 1),
		NewLocalOutlierFactor(5, 0.1),
		NewEllipticEnvelope(0.1, 0),
	}

	for _, d := range detectors {
		t.Run(d.Algorithm(), func(t *testing.T) {
			_, err := d.Score([]float64{1, 2, 3})
			assert.ErrorIs(t, err, ErrNotFitted)

			assert.ErrorIs(t, d.Fit(nil), ErrNoData)

			data, _ := clusterWithOutlier(60, 3, 9)
			require.NoError(t, d.Fit(data))

			_, err = d.Score([]float64{1, 2})
			assert.ErrorIs(t, err, ErrDimMismatch)
		})
	}
}

func TestAlgorithmNames(t *testing.T) {
	assert.Equal(t, AlgIsolationForest, NewIsolationForest(1, 0, 0, 0).Algorithm())
	assert.Equal(t, AlgOneClassSVM, NewOneClassSVM(0.1, 0, 0).Algorithm())
	assert.Equal(t, AlgLocalOutlierFactor, NewLocalOutlierFactor(5, 0.1).Algorithm())
	assert.Equal(t, AlgEllipticEnvelope, NewEllipticEnvelope(0.1, 0).Algorithm())
}
