package trainer

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
)

func trainingMatrix(n, dim int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	for i := range x {
		row := make([]float64, dim)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		// Plant a small contaminated tail.
		if i%50 == 0 {
			for j := range row {
				row[j] += 8
			}
		}
		x[i] = row
	}
	return x
}

func TestSampleGridDeterministic(t *testing.T) {
	grid := map[string][]float64{
		"contamination": {0.01, 0.02},
		"n_estimators":  {100, 200, 300},
	}

	a := sampleGrid(grid, 4, 42)
	b := sampleGrid(grid, 4, 42)

	require.Len(t, a, 4)
	assert.Equal(t, a, b)

	// Budget larger than the grid keeps every combination.
	full := sampleGrid(grid, 100, 42)
	assert.Len(t, full, 6)
}

func TestSampleGridCombinations(t *testing.T) {
	grid := map[string][]float64{
		"nu":    {0.01, 0.02},
		"gamma": {model.GammaScale, model.GammaAuto},
	}

	combos := sampleGrid(grid, 0, 1)
	require.Len(t, combos, 4)
	for _, c := range combos {
		assert.Contains(t, c, "nu")
		assert.Contains(t, c, "gamma")
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 1.0, percentile(sorted, 0))
	assert.Equal(t, 5.0, percentile(sorted, 100))
	assert.Equal(t, 3.0, percentile(sorted, 50))
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 50))
}

func TestCompositeScore(t *testing.T) {
	m := model.Metrics{
		Silhouette:        0.5,
		Separation:        0.4,
		NormalVariance:    1.0,
		AnomalyPercentage: 2.0,
	}

	want := 0.35*0.5 + 0.25*0.4 + 0.2*(1.0/2.0) + 0.1*(1-0.02)
	assert.InDelta(t, want, compositeScore(m), 1e-9)

	// The boost term carries its weight even though evaluate never
	// sets it today.
	m.ConfidenceBoost = 0.3
	assert.InDelta(t, want+0.1*0.3, compositeScore(m), 1e-9)
}

func TestTrainAll(t *testing.T) {
	x := trainingMatrix(400, 4, 3)

	tr := New(42, nil)
	tr.MaxTrials = 2
	tr.SilhouetteSample = 200

	results := tr.TrainAll(x)
	require.Len(t, results, len(Variants()))

	for i, v := range Variants() {
		assert.Equal(t, v.Name, results[i].Algorithm)
	}

	best, err := SelectBest(results)
	require.NoError(t, err)
	require.NotNil(t, best.Best)
	assert.NotNil(t, best.Best.Model)
	assert.Greater(t, best.Best.Composite, 0.0)
	assert.Positive(t, best.Best.Metrics.AnomalyPercentage)
}

func TestTrainAllDeterministic(t *testing.T) {
	x := trainingMatrix(200, 3, 5)

	run := func() []VariantResult {
		tr := New(42, nil)
		tr.MaxTrials = 1
		tr.SilhouetteSample = 100
		return tr.TrainAll(x)
	}

	a := run()
	b := run()
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, a[i].Failed, b[i].Failed, a[i].Algorithm)
		if !a[i].Failed {
			assert.Equal(t, a[i].Best.Params, b[i].Best.Params, a[i].Algorithm)
			assert.InDelta(t, a[i].Best.Composite, b[i].Best.Composite, 1e-12, a[i].Algorithm)
		}
	}
}

func TestSelectBestNoViableModel(t *testing.T) {
	results := []VariantResult{
		{Algorithm: model.AlgIsolationForest, Failed: true, ErrMsg: "fit failed"},
		{Algorithm: model.AlgOneClassSVM, Failed: true, ErrMsg: "fit failed"},
	}

	_, err := SelectBest(results)
	assert.ErrorIs(t, err, ErrNoViableModel)

	_, err = SelectBest(nil)
	assert.ErrorIs(t, err, ErrNoViableModel)
}

func TestSelectBestPicksHighestComposite(t *testing.T) {
	results := []VariantResult{
		{Algorithm: model.AlgIsolationForest, Best: &TrialResult{Composite: 0.4}},
		{Algorithm: model.AlgOneClassSVM, Best: &TrialResult{Composite: 0.7}},
		{Algorithm: model.AlgLocalOutlierFactor, Failed: true},
	}

	best, err := SelectBest(results)
	require.NoError(t, err)
	assert.Equal(t, model.AlgOneClassSVM, best.Algorithm)
}

func TestUnknownAlgorithm(t *testing.T) {
	tr := New(1, nil)
	_, err := tr.newDetector("gradient_boosting", nil)
	assert.Error(t, err)
}

func TestReportFiles(t *testing.T) {
	x := trainingMatrix(150, 3, 7)

	tr := New(42, nil)
	tr.MaxTrials = 1
	tr.SilhouetteSample = 100

	results := tr.TrainAll(x)
	winner, err := SelectBest(results)
	require.NoError(t, err)

	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	report := BuildReport(results, winner, len(x), 3, at)
	dir := t.TempDir()

	require.NoError(t, report.WriteJSON(dir))
	require.NoError(t, report.WriteMarkdown(dir))

	data, err := os.ReadFile(filepath.Join(dir, "algorithm_comparison.json"))
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, winner.Algorithm, decoded.BestAlgorithm)
	assert.Equal(t, len(x), decoded.SampleCount)
	assert.Len(t, decoded.Variants, len(results))
	assert.True(t, decoded.TrainedAt.Equal(at))

	md, err := os.ReadFile(filepath.Join(dir, "training_report.md"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(md), winner.Algorithm))
	assert.True(t, strings.Contains(string(md), "| Algorithm |"))
}

func TestBuildReportWithoutWinner(t *testing.T) {
	results := []VariantResult{
		{Algorithm: model.AlgIsolationForest, Failed: true, ErrMsg: "boom", Trials: 2},
	}

	report := BuildReport(results, nil, 0, 0, time.Now())
	assert.Empty(t, report.BestAlgorithm)
	require.Len(t, report.Variants, 1)
	assert.False(t, report.Variants[0].Success)
	assert.Equal(t, "boom", report.Variants[0].Error)

	dir := t.TempDir()
	require.NoError(t, report.WriteMarkdown(dir))
	md, err := os.ReadFile(filepath.Join(dir, "training_report.md"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(md), "No algorithm produced a viable model"))
}
