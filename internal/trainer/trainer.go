// Package trainer runs the multi-algorithm hyperparameter search and
// picks the best anomaly detector by a composite unsupervised score.
package trainer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
)

// ErrNoViableModel is returned when every algorithm variant failed to
// produce a usable model.
var ErrNoViableModel = errors.New("trainer: no algorithm variant trained successfully")

// Hyperparameter grid sentinels, shared with the detector constructors.
const (
	MaxSamplesAuto      = 0.0 // isolation forest subsample: auto
	SupportFractionNone = 0.0 // elliptic envelope: use the default
)

// Defaults for the search.
const (
	DefaultMaxTrials        = 6
	DefaultSilhouetteSample = 5000
	pseudoLabelPercentile   = 2.0
)

// AlgorithmConfig describes one algorithm variant and its grid.
type AlgorithmConfig struct {
	Name string
	Grid map[string][]float64
}

// Variants returns the algorithm search space in evaluation order.
func Variants() []AlgorithmConfig {
	return []AlgorithmConfig{
		{
			Name: model.AlgIsolationForest,
			Grid: map[string][]float64{
				"contamination": {0.01, 0.015, 0.02, 0.025},
				"n_estimators":  {100, 200, 300},
				"max_samples":   {MaxSamplesAuto, 0.8, 0.9},
			},
		},
		{
			Name: model.AlgOneClassSVM,
			Grid: map[string][]float64{
				"nu":    {0.01, 0.015, 0.02, 0.025},
				"gamma": {model.GammaScale, model.GammaAuto},
			},
		},
		{
			Name: model.AlgLocalOutlierFactor,
			Grid: map[string][]float64{
				"n_neighbors":   {20, 30, 40},
				"contamination": {0.01, 0.015, 0.02},
			},
		},
		{
			Name: model.AlgEllipticEnvelope,
			Grid: map[string][]float64{
				"contamination":    {0.01, 0.015, 0.02},
				"support_fraction": {SupportFractionNone, 0.9},
			},
		},
	}
}

// TrialResult is the outcome of training one parameter combination.
type TrialResult struct {
	Params    map[string]float64
	Metrics   model.Metrics
	Composite float64
	Model     model.Detector
	Err       error
}

// VariantResult aggregates all trials of one algorithm.
type VariantResult struct {
	Algorithm string
	Best      *TrialResult
	Trials    int
	Failed    bool
	ErrMsg    string
}

// Trainer runs the search.
type Trainer struct {
	MaxTrials        int
	Seed             int64
	SilhouetteSample int
	Log              *slog.Logger
}

// New returns a trainer with the default search budget.
func New(seed int64, log *slog.Logger) *Trainer {
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{
		MaxTrials:        DefaultMaxTrials,
		Seed:             seed,
		SilhouetteSample: DefaultSilhouetteSample,
		Log:              log,
	}
}

// TrainAll searches every algorithm variant over the preprocessed
// training matrix and returns per-variant results in variant order.
func (t *Trainer) TrainAll(x [][]float64) []VariantResult {
	variants := Variants()
	results := make([]VariantResult, 0, len(variants))
	for _, v := range variants {
		results = append(results, t.trainVariant(v, x))
	}
	return results
}

func (t *Trainer) trainVariant(cfg AlgorithmConfig, x [][]float64) VariantResult {
	res := VariantResult{Algorithm: cfg.Name}
	combos := sampleGrid(cfg.Grid, t.MaxTrials, t.Seed)
	res.Trials = len(combos)

	var lastErr error
	for _, params := range combos {
		trial := t.runTrial(cfg.Name, params, x)
		if trial.Err != nil {
			lastErr = trial.Err
			t.Log.Warn("trial failed",
				"algorithm", cfg.Name,
				"params", fmt.Sprintf("%v", params),
				"error", trial.Err)
			continue
		}
		t.Log.Info("trial complete",
			"algorithm", cfg.Name,
			"composite", trial.Composite,
			"silhouette", trial.Metrics.Silhouette,
			"anomalyPct", trial.Metrics.AnomalyPercentage)
		if res.Best == nil || trial.Composite > res.Best.Composite {
			res.Best = trial
		}
	}
	if res.Best == nil {
		res.Failed = true
		if lastErr != nil {
			res.ErrMsg = lastErr.Error()
		} else {
			res.ErrMsg = "no parameter combinations to try"
		}
	}
	return res
}

// runTrial trains and evaluates one combination. Panics inside a
// detector are converted to trial errors so one bad combination never
// takes down the whole search.
func (t *Trainer) runTrial(name string, params map[string]float64, x [][]float64) (trial *TrialResult) {
	trial = &TrialResult{Params: params}
	defer func() {
		if r := recover(); r != nil {
			trial.Err = fmt.Errorf("trial panic: %v", r)
		}
	}()

	det, err := t.newDetector(name, params)
	if err != nil {
		trial.Err = err
		return trial
	}
	if err := det.Fit(x); err != nil {
		trial.Err = fmt.Errorf("fit %s: %w", name, err)
		return trial
	}
	scores, err := det.ScoreSamples(x)
	if err != nil {
		trial.Err = fmt.Errorf("score %s: %w", name, err)
		return trial
	}
	trial.Metrics = t.evaluate(x, scores)
	trial.Composite = compositeScore(trial.Metrics)
	trial.Model = det
	return trial
}

func (t *Trainer) newDetector(name string, p map[string]float64) (model.Detector, error) {
	switch name {
	case model.AlgIsolationForest:
		return model.NewIsolationForest(int(p["n_estimators"]), p["max_samples"], p["contamination"], t.Seed), nil
	case model.AlgOneClassSVM:
		return model.NewOneClassSVM(p["nu"], p["gamma"], t.Seed), nil
	case model.AlgLocalOutlierFactor:
		return model.NewLocalOutlierFactor(int(p["n_neighbors"]), p["contamination"]), nil
	case model.AlgEllipticEnvelope:
		return model.NewEllipticEnvelope(p["contamination"], p["support_fraction"]), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", name)
	}
}

// evaluate derives unsupervised quality metrics from training scores.
// Pseudo-labels come from the bottom score percentile.
func (t *Trainer) evaluate(x [][]float64, scores []float64) model.Metrics {
	n := len(scores)
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	threshold := percentile(sorted, pseudoLabelPercentile)

	labels := make([]bool, n) // true = anomaly
	var anomalies int
	var normalSum, anomalySum float64
	for i, s := range scores {
		if s <= threshold {
			labels[i] = true
			anomalies++
			anomalySum += s
		} else {
			normalSum += s
		}
	}

	m := model.Metrics{}
	m.AnomalyPercentage = 100 * float64(anomalies) / float64(n)
	normals := n - anomalies
	if normals > 0 && anomalies > 0 {
		m.Separation = math.Abs(normalSum/float64(normals) - anomalySum/float64(anomalies))
	}
	if normals > 1 {
		mean := normalSum / float64(normals)
		var sq float64
		for i, s := range scores {
			if !labels[i] {
				d := s - mean
				sq += d * d
			}
		}
		m.NormalVariance = sq / float64(normals)
	}
	m.ScoreMean, m.ScoreStd = meanStd(scores)
	m.Silhouette = t.silhouette(x, labels)
	return m
}

// silhouette computes the mean silhouette coefficient over a capped,
// seeded sample of rows, using the anomaly pseudo-labels as the two
// clusters.
func (t *Trainer) silhouette(x [][]float64, labels []bool) float64 {
	n := len(x)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if limit := t.SilhouetteSample; limit > 0 && n > limit {
		rng := rand.New(rand.NewSource(t.Seed))
		rng.Shuffle(n, func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		idx = idx[:limit]
	}

	var anomalies, normals []int
	for _, i := range idx {
		if labels[i] {
			anomalies = append(anomalies, i)
		} else {
			normals = append(normals, i)
		}
	}
	if len(anomalies) == 0 || len(normals) == 0 {
		return 0
	}

	var total float64
	for _, i := range idx {
		var own, other []int
		if labels[i] {
			own, other = anomalies, normals
		} else {
			own, other = normals, anomalies
		}
		a := meanDistance(x, i, own, true)
		b := meanDistance(x, i, other, false)
		if len(own) <= 1 {
			continue
		}
		if d := math.Max(a, b); d > 0 {
			total += (b - a) / d
		}
	}
	return total / float64(len(idx))
}

func meanDistance(x [][]float64, i int, cluster []int, skipSelf bool) float64 {
	var sum float64
	var count int
	for _, j := range cluster {
		if skipSelf && j == i {
			continue
		}
		var d2 float64
		for k := range x[i] {
			d := x[i][k] - x[j][k]
			d2 += d * d
		}
		sum += math.Sqrt(d2)
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// compositeScore blends the evaluation metrics into the ranking score.
func compositeScore(m model.Metrics) float64 {
	return 0.35*m.Silhouette +
		0.25*m.Separation +
		0.2*(1/(m.NormalVariance+1)) +
		0.1*(1-m.AnomalyPercentage/100) +
		0.1*m.ConfidenceBoost
}

// SelectBest picks the winner across variants: highest composite, with
// earlier variants winning ties.
func SelectBest(results []VariantResult) (*VariantResult, error) {
	var best *VariantResult
	for i := range results {
		r := &results[i]
		if r.Failed || r.Best == nil {
			continue
		}
		if best == nil || r.Best.Composite > best.Best.Composite {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNoViableModel
	}
	return best, nil
}

// sampleGrid enumerates parameter combinations in deterministic key
// order, then subsamples with a seeded shuffle when the grid exceeds
// the trial budget.
func sampleGrid(grid map[string][]float64, maxTrials int, seed int64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]float64{{}}
	for _, k := range keys {
		var next []map[string]float64
		for _, base := range combos {
			for _, v := range grid[k] {
				m := make(map[string]float64, len(base)+1)
				for bk, bv := range base {
					m[bk] = bv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		combos = next
	}

	if maxTrials > 0 && len(combos) > maxTrials {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(combos), func(a, b int) { combos[a], combos[b] = combos[b], combos[a] })
		combos = combos[:maxTrials]
	}
	return combos
}

// percentile interpolates linearly over a sorted slice, p in [0, 100].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if hi >= n {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanStd(vals []float64) (float64, float64) {
	n := len(vals)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n))
}
