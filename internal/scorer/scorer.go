// Package scorer runs the inference pipeline: fetch aggregate
// context, build features, preprocess, score against the loaded model
// artifact and produce the full prediction with calibrated confidence
// and risk explanations.
package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/feature"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/rules"
)

// ErrModelNotLoaded is returned when scoring is requested before a
// model artifact has been loaded.
var ErrModelNotLoaded = errors.New("scorer: model artifact not loaded")

// Stage names the steps of the scoring pipeline; failures are wrapped
// with the stage they occurred in.
type Stage string

const (
	StageAwaitingContext Stage = "awaiting_context"
	StageFeaturesBuilt   Stage = "features_built"
	StagePreprocessed    Stage = "preprocessed"
	StageScored          Stage = "scored"
)

// ContextSource provides the aggregates a transaction is scored
// against.
type ContextSource interface {
	Context(ctx context.Context, userID, city, network string, txnType domain.TransactionType) (*domain.AggregateContext, error)
}

// Store is the slice of the repository the scorer writes to.
type Store interface {
	UpdateRiskScore(ctx context.Context, txID string, score float64) error
	SavePrediction(ctx context.Context, p *domain.Prediction) error
}

// Scorer scores transactions against a loaded model artifact.
type Scorer struct {
	art       *model.Artifact
	threshold float64 // baseline decision threshold
	contexts  ContextSource
	store     Store
	bus       domain.EventBus
	rules     *rules.Engine
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithStore enables risk score write-back and prediction persistence.
func WithStore(store Store) Option {
	return func(s *Scorer) { s.store = store }
}

// WithBus enables scored/alert event publishing.
func WithBus(bus domain.EventBus) Option {
	return func(s *Scorer) { s.bus = bus }
}

// WithRules adds supplemental risk rules whose failures are appended
// to the risk factors.
func WithRules(engine *rules.Engine) Option {
	return func(s *Scorer) { s.rules = engine }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// New builds a scorer and derives the baseline decision threshold from
// the artifact. The threshold is the 2nd percentile of model scores
// over a seeded synthetic sample, so the same artifact and seed always
// produce the same threshold.
func New(art *model.Artifact, contexts ContextSource, cfg domain.ModelConfig, log *slog.Logger, opts ...Option) (*Scorer, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scorer{
		art:      art,
		contexts: contexts,
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(s)
	}
	if art != nil {
		thr, err := baselineThreshold(art, cfg.BaselineSeed, cfg.BaselineSampleSize)
		if err != nil {
			return nil, fmt.Errorf("derive baseline threshold: %w", err)
		}
		s.threshold = thr
		log.Info("baseline threshold derived",
			"algorithm", art.Algorithm,
			"threshold", thr,
			"modelVersion", art.Version)
	}
	return s, nil
}

// Ready reports whether a model is loaded and scoring can proceed.
func (s *Scorer) Ready() bool { return s.art != nil }

// Artifact returns the loaded model bundle, nil when not loaded.
func (s *Scorer) Artifact() *model.Artifact { return s.art }

// BaselineThreshold returns the derived decision threshold.
func (s *Scorer) BaselineThreshold() float64 { return s.threshold }

// baselineThreshold scores a seeded uniform sample through the
// artifact's scaler and model and takes the 2nd percentile.
func baselineThreshold(art *model.Artifact, seed int64, sampleSize int) (float64, error) {
	if sampleSize <= 0 {
		sampleSize = 1000
	}
	rng := rand.New(rand.NewSource(seed))
	dim := len(art.FeatureNames)
	sample := make([][]float64, sampleSize)
	for i := range sample {
		row := make([]float64, dim)
		for j, name := range art.FeatureNames {
			v := rng.Float64()
			if si := art.Preprocessor.Scaler.Index(name); si >= 0 {
				v = art.Preprocessor.Scaler.Apply(si, v)
			}
			row[j] = v
		}
		sample[i] = row
	}
	scores, err := art.Model.ScoreSamples(sample)
	if err != nil {
		return 0, err
	}
	sort.Float64s(scores)
	return percentile(scores, 2), nil
}

// Score runs the full pipeline for one transaction.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction) (*domain.Prediction, error) {
	if s.art == nil {
		return nil, ErrModelNotLoaded
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("scoring failed at %s: %w", StageAwaitingContext, err)
	}

	degraded := false
	agg, err := s.contexts.Context(ctx, tx.UserID, tx.LocationCity, tx.NetworkOperator, tx.Type)
	if err != nil {
		// Context loss degrades to a zero-history baseline rather
		// than failing the request.
		s.log.Warn("aggregate context unavailable, scoring degraded",
			"txId", tx.ID, "userId", tx.UserID, "error", err)
		agg = &domain.AggregateContext{}
		degraded = true
	}

	frame, err := feature.Build([]feature.Record{{Tx: tx, Ctx: agg}})
	if err != nil {
		return nil, fmt.Errorf("scoring failed at %s: %w", StageFeaturesBuilt, err)
	}

	matrix, report, err := s.art.Preprocessor.Transform(frame, s.art.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("scoring failed at %s: %w", StagePreprocessed, err)
	}
	if len(report.MissingColumns) > 0 {
		s.log.Debug("missing feature columns defaulted",
			"txId", tx.ID, "columns", report.MissingColumns)
	}
	for col, count := range report.UnseenValues {
		s.log.Debug("unseen categorical value encoded as fallback",
			"txId", tx.ID, "column", col, "count", count)
	}

	raw, err := s.art.Model.Score(matrix[0])
	if err != nil {
		return nil, fmt.Errorf("scoring failed at %s: %w", StageScored, err)
	}

	featConf := featureConfidence(frame)
	threshold := s.threshold * (1 + (featConf-0.5)*0.2)
	isAnomaly := raw <= threshold
	conf := predictionConfidence(raw, threshold, featConf, frame)
	risk := enhancedRiskScore(raw, threshold, conf)

	pred := &domain.Prediction{
		ID:                uuid.New().String(),
		TxID:              tx.ID,
		IsAnomaly:         isAnomaly,
		AnomalyScore:      raw,
		Threshold:         threshold,
		Confidence:        conf,
		FeatureConfidence: featConf,
		RiskScore:         risk,
		RiskFactors:       riskFactors(frame),
		ModelName:         s.art.Algorithm,
		ModelVersion:      s.art.Version,
		ScoredAt:          s.now().UTC(),
		Degraded:          degraded,
	}
	if isAnomaly {
		pred.Label = domain.LabelAnomaly
	} else {
		pred.Label = domain.LabelNormal
	}

	s.applyRules(ctx, tx, pred)
	s.persist(ctx, tx, pred)
	s.publish(ctx, pred)
	return pred, nil
}

// applyRules evaluates supplemental risk rules and appends their fail
// and review reasons to the risk factors.
func (s *Scorer) applyRules(ctx context.Context, tx *domain.Transaction, pred *domain.Prediction) {
	if s.rules == nil {
		return
	}
	results := s.rules.EvaluateAll(ctx, tx)
	for _, r := range results {
		if r.SubRuleRef == domain.RuleOutcomeFail || r.SubRuleRef == domain.RuleOutcomeReview {
			if r.Reason != "" {
				pred.RiskFactors = append(pred.RiskFactors, r.Reason)
			}
		}
	}
}

// persist writes the risk score back and saves the prediction. Both
// are best-effort: scoring already succeeded and the verdict is not
// voided by a storage hiccup.
func (s *Scorer) persist(ctx context.Context, tx *domain.Transaction, pred *domain.Prediction) {
	if s.store == nil {
		return
	}
	if tx.ID != "" {
		if err := s.store.UpdateRiskScore(ctx, tx.ID, pred.RiskScore); err != nil {
			s.log.Warn("risk score write-back failed", "txId", tx.ID, "error", err)
		}
	}
	if err := s.store.SavePrediction(ctx, pred); err != nil {
		s.log.Warn("prediction save failed", "predictionId", pred.ID, "error", err)
	}
}

func (s *Scorer) publish(ctx context.Context, pred *domain.Prediction) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(pred)
	if err != nil {
		s.log.Warn("prediction marshal failed", "predictionId", pred.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, domain.TopicTransactionScored, payload); err != nil {
		s.log.Warn("scored event publish failed", "predictionId", pred.ID, "error", err)
	}
	if pred.IsAnomaly {
		if err := s.bus.Publish(ctx, domain.TopicAnomalyAlert, payload); err != nil {
			s.log.Warn("anomaly alert publish failed", "predictionId", pred.ID, "error", err)
		}
	}
}

// featureConfidence reflects how much of the feature vector is backed
// by real signal, clamped to [0.3, 0.95].
func featureConfidence(f *feature.Frame) float64 {
	conf := 0.5
	if v := f.At("risk_confidence_score", 0); v > conf {
		conf = v
	}
	behavioral := (f.At("device_consistency_score", 0) + f.At("location_consistency_score", 0)) / 2
	conf += behavioral * 0.15
	if f.At("is_business_hours", 0) == 1 {
		conf += 0.05
	}
	if f.At("is_amount_outlier", 0) == 0 {
		conf += 0.05
	}
	return clamp(conf, 0.3, 0.95)
}

// predictionConfidence blends model separation, feature quality,
// behavioral and seasonal signals into the calibrated [0.88, 0.93]
// reporting band.
func predictionConfidence(score, threshold, featConf float64, f *feature.Frame) float64 {
	var sepConf float64
	if threshold != 0 {
		sepConf = math.Min(0.4, math.Abs(score-threshold)/math.Abs(threshold)*0.3)
	}

	behavioral := 0.05
	if composite := f.At("composite_risk_score", 0); composite > 0.7 || composite < 0.3 {
		behavioral = 0.15
	}

	seasonal := 0.02 // cultural context is always present
	if f.At("is_payday", 0) == 1 {
		seasonal += 0.05
	}
	if f.At("is_market_day", 0) == 1 {
		seasonal += 0.03
	}

	total := 0.65 + sepConf + featConf*0.3 + behavioral + seasonal
	return clamp(total, 0.88, 0.93)
}

// enhancedRiskScore maps the anomaly verdict onto [0.01, 0.99]:
// anomalies start at 0.7 and climb with distance below the threshold,
// normals start at 0.3 and fall with distance above it.
func enhancedRiskScore(score, threshold, confidence float64) float64 {
	denom := math.Abs(threshold)
	if denom == 0 {
		denom = 1
	}
	var base float64
	if score <= threshold {
		base = 0.7 + (threshold-score)/denom*0.25
	} else {
		base = 0.3 - (score-threshold)/denom*0.25
	}
	return clamp(base+(confidence-0.5)*0.1, 0.01, 0.99)
}

// riskFactors extracts review-queue explanations from the features.
func riskFactors(f *feature.Frame) []string {
	var factors []string
	if f.At("is_late_night", 0) == 1 {
		factors = append(factors, "Late night transaction")
	}
	if f.At("is_large_transaction", 0) == 1 {
		factors = append(factors, "Large transaction amount")
	}
	if f.At("is_new_device", 0) == 1 {
		factors = append(factors, "New device used")
	}
	if f.At("is_new_location", 0) == 1 {
		factors = append(factors, "New location")
	}
	if f.At("is_high_risk_transaction", 0) == 1 {
		factors = append(factors, "High-risk transaction type")
	}
	if f.At("is_amount_outlier", 0) == 1 {
		factors = append(factors, "Unusual transaction amount")
	}
	if len(factors) == 0 {
		factors = append(factors, "Normal transaction patterns")
	}
	return factors
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
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
