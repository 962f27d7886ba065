// Package model implements the unsupervised anomaly detectors and the
// serialized model artifact. All detectors share one score convention:
// lower scores are more anomalous, and the scorer flags a transaction
// when its score falls at or below the decision threshold.
package model

import "errors"

// Errors shared across detectors.
var (
	ErrNotFitted   = errors.New("model: detector is not fitted")
	ErrNoData      = errors.New("model: no training data")
	ErrDimMismatch = errors.New("model: sample dimension does not match training data")
)

// Algorithm names, used in artifacts, reports and the API surface.
const (
	AlgIsolationForest    = "isolation_forest"
	AlgOneClassSVM        = "one_class_svm"
	AlgLocalOutlierFactor = "local_outlier_factor"
	AlgEllipticEnvelope   = "elliptic_envelope"
)

// Detector is the common interface for anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on the matrix of preprocessed rows.
	Fit(data [][]float64) error

	// ScoreSamples returns anomaly scores for each row, lower meaning
	// more anomalous.
	ScoreSamples(data [][]float64) ([]float64, error)

	// Score returns the anomaly score of a single row.
	Score(sample []float64) (float64, error)

	// Algorithm returns the canonical algorithm name.
	Algorithm() string
}
