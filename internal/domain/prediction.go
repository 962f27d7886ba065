package domain

import "time"

// Prediction labels returned to API clients.
const (
	LabelAnomaly = "Anomaly Detected"
	LabelNormal  = "Normal Transaction"
)

// Prediction is the full scoring result for a single transaction.
type Prediction struct {
	ID   string `json:"id"`
	TxID string `json:"transactionId"`

	// Model output. AnomalyScore follows the "lower is more anomalous"
	// convention; a transaction is flagged when the score falls at or
	// below Threshold.
	Label        string  `json:"prediction"`
	IsAnomaly    bool    `json:"isAnomaly"`
	AnomalyScore float64 `json:"anomalyScore"`
	Threshold    float64 `json:"threshold"`

	// Confidence is the calibrated prediction confidence and
	// FeatureConfidence reflects how much of the feature vector was
	// backed by real context rather than defaults.
	Confidence        float64 `json:"confidence"`
	FeatureConfidence float64 `json:"featureConfidence"`

	// RiskScore in [0.01, 0.99]; RiskFactors are human-readable
	// explanations for review queues.
	RiskScore   float64  `json:"riskScore"`
	RiskFactors []string `json:"riskFactors"`

	ModelName    string    `json:"modelName"`
	ModelVersion string    `json:"modelVersion"`
	ScoredAt     time.Time `json:"scoredAt"`

	// Degraded is set when aggregate context could not be fetched and
	// the transaction was scored against a zero-history baseline.
	Degraded bool `json:"degraded,omitempty"`
}
