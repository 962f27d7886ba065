package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/preprocess"
)

func init() {
	gob.Register(&IsolationForest{})
	gob.Register(&OneClassSVM{})
	gob.Register(&LocalOutlierFactor{})
	gob.Register(&EllipticEnvelope{})
}

// Metrics captures the unsupervised evaluation of a trained variant.
type Metrics struct {
	Silhouette        float64 `json:"silhouetteScore"`
	Separation        float64 `json:"scoreSeparation"`
	AnomalyPercentage float64 `json:"anomalyPercentage"`
	NormalVariance    float64 `json:"normalScoreVariance"`
	ConfidenceBoost   float64 `json:"confidenceBoost"` // reserved, currently always 0
	ScoreMean         float64 `json:"scoreMean"`
	ScoreStd          float64 `json:"scoreStd"`
}

// Artifact is the complete serialized model bundle: the winning
// detector together with the preprocessor and feature list it was
// trained with, so scoring cannot drift from training.
type Artifact struct {
	Algorithm    string
	Model        Detector
	Preprocessor *preprocess.Preprocessor
	FeatureNames []string
	Params       map[string]float64
	Metrics      Metrics
	Composite    float64
	TrainedAt    time.Time
	Version      string
}

// Save writes the artifact atomically: encode to a temp file in the
// target directory, then rename over the destination.
func (a *Artifact) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*.gob")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads a saved model bundle from disk.
func LoadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var a Artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if a.Model == nil {
		return nil, fmt.Errorf("artifact %s has no model", path)
	}
	if a.Preprocessor == nil {
		return nil, fmt.Errorf("artifact %s has no preprocessor", path)
	}
	return &a, nil
}
