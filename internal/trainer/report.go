package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
)

// VariantReport is the serialized summary of one algorithm's search.
type VariantReport struct {
	Algorithm string             `json:"algorithm"`
	Success   bool               `json:"success"`
	Error     string             `json:"error,omitempty"`
	Params    map[string]float64 `json:"bestParams,omitempty"`
	Metrics   *model.Metrics     `json:"metrics,omitempty"`
	Composite float64            `json:"compositeScore"`
	Trials    int                `json:"trials"`
}

// Report is the full training run summary, written next to the model
// artifact and served by the algorithm comparison endpoint.
type Report struct {
	TrainedAt     time.Time       `json:"trainedAt"`
	SampleCount   int             `json:"sampleCount"`
	FeatureCount  int             `json:"featureCount"`
	BestAlgorithm string          `json:"bestAlgorithm"`
	BestComposite float64         `json:"bestCompositeScore"`
	Variants      []VariantReport `json:"variants"`
}

// BuildReport assembles the report from the search results.
func BuildReport(results []VariantResult, winner *VariantResult, samples, features int, at time.Time) *Report {
	r := &Report{
		TrainedAt:    at,
		SampleCount:  samples,
		FeatureCount: features,
	}
	if winner != nil && winner.Best != nil {
		r.BestAlgorithm = winner.Algorithm
		r.BestComposite = winner.Best.Composite
	}
	for _, res := range results {
		vr := VariantReport{
			Algorithm: res.Algorithm,
			Success:   !res.Failed,
			Error:     res.ErrMsg,
			Trials:    res.Trials,
		}
		if res.Best != nil {
			vr.Params = res.Best.Params
			m := res.Best.Metrics
			vr.Metrics = &m
			vr.Composite = res.Best.Composite
		}
		r.Variants = append(r.Variants, vr)
	}
	return r
}

// WriteJSON writes the machine-readable report.
func (r *Report) WriteJSON(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "algorithm_comparison.json"), data, 0o644)
}

// WriteMarkdown writes the human-readable comparison table.
func (r *Report) WriteMarkdown(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Anomaly Model Training Report\n\n")
	fmt.Fprintf(&b, "Trained at: %s\n\n", r.TrainedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Samples: %d, features: %d\n\n", r.SampleCount, r.FeatureCount)
	if r.BestAlgorithm != "" {
		fmt.Fprintf(&b, "Best algorithm: **%s** (composite %.4f)\n\n", r.BestAlgorithm, r.BestComposite)
	} else {
		fmt.Fprintf(&b, "No algorithm produced a viable model.\n\n")
	}

	fmt.Fprintf(&b, "| Algorithm | Status | Composite | Silhouette | Separation | Anomaly %% |\n")
	fmt.Fprintf(&b, "|-----------|--------|-----------|------------|------------|-----------|\n")
	for _, v := range r.Variants {
		status := "ok"
		if !v.Success {
			status = "failed"
		}
		if v.Metrics != nil {
			fmt.Fprintf(&b, "| %s | %s | %.4f | %.4f | %.4f | %.2f |\n",
				v.Algorithm, status, v.Composite, v.Metrics.Silhouette,
				v.Metrics.Separation, v.Metrics.AnomalyPercentage)
		} else {
			fmt.Fprintf(&b, "| %s | %s | - | - | - | - |\n", v.Algorithm, status)
		}
	}

	for _, v := range r.Variants {
		if v.Params == nil {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n\n", v.Algorithm)
		keys := make([]string, 0, len(v.Params))
		for k := range v.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, v.Params[k])
		}
	}

	return os.WriteFile(filepath.Join(dir, "training_report.md"), []byte(b.String()), 0o644)
}
