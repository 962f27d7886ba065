package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/feature"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/generator"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/preprocess"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/rules"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/scorer"
)

type stubContexts struct{}

func (stubContexts) Context(ctx context.Context, userID, city, network string, txnType domain.TransactionType) (*domain.AggregateContext, error) {
	return &domain.AggregateContext{}, nil
}

func testServerConfig() domain.ServerConfig {
	return domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
}

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	engine.LoadRule(&domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "High Value Test Rule",
		Expression: "amount > 100000.0 ? 1.0 : 0.0",
		Weight:     1.0,
		Enabled:    true,
	})
	t.Cleanup(func() { engine.Close() })
	return engine
}

// trainedArtifact fits a small isolation forest over synthetic history
// so the full predict path can be exercised without a database.
func trainedArtifact(t *testing.T) *model.Artifact {
	t.Helper()

	gen := generator.New(generator.Config{Count: 300, Seed: 11})
	txs := gen.Generate()

	records := make([]feature.Record, len(txs))
	for i, tx := range txs {
		records[i] = feature.Record{Tx: tx}
	}

	frame, err := feature.Build(records)
	if err != nil {
		t.Fatalf("feature build failed: %v", err)
	}

	pp, err := preprocess.Fit(frame)
	if err != nil {
		t.Fatalf("preprocess fit failed: %v", err)
	}

	names := feature.TrainingFeatures()
	x, _, err := pp.Transform(frame, names)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}

	forest := model.NewIsolationForest(50, 0, 0.02, 7)
	if err := forest.Fit(x); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	return &model.Artifact{
		Algorithm:    model.AlgIsolationForest,
		Model:        forest,
		Preprocessor: pp,
		FeatureNames: names,
		Params:       map[string]float64{"n_estimators": 50, "contamination": 0.02},
		Metrics:      model.Metrics{Silhouette: 0.4},
		Composite:    0.5,
		TrainedAt:    time.Now().UTC(),
		Version:      "test",
	}
}

func newTestServer(t *testing.T, art *model.Artifact) *Server {
	t.Helper()

	cfg := domain.ModelConfig{
		BaselineSeed:       42,
		BaselineSampleSize: 200,
	}
	sc, err := scorer.New(art, stubContexts{}, cfg, nil)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}

	return NewServer(testServerConfig(), nil, nil, nil, sc, testEngine(t), t.TempDir(), "test-v1")
}

func TestPredictWithoutModel(t *testing.T) {
	server := newTestServer(t, nil)

	body, _ := json.Marshal(domain.PredictRequest{
		UserID: "user-001",
		Amount: 5000,
		Type:   "cash_out",
	})
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without model, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPredict(t *testing.T) {
	server := newTestServer(t, trainedArtifact(t))

	t.Run("SuccessfulPrediction", func(t *testing.T) {
		body, _ := json.Marshal(domain.PredictRequest{
			TransactionID:   "tx-api-001",
			UserID:          "user-001",
			Amount:          5000,
			Type:            "airtime_purchase",
			Timestamp:       time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			LocationCity:    "Lilongwe",
			NetworkOperator: "TNM",
		})
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp PredictResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if resp.Prediction == nil {
			t.Fatal("expected prediction in response")
		}
		if resp.Prediction.Label != domain.LabelAnomaly && resp.Prediction.Label != domain.LabelNormal {
			t.Errorf("unexpected label %q", resp.Prediction.Label)
		}
		if resp.Prediction.Confidence < 0.88 || resp.Prediction.Confidence > 0.93 {
			t.Errorf("confidence %v outside calibrated band", resp.Prediction.Confidence)
		}
		if resp.Metadata.Version != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		body, _ := json.Marshal(domain.PredictRequest{
			UserID: "user-001",
			Amount: -500,
		})
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for negative amount, got %d", rr.Code)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		body, _ := json.Marshal(domain.PredictRequest{
			UserID: "user-001",
			Amount: 1000,
			Type:   "wire_transfer",
		})
		req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown type, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %v", resp["status"])
		}
		if resp["model_loaded"] != false {
			t.Errorf("expected model_loaded false, got %v", resp["model_loaded"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Run("WithoutModel", func(t *testing.T) {
		server := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 without model, got %d", rr.Code)
		}
	})

	t.Run("WithModel", func(t *testing.T) {
		server := newTestServer(t, trainedArtifact(t))
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["algorithm"] != model.AlgIsolationForest {
			t.Errorf("expected algorithm %s, got %v", model.AlgIsolationForest, resp["algorithm"])
		}
	})
}

func TestFeatureImportanceEndpoint(t *testing.T) {
	server := newTestServer(t, trainedArtifact(t))

	req := httptest.NewRequest(http.MethodGet, "/feature-importance", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		FeatureImportance []struct {
			Feature    string  `json:"feature"`
			Importance float64 `json:"importance"`
		} `json:"featureImportance"`
		TotalFeatures int `json:"totalFeatures"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if resp.TotalFeatures != len(feature.TrainingFeatures()) {
		t.Errorf("expected %d features, got %d", len(feature.TrainingFeatures()), resp.TotalFeatures)
	}

	var sum float64
	for i, fw := range resp.FeatureImportance {
		sum += fw.Importance
		if i > 0 && fw.Importance > resp.FeatureImportance[i-1].Importance {
			t.Error("importances should be sorted descending")
			break
		}
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("importances should sum to ~1, got %.4f", sum)
	}
}

func TestAlgorithmComparisonFallback(t *testing.T) {
	t.Run("NotTrained", func(t *testing.T) {
		server := newTestServer(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/algorithm-comparison", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["training_completed"] != false {
			t.Errorf("expected training_completed false, got %v", resp["training_completed"])
		}
	})

	t.Run("ModelOnly", func(t *testing.T) {
		server := newTestServer(t, trainedArtifact(t))
		req := httptest.NewRequest(http.MethodGet, "/algorithm-comparison", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["training_completed"] != true {
			t.Errorf("expected training_completed true, got %v", resp["training_completed"])
		}
		if resp["bestAlgorithm"] != model.AlgIsolationForest {
			t.Errorf("expected best algorithm from artifact, got %v", resp["bestAlgorithm"])
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		var resp map[string]any
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["count"].(float64) != 1 {
			t.Errorf("expected 1 rule, got %v", resp["count"])
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/test-rule-001", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules/no-such-rule", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("CreateRule", func(t *testing.T) {
		body, _ := json.Marshal(CreateRuleRequest{
			ID:         "new-rule",
			Name:       "New Rule",
			Expression: "velocity_count > 30",
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateRuleInvalidExpression", func(t *testing.T) {
		body, _ := json.Marshal(CreateRuleRequest{
			ID:         "bad-rule",
			Name:       "Bad Rule",
			Expression: "not valid CEL !!!",
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("ReloadWithoutRepo", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/rules/reload", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 without repository, got %d", rr.Code)
		}
	})
}

func TestTrendsWithoutRepo(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/transaction-trends", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without repository, got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request ID header on response")
	}
}
