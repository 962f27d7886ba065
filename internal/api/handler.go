package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/rules"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/scorer"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	scorer    *scorer.Scorer
	engine    *rules.Engine
	reportDir string
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, sc *scorer.Scorer, engine *rules.Engine, reportDir, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		scorer:    sc,
		engine:    engine,
		reportDir: reportDir,
		version:   version,
	}
}

// PredictResponse is the response for POST /predict.
type PredictResponse struct {
	*domain.Prediction
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Predict handles POST /predict requests.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	if h.scorer == nil || !h.scorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model is not loaded",
		})
		return
	}

	var req domain.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	tx := req.ToTransaction()
	if err := tx.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	pred, err := h.scorer.Score(ctx, tx)
	if err != nil {
		if errors.Is(err, scorer.ErrModelNotLoaded) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "model is not loaded",
			})
			return
		}
		slog.Error("scoring failed", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	resp := PredictResponse{Prediction: pred}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"model_loaded": h.scorer != nil && h.scorer.Ready(),
		"version":      h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":        true,
		"model_loaded": h.scorer != nil && h.scorer.Ready(),
	})
}

// Metrics returns a summary of the loaded model's training metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil || !h.scorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model is not loaded",
		})
		return
	}

	art := h.scorer.Artifact()
	writeJSON(w, http.StatusOK, map[string]any{
		"algorithm":         art.Algorithm,
		"metrics":           art.Metrics,
		"compositeScore":    art.Composite,
		"params":            art.Params,
		"featureCount":      len(art.FeatureNames),
		"baselineThreshold": h.scorer.BaselineThreshold(),
		"trainedAt":         art.TrainedAt,
		"modelVersion":      art.Version,
	})
}

// featureImportanceSeed keeps the synthetic importance sample stable
// across requests for a given model.
const featureImportanceSeed = 7

// FeatureImportance approximates per-feature importance as the variance
// share of each column over a synthetic sample pushed through the
// persisted scaler.
func (h *Handler) FeatureImportance(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil || !h.scorer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "model is not loaded",
		})
		return
	}

	art := h.scorer.Artifact()
	names := art.FeatureNames
	pp := art.Preprocessor

	const sampleRows = 100
	rng := rand.New(rand.NewSource(featureImportanceSeed))

	variances := make([]float64, len(names))
	var total float64
	for j, name := range names {
		col := make([]float64, sampleRows)
		idx := -1
		if pp.Scaler != nil {
			idx = pp.Scaler.Index(name)
		}
		for i := range col {
			v := rng.Float64()
			if idx >= 0 {
				v = pp.Scaler.Apply(idx, v)
			}
			col[i] = v
		}
		var mean float64
		for _, v := range col {
			mean += v
		}
		mean /= float64(len(col))
		var ss float64
		for _, v := range col {
			d := v - mean
			ss += d * d
		}
		variances[j] = ss / float64(len(col))
		total += variances[j]
	}

	type featureWeight struct {
		Feature    string  `json:"feature"`
		Importance float64 `json:"importance"`
	}
	out := make([]featureWeight, len(names))
	for j, name := range names {
		imp := 0.0
		if total > 0 {
			imp = variances[j] / total
		}
		out[j] = featureWeight{Feature: name, Importance: imp}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })

	writeJSON(w, http.StatusOK, map[string]any{
		"featureImportance": out,
		"totalFeatures":     len(out),
		"algorithm":         art.Algorithm,
	})
}

// AlgorithmComparison serves the training run comparison report. Falls
// back to a single-entry view of the loaded model when no report file
// exists, and to an empty "not trained" payload when neither exists.
func (h *Handler) AlgorithmComparison(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.reportDir, "algorithm_comparison.json")
	if data, err := os.ReadFile(path); err == nil {
		var report map[string]any
		if err := json.Unmarshal(data, &report); err == nil {
			report["training_completed"] = true
			writeJSON(w, http.StatusOK, report)
			return
		}
		slog.Warn("malformed comparison report", "path", path, "error", err)
	}

	if h.scorer != nil && h.scorer.Ready() {
		art := h.scorer.Artifact()
		writeJSON(w, http.StatusOK, map[string]any{
			"training_completed": true,
			"bestAlgorithm":      art.Algorithm,
			"bestCompositeScore": art.Composite,
			"variants": []map[string]any{{
				"algorithm":      art.Algorithm,
				"success":        true,
				"bestParams":     art.Params,
				"metrics":        art.Metrics,
				"compositeScore": art.Composite,
			}},
			"message": "comparison report unavailable, showing loaded model only",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"training_completed": false,
		"variants":           []any{},
	})
}

// TransactionTrends returns bucketed daily transaction counts.
func (h *Handler) TransactionTrends(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "days must be a positive integer",
			})
			return
		}
		days = d
	}

	trends, err := h.repo.TransactionTrends(r.Context(), days)
	if err != nil {
		slog.Error("failed to load transaction trends", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load transaction trends",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"trends": trends,
		"days":   days,
	})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetPrediction retrieves a stored prediction by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	predID := chi.URLParam(r, "id")

	if predID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	pred, err := h.repo.GetPrediction(ctx, predID)
	if err != nil {
		slog.Error("failed to get prediction", "id", predID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	// Return rules currently loaded in the engine (sourced from database)
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	// Check rules loaded in the engine (from database)
	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Weight      float64           `json:"weight"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository
	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	// Reload into engine
	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
