// train fits the anomaly detection model search against historical
// transactions and writes the winning artifact plus comparison reports.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/feature"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/model"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/preprocess"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/repository"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/trainer"
)

func main() {
	var (
		driver  = flag.String("driver", "sqlite", "repository driver (sqlite or postgres)")
		dbPath  = flag.String("db", "./fraud.db", "sqlite database path")
		limit   = flag.Int("limit", 50000, "maximum training transactions to load")
		out     = flag.String("out", "./models/anomaly_model.gob", "model artifact output path")
		reports = flag.String("reports", "./reports", "report output directory")
		seed    = flag.Int64("seed", 42, "random seed for the search")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := domain.RepositoryConfig{Driver: *driver, SQLitePath: *dbPath}
	if *driver == "postgres" {
		cfg = domain.ProConfig().Repository
	}

	repo, err := repository.New(cfg)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	ctx := context.Background()

	txs, err := repo.ListTransactions(ctx, domain.TransactionFilter{
		Status: domain.StatusCompleted,
		Limit:  *limit,
	})
	if err != nil {
		slog.Error("failed to load transactions", "error", err)
		os.Exit(1)
	}
	if len(txs) == 0 {
		slog.Error("no completed transactions to train on")
		os.Exit(1)
	}
	slog.Info("training data loaded", "transactions", len(txs))

	records := make([]feature.Record, len(txs))
	for i, tx := range txs {
		records[i] = feature.Record{Tx: tx}
	}

	frame, err := feature.Build(records)
	if err != nil {
		slog.Error("feature engineering failed", "error", err)
		os.Exit(1)
	}

	pp, err := preprocess.Fit(frame)
	if err != nil {
		slog.Error("preprocessor fit failed", "error", err)
		os.Exit(1)
	}

	featureNames := feature.TrainingFeatures()
	x, report, err := pp.Transform(frame, featureNames)
	if err != nil {
		slog.Error("preprocessing failed", "error", err)
		os.Exit(1)
	}
	if len(report.MissingColumns) > 0 {
		slog.Warn("training frame missing columns", "columns", report.MissingColumns)
	}
	slog.Info("training matrix built",
		"samples", len(x),
		"features", len(featureNames),
	)

	t := trainer.New(*seed, logger)
	start := time.Now()
	results := t.TrainAll(x)

	winner, err := trainer.SelectBest(results)
	if err != nil {
		if errors.Is(err, trainer.ErrNoViableModel) {
			slog.Error("no algorithm produced a viable model")
		} else {
			slog.Error("model selection failed", "error", err)
		}
		os.Exit(1)
	}

	slog.Info("search complete",
		"best_algorithm", winner.Algorithm,
		"composite", winner.Best.Composite,
		"duration", time.Since(start).String(),
	)

	trainedAt := time.Now().UTC()
	art := &model.Artifact{
		Algorithm:    winner.Algorithm,
		Model:        winner.Best.Model,
		Preprocessor: pp,
		FeatureNames: featureNames,
		Params:       winner.Best.Params,
		Metrics:      winner.Best.Metrics,
		Composite:    winner.Best.Composite,
		TrainedAt:    trainedAt,
		Version:      trainedAt.Format("20060102-150405"),
	}

	if err := art.Save(*out); err != nil {
		slog.Error("failed to save model artifact", "error", err)
		os.Exit(1)
	}
	slog.Info("model artifact saved", "path", *out)

	rep := trainer.BuildReport(results, winner, len(x), len(featureNames), trainedAt)
	if err := rep.WriteJSON(*reports); err != nil {
		slog.Error("failed to write comparison report", "error", err)
		os.Exit(1)
	}
	if err := rep.WriteMarkdown(*reports); err != nil {
		slog.Error("failed to write training report", "error", err)
		os.Exit(1)
	}
	slog.Info("reports written", "dir", *reports)
}
