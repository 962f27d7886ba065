// generate seeds the repository with synthetic Malawi mobile money
// transactions for development and training runs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/generator"
	"github.com/MkandawireChico/mobile-money-fraud-final/internal/repository"
)

func main() {
	var (
		driver = flag.String("driver", "sqlite", "repository driver (sqlite or postgres)")
		dbPath = flag.String("db", "./fraud.db", "sqlite database path")
		count  = flag.Int("count", 5000, "number of transactions to generate")
		users  = flag.Int("users", 0, "simulated customer pool size (0 = derived from count)")
		days   = flag.Int("days", 90, "spread transactions over this many trailing days")
		fraud  = flag.Float64("fraud", 0.03, "fraction of anomalous transactions")
		seed   = flag.Int64("seed", 1, "random seed")
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

	gen := generator.New(generator.Config{
		Count:      *count,
		Users:      *users,
		Days:       *days,
		FraudRatio: *fraud,
		Seed:       *seed,
	})

	txs := gen.Generate()
	slog.Info("transactions generated", "count", len(txs))

	ctx := context.Background()
	saved := 0
	for _, tx := range txs {
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			slog.Warn("failed to save transaction", "id", tx.ID, "error", err)
			continue
		}
		saved++
	}

	slog.Info("seeding complete",
		"saved", saved,
		"failed", len(txs)-saved,
		"driver", *driver,
	)
}
