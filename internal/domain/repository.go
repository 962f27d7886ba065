// Package domain defines the core interfaces and types shared across
// the fraud detection service.
package domain

import (
	"context"
	"time"
)

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Status TransactionStatus
	Since  time.Time
	Limit  int
}

// TrendPoint is one bucket of the transaction trend aggregation.
type TrendPoint struct {
	Date         string  `json:"date"`
	Count        int64   `json:"count"`
	TotalAmount  float64 `json:"totalAmount"`
	AnomalyCount int64   `json:"anomalyCount"`
}

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)
	CountUserTransactions(ctx context.Context, userID string, since time.Time) (int64, error)

	// AggregateContext computes historical aggregates for scoring in a
	// single round trip.
	AggregateContext(ctx context.Context, userID, city, network string, txnType TransactionType) (*AggregateContext, error)

	// UpdateRiskScore writes the model's risk score back onto the
	// transaction row.
	UpdateRiskScore(ctx context.Context, txID string, score float64) error

	// Prediction operations
	SavePrediction(ctx context.Context, p *Prediction) error
	GetPrediction(ctx context.Context, predictionID string) (*Prediction, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// TransactionTrends aggregates daily volume over the trailing period.
	TransactionTrends(ctx context.Context, days int) ([]*TrendPoint, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
