// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MkandawireChico/mobile-money-fraud-final/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, sender_account, receiver_account, amount, type,
			status, timestamp, created_at, location_city, device_type,
			os_type, network_operator, merchant_category,
			is_new_device, is_new_location, risk_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.SenderAccount, tx.ReceiverAccount,
		tx.Amount, string(tx.Type), string(tx.Status),
		tx.Timestamp, tx.CreatedAt,
		tx.LocationCity, tx.DeviceType, tx.OSType,
		tx.NetworkOperator, tx.MerchantCategory,
		boolToInt(tx.IsNewDevice), boolToInt(tx.IsNewLocation),
		tx.RiskScore,
	)
	return err
}

const transactionColumns = `
	id, user_id, sender_account, receiver_account, amount, type,
	status, timestamp, created_at, location_city, device_type,
	os_type, network_operator, merchant_category,
	is_new_device, is_new_location, risk_score
`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var tx domain.Transaction
	var typ, status string
	var newDevice, newLocation int
	var receiver, city, device, osType, network, merchant sql.NullString

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.SenderAccount, &receiver,
		&tx.Amount, &typ, &status,
		&tx.Timestamp, &tx.CreatedAt,
		&city, &device, &osType, &network, &merchant,
		&newDevice, &newLocation, &tx.RiskScore,
	)
	if err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(typ)
	tx.Status = domain.TransactionStatus(status)
	tx.ReceiverAccount = receiver.String
	tx.LocationCity = city.String
	tx.DeviceType = device.String
	tx.OSType = osType.String
	tx.NetworkOperator = network.String
	tx.MerchantCategory = merchant.String
	tx.IsNewDevice = newDevice == 1
	tx.IsNewLocation = newLocation == 1
	return &tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions retrieves transactions matching the filter, newest
// first.
func (r *SQLRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CountUserTransactions counts a user's transactions since the cutoff.
func (r *SQLRepository) CountUserTransactions(ctx context.Context, userID string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE user_id = ? AND timestamp >= ?`
	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, since).Scan(&count)
	return count, err
}

// AggregateContext computes the historical aggregates for one scoring
// request in a single round trip. Standard deviation is derived from
// first and second moments so the query stays portable across SQLite
// and PostgreSQL.
func (r *SQLRepository) AggregateContext(ctx context.Context, userID, city, network string, txnType domain.TransactionType) (*domain.AggregateContext, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE user_id = ?),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = ?),
			(SELECT MIN(timestamp) FROM transactions WHERE user_id = ?),
			(SELECT COUNT(DISTINCT location_city) FROM transactions WHERE user_id = ?),
			(SELECT COUNT(DISTINCT device_type) FROM transactions WHERE user_id = ?),
			(SELECT COUNT(DISTINCT type) FROM transactions WHERE user_id = ?),
			(SELECT COUNT(DISTINCT user_id) FROM transactions WHERE location_city = ?),
			(SELECT COALESCE(AVG(amount), 0) FROM transactions WHERE location_city = ?),
			(SELECT COUNT(*) FROM transactions WHERE location_city = ?),
			(SELECT COALESCE(AVG(amount), 0) FROM transactions WHERE network_operator = ?),
			(SELECT COUNT(DISTINCT user_id) FROM transactions WHERE network_operator = ?),
			(SELECT COALESCE(AVG(amount), 0) FROM transactions WHERE type = ?),
			(SELECT COALESCE(AVG(amount * amount), 0) FROM transactions WHERE type = ?)
	`

	var agg domain.AggregateContext
	var firstTxn sql.NullTime
	var typeMean, typeMeanSq float64

	err := r.db.QueryRowContext(ctx, r.rebind(query),
		userID, userID, userID, userID, userID, userID,
		city, city, city,
		network, network,
		string(txnType), string(txnType),
	).Scan(
		&agg.UserTxnCount, &agg.UserTotalAmount, &firstTxn,
		&agg.UserLocationCount, &agg.UserDeviceCount, &agg.UserTxnTypeCount,
		&agg.LocationUserCount, &agg.LocationAmountMean, &agg.LocationTxnCount,
		&agg.NetworkAmountMean, &agg.NetworkUserCount,
		&typeMean, &typeMeanSq,
	)
	if err != nil {
		return nil, err
	}

	if firstTxn.Valid {
		agg.FirstTxnAt = firstTxn.Time
	}
	agg.TxnTypeAmountMean = typeMean
	if variance := typeMeanSq - typeMean*typeMean; variance > 0 {
		agg.TxnTypeAmountStd = math.Sqrt(variance)
	}
	return &agg, nil
}

// UpdateRiskScore writes the model's risk score back onto the
// transaction row.
func (r *SQLRepository) UpdateRiskScore(ctx context.Context, txID string, score float64) error {
	query := `UPDATE transactions SET risk_score = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.rebind(query), score, txID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SavePrediction stores a scoring result.
func (r *SQLRepository) SavePrediction(ctx context.Context, p *domain.Prediction) error {
	if p.ID == "" {
		return fmt.Errorf("%w: prediction ID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(p.RiskFactors)

	query := `
		INSERT INTO predictions (
			id, tx_id, label, is_anomaly, anomaly_score, threshold,
			confidence, feature_confidence, risk_score, risk_factors,
			model_name, model_version, scored_at, degraded
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.TxID, p.Label, boolToInt(p.IsAnomaly),
		p.AnomalyScore, p.Threshold,
		p.Confidence, p.FeatureConfidence,
		p.RiskScore, string(factors),
		p.ModelName, p.ModelVersion, p.ScoredAt, boolToInt(p.Degraded),
	)
	return err
}

// GetPrediction retrieves a scoring result by ID.
func (r *SQLRepository) GetPrediction(ctx context.Context, predictionID string) (*domain.Prediction, error) {
	query := `
		SELECT id, tx_id, label, is_anomaly, anomaly_score, threshold,
			   confidence, feature_confidence, risk_score, risk_factors,
			   model_name, model_version, scored_at, degraded
		FROM predictions
		WHERE id = ?
	`

	var p domain.Prediction
	var isAnomaly, degraded int
	var factors string
	var version sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), predictionID).Scan(
		&p.ID, &p.TxID, &p.Label, &isAnomaly,
		&p.AnomalyScore, &p.Threshold,
		&p.Confidence, &p.FeatureConfidence,
		&p.RiskScore, &factors,
		&p.ModelName, &version, &p.ScoredAt, &degraded,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.IsAnomaly = isAnomaly == 1
	p.Degraded = degraded == 1
	p.ModelVersion = version.String
	json.Unmarshal([]byte(factors), &p.RiskFactors)
	return &p, nil
}

// SaveRuleConfig stores a rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	bands, _ := json.Marshal(rule.Bands)

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, bands, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), rule.Weight,
		boolToInt(rule.Enabled), now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, weight, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, weight, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &cfg.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// TransactionTrends aggregates daily volume over the trailing period.
// Transactions with a written-back risk score at or above 0.7 count as
// anomalies.
func (r *SQLRepository) TransactionTrends(ctx context.Context, days int) ([]*domain.TrendPoint, error) {
	if days <= 0 {
		days = 30
	}

	bucket := `strftime('%Y-%m-%d', timestamp)`
	if r.driver == "postgres" {
		bucket = `to_char(timestamp, 'YYYY-MM-DD')`
	}

	query := fmt.Sprintf(`
		SELECT %s AS day,
			   COUNT(*),
			   COALESCE(SUM(amount), 0),
			   SUM(CASE WHEN risk_score >= 0.7 THEN 1 ELSE 0 END)
		FROM transactions
		WHERE timestamp >= ?
		GROUP BY day
		ORDER BY day
	`, bucket)

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := r.db.QueryContext(ctx, r.rebind(query), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*domain.TrendPoint
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(&p.Date, &p.Count, &p.TotalAmount, &p.AnomalyCount); err != nil {
			return nil, err
		}
		points = append(points, &p)
	}
	return points, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
