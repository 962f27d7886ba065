package repository

// Schema definitions for the fraud detection database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    sender_account TEXT NOT NULL,
    receiver_account TEXT,
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    location_city TEXT,
    device_type TEXT,
    os_type TEXT,
    network_operator TEXT,
    merchant_category TEXT,
    is_new_device INTEGER NOT NULL DEFAULT 0,
    is_new_location INTEGER NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account);
CREATE INDEX IF NOT EXISTS idx_transactions_location ON transactions(location_city);
CREATE INDEX IF NOT EXISTS idx_transactions_network ON transactions(network_operator);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_user_ts ON transactions(user_id, timestamp);
`

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    label TEXT NOT NULL,
    is_anomaly INTEGER NOT NULL,
    anomaly_score REAL NOT NULL,
    threshold REAL NOT NULL,
    confidence REAL NOT NULL,
    feature_confidence REAL NOT NULL,
    risk_score REAL NOT NULL,
    risk_factors TEXT NOT NULL,
    model_name TEXT NOT NULL,
    model_version TEXT,
    scored_at TIMESTAMP NOT NULL,
    degraded INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_predictions_tx ON predictions(tx_id);
CREATE INDEX IF NOT EXISTS idx_predictions_anomaly ON predictions(is_anomaly);
CREATE INDEX IF NOT EXISTS idx_predictions_scored_at ON predictions(scored_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaPredictions,
		schemaRuleConfigs,
	}
}
