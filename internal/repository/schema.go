package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.
// Amounts are stored as text to preserve fixed-point exactness.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    applicant_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount TEXT NOT NULL,
    counterparty_id TEXT,
    direction TEXT NOT NULL,
    status TEXT NOT NULL,
    category TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_applicant ON transactions(applicant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_applicant_ts ON transactions(applicant_id, timestamp);
`

const schemaCatalogs = `
CREATE TABLE IF NOT EXISTS catalogs (
    version TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    loaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalogs_loaded ON catalogs(loaded_at);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    applicant_id TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_band TEXT NOT NULL,
    eligible INTEGER NOT NULL,
    fraud_indicators INTEGER NOT NULL DEFAULT 0,
    catalog_version TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_applicant ON decisions(applicant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_generated ON decisions(applicant_id, generated_at);
CREATE INDEX IF NOT EXISTS idx_decisions_band ON decisions(risk_band);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaCatalogs,
		schemaDecisions,
	}
}
