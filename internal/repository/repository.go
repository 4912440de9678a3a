// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
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

// SaveTransaction stores a single transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ApplicantID == "" {
		return fmt.Errorf("%w: applicantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, applicant_id, timestamp, amount, counterparty_id,
			direction, status, category, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.ApplicantID, tx.Timestamp, tx.Amount.String(),
		tx.CounterpartyID, string(tx.Direction), string(tx.Status),
		tx.Category, tx.CreatedAt,
	)
	return err
}

// SaveTransactions stores a batch inside one database transaction.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, applicant_id, timestamp, amount, counterparty_id,
			direction, status, category, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		if tx.ApplicantID == "" {
			return fmt.Errorf("%w: applicantID is required", ErrInvalidInput)
		}
		if _, err := stmt.ExecContext(ctx,
			tx.ID, tx.ApplicantID, tx.Timestamp, tx.Amount.String(),
			tx.CounterpartyID, string(tx.Direction), string(tx.Status),
			tx.Category, tx.CreatedAt,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetTransactionsByApplicant retrieves an applicant's transactions since the
// given time, oldest first.
func (r *SQLRepository) GetTransactionsByApplicant(ctx context.Context, applicantID string, since time.Time) ([]*domain.Transaction, error) {
	if applicantID == "" {
		return nil, fmt.Errorf("%w: applicantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, applicant_id, timestamp, amount, counterparty_id,
			   direction, status, category, created_at
		FROM transactions
		WHERE applicant_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), applicantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var (
			tx        domain.Transaction
			amount    string
			direction string
			status    string
		)
		if err := rows.Scan(
			&tx.ID, &tx.ApplicantID, &tx.Timestamp, &amount,
			&tx.CounterpartyID, &direction, &status,
			&tx.Category, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: bad stored amount %q: %w", tx.ID, amount, err)
		}
		tx.Direction = domain.Direction(direction)
		tx.Status = domain.TransactionStatus(status)

		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// ListApplicantIDs returns every distinct applicant with stored transactions.
func (r *SQLRepository) ListApplicantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT applicant_id FROM transactions ORDER BY applicant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveCatalogDocument stores a raw catalog document under its version.
// Re-storing the same version replaces the document.
func (r *SQLRepository) SaveCatalogDocument(ctx context.Context, version string, document []byte) error {
	if version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO catalogs (version, document, loaded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (version) DO UPDATE SET document = excluded.document, loaded_at = excluded.loaded_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), version, string(document), time.Now().UTC())
	return err
}

// GetLatestCatalogDocument returns the most recently stored catalog document.
func (r *SQLRepository) GetLatestCatalogDocument(ctx context.Context) (string, []byte, error) {
	query := `SELECT version, document FROM catalogs ORDER BY loaded_at DESC LIMIT 1`

	var version, document string
	err := r.db.QueryRowContext(ctx, query).Scan(&version, &document)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return version, []byte(document), nil
}

// SaveDecision stores a complete decision; the full result is kept as a
// JSON payload with queryable summary columns alongside.
func (r *SQLRepository) SaveDecision(ctx context.Context, d *domain.Decision) error {
	if d.ApplicantID == "" {
		return fmt.Errorf("%w: applicantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	eligible := 0
	if d.Eligibility != nil && d.Eligibility.Eligible {
		eligible = 1
	}

	query := `
		INSERT INTO decisions (
			id, applicant_id, score, risk_band, eligible,
			fraud_indicators, catalog_version, generated_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.ApplicantID, d.Score.Score, d.Score.RiskBand, eligible,
		len(d.FraudIndicators), d.CatalogVersion, d.GeneratedAt, string(payload),
	)
	return err
}

// GetDecision retrieves a decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	query := `SELECT payload FROM decisions WHERE id = ?`
	return r.scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), decisionID))
}

// GetLatestDecision retrieves an applicant's most recent decision.
func (r *SQLRepository) GetLatestDecision(ctx context.Context, applicantID string) (*domain.Decision, error) {
	if applicantID == "" {
		return nil, fmt.Errorf("%w: applicantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM decisions
		WHERE applicant_id = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`
	return r.scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), applicantID))
}

func (r *SQLRepository) scanDecision(row *sql.Row) (*domain.Decision, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var d domain.Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("unmarshal decision payload: %w", err)
	}
	return &d, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

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
