// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	SaveTransactions(ctx context.Context, txs []*Transaction) error
	GetTransactionsByApplicant(ctx context.Context, applicantID string, since time.Time) ([]*Transaction, error)
	ListApplicantIDs(ctx context.Context) ([]string, error)

	// Catalog documents (raw JSON, versioned; parsing is the loader's job)
	SaveCatalogDocument(ctx context.Context, version string, document []byte) error
	GetLatestCatalogDocument(ctx context.Context) (version string, document []byte, err error)

	// Decision results
	SaveDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, decisionID string) (*Decision, error)
	GetLatestDecision(ctx context.Context, applicantID string) (*Decision, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
