package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates the flow of funds relative to the applicant's account.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// TransactionStatus is the settlement outcome of a transaction.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
	StatusPending TransactionStatus = "PENDING"
)

// Transaction is a single raw transaction supplied for evaluation.
// Transactions are immutable inputs; the engine never modifies them.
type Transaction struct {
	ID          string `json:"id,omitempty"`
	ApplicantID string `json:"applicantId,omitempty"`

	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"` // non-negative

	// CounterpartyID identifies the other party. May be empty when the
	// upstream source could not resolve one.
	CounterpartyID string `json:"counterpartyId,omitempty"`

	Direction Direction         `json:"direction"`
	Status    TransactionStatus `json:"status"`
	Category  string            `json:"category,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IsSuccessfulCredit reports whether the transaction counts toward
// volume-based metrics.
func (t *Transaction) IsSuccessfulCredit() bool {
	return t.Direction == DirectionCredit && t.Status == StatusSuccess
}

// TransactionRecord is the API request payload for transaction ingestion.
type TransactionRecord struct {
	Timestamp      time.Time         `json:"timestamp"`
	Amount         decimal.Decimal   `json:"amount"`
	CounterpartyID string            `json:"counterpartyId,omitempty"`
	Direction      Direction         `json:"direction"`
	Status         TransactionStatus `json:"status"`
	Category       string            `json:"category,omitempty"`
}

// ToTransaction converts an ingestion record to a Transaction.
func (r *TransactionRecord) ToTransaction(id, applicantID string) *Transaction {
	return &Transaction{
		ID:             id,
		ApplicantID:    applicantID,
		Timestamp:      r.Timestamp,
		Amount:         r.Amount,
		CounterpartyID: r.CounterpartyID,
		Direction:      r.Direction,
		Status:         r.Status,
		Category:       r.Category,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate checks a record for the constraints the engine relies on.
func (r *TransactionRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return ErrTimestampRequired
	}
	if r.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	switch r.Direction {
	case DirectionCredit, DirectionDebit:
	default:
		return ErrInvalidDirection
	}
	switch r.Status {
	case StatusSuccess, StatusFailed, StatusPending:
	default:
		return ErrInvalidStatus
	}
	return nil
}
