package model

import "time"

// TransactionType distinguishes balance decreases from increases.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// CreditTransaction is one append-only ledger entry. For a given user the
// entries ordered by creation time form a chain: each entry's
// BalanceBefore equals the prior entry's BalanceAfter.
type CreditTransaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int64           `json:"amount"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	Reference     string          `json:"reference,omitempty"`
	Description   string          `json:"description"`
	Actor         string          `json:"actor,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// User is the caller identity the ledger bills. Credits is the
// denormalized current balance; it must equal the BalanceAfter of the
// user's most recent transaction and never goes negative.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Credits   int64     `json:"credits"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records a user-visible action for later review.
type AuditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Module    string    `json:"module,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
