// Package store persists searches, module results, users and the credit
// ledger. Two backends exist: SQLite for single-node deployments and
// Postgres for shared ones. Both expose the same atomic
// balance-check-and-update primitive the ledger requires.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/tracewire/tracewire/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("not found")

// ErrInsufficientCredits is returned by DebitCredits when the user's
// balance does not cover the amount. The balance and ledger are left
// untouched.
var ErrInsufficientCredits = eris.New("insufficient credits")

// Store defines the persistence interface for the lookup engine.
type Store interface {
	// Searches
	CreateSearch(ctx context.Context, search *model.Search) error
	UpdateSearchStatus(ctx context.Context, searchID string, status model.SearchStatus) error
	// CompleteSearch records the terminal status, the credits actually
	// charged and the completion timestamp in one write.
	CompleteSearch(ctx context.Context, searchID string, status model.SearchStatus, creditsUsed int64) error
	GetSearch(ctx context.Context, searchID string) (*model.Search, error)
	ListSearchesByUser(ctx context.Context, userID string, limit int) ([]model.Search, error)
	ListSearchesByCase(ctx context.Context, caseID string) ([]model.Search, error)

	// Module results
	CreateModuleResult(ctx context.Context, result *model.ModuleResult) error
	ListModuleResults(ctx context.Context, searchID string) ([]model.ModuleResult, error)

	// Users
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// Ledger. DebitCredits decrements the balance only when it covers
	// amount, and appends the transaction row in the same database
	// transaction; the conditional update and the rows-affected check
	// make the debit atomic under concurrent searches for one user.
	DebitCredits(ctx context.Context, userID string, amount int64, reference, description string) (*model.CreditTransaction, error)
	CreditCredits(ctx context.Context, userID string, amount int64, actor, description string) (*model.CreditTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)

	// Audit
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
