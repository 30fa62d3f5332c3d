// Package ledger manages user credit balances. Every balance change
// goes through a debit or credit that appends a transaction row, so the
// history reconstructs the balance at any point in time.
package ledger

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/store"
)

// ErrInsufficientCredits mirrors the store sentinel so callers do not
// import the store package just to classify billing failures.
var ErrInsufficientCredits = store.ErrInsufficientCredits

// Ledger wraps the store's credit operations with balance checks and
// logging.
type Ledger struct {
	store store.Store
}

// New creates a Ledger backed by the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: balance")
	}
	return u.Credits, nil
}

// Covers reports whether the user's balance covers the given amount. It
// is advisory only; Debit re-checks atomically.
func (l *Ledger) Covers(ctx context.Context, userID string, amount int64) (bool, error) {
	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// DebitModule charges the user for one successful module query. Each
// debit is an atomic conditional update in the store; a failed debit
// leaves no transaction row.
func (l *Ledger) DebitModule(ctx context.Context, userID, searchID, module string) (*model.CreditTransaction, error) {
	amount := model.ModuleCost(module)
	if amount <= 0 {
		return nil, eris.Errorf("ledger: module %q has no cost", module)
	}

	desc := fmt.Sprintf("search %s: %s", searchID, module)
	txn, err := l.store.DebitCredits(ctx, userID, amount, searchID, desc)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: debit")
	}

	zap.L().Info("credits debited",
		zap.String("user_id", userID),
		zap.String("search_id", searchID),
		zap.String("module", module),
		zap.Int64("amount", amount),
		zap.Int64("balance", txn.BalanceAfter),
	)
	return txn, nil
}

// Credit adds credits to a user's balance on behalf of an admin.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, actor, description string) (*model.CreditTransaction, error) {
	txn, err := l.store.CreditCredits(ctx, userID, amount, actor, description)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: credit")
	}

	zap.L().Info("credits added",
		zap.String("user_id", userID),
		zap.String("actor", actor),
		zap.Int64("amount", amount),
		zap.Int64("balance", txn.BalanceAfter),
	)
	return txn, nil
}

// History returns the user's most recent transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	txns, err := l.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: history")
	}
	return txns, nil
}
