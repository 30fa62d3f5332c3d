package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tracewire/tracewire/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	credits    INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	is_admin   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS searches (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	case_id      TEXT NOT NULL,
	type         TEXT NOT NULL,
	value        TEXT NOT NULL,
	modules      TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	credits_used INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS module_results (
	id           TEXT PRIMARY KEY,
	search_id    TEXT NOT NULL REFERENCES searches(id),
	module       TEXT NOT NULL,
	data         TEXT NOT NULL,
	confidence   TEXT NOT NULL,
	source       TEXT,
	error        TEXT,
	retrieved_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (search_id, module)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id),
	type           TEXT NOT NULL,
	amount         INTEGER NOT NULL CHECK (amount > 0),
	balance_before INTEGER NOT NULL,
	balance_after  INTEGER NOT NULL,
	reference      TEXT,
	description    TEXT NOT NULL,
	actor          TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	module     TEXT,
	details    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_searches_case_id ON searches(case_id);
CREATE INDEX IF NOT EXISTS idx_module_results_search_id ON module_results(search_id);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id ON credit_transactions(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON audit_log(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSearch(ctx context.Context, search *model.Search) error {
	modulesJSON, err := json.Marshal(search.Modules)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal modules")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO searches (id, user_id, case_id, type, value, modules, status, credits_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		search.ID, search.UserID, search.CaseID, string(search.Type), search.Value,
		string(modulesJSON), string(search.Status), search.CreditsUsed, search.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert search")
}

func (s *SQLiteStore) UpdateSearchStatus(ctx context.Context, searchID string, status model.SearchStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET status = ? WHERE id = ?`,
		string(status), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update search status %s", searchID)
	}
	return checkRowsAffected(res, "search", searchID)
}

func (s *SQLiteStore) CompleteSearch(ctx context.Context, searchID string, status model.SearchStatus, creditsUsed int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE searches SET status = ?, credits_used = ?, completed_at = ? WHERE id = ?`,
		string(status), creditsUsed, time.Now().UTC(), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete search %s", searchID)
	}
	return checkRowsAffected(res, "search", searchID)
}

func (s *SQLiteStore) GetSearch(ctx context.Context, searchID string) (*model.Search, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE id = ?`,
		searchID,
	)
	return scanSearch(row)
}

func (s *SQLiteStore) ListSearchesByUser(ctx context.Context, userID string, limit int) ([]model.Search, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches by user")
	}
	defer rows.Close()
	return collectSearches(rows)
}

func (s *SQLiteStore) ListSearchesByCase(ctx context.Context, caseID string) ([]model.Search, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE case_id = ? ORDER BY created_at DESC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list searches by case")
	}
	defer rows.Close()
	return collectSearches(rows)
}

func (s *SQLiteStore) CreateModuleResult(ctx context.Context, result *model.ModuleResult) error {
	dataJSON, err := json.Marshal(result.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO module_results (id, search_id, module, data, confidence, source, error, retrieved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.SearchID, result.Module, string(dataJSON),
		string(result.Confidence), nullable(result.Source), nullable(result.Error), result.RetrievedAt,
	)
	return eris.Wrap(err, "sqlite: insert module result")
}

func (s *SQLiteStore) ListModuleResults(ctx context.Context, searchID string) ([]model.ModuleResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, search_id, module, data, confidence, source, error, retrieved_at
		 FROM module_results WHERE search_id = ? ORDER BY retrieved_at`,
		searchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list module results")
	}
	defer rows.Close()

	var results []model.ModuleResult
	for rows.Next() {
		var r model.ModuleResult
		var dataJSON string
		var source, errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.SearchID, &r.Module, &dataJSON, &r.Confidence, &source, &errMsg, &r.RetrievedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan module result")
		}
		if err := json.Unmarshal([]byte(dataJSON), &r.Data); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result data")
		}
		r.Source = source.String
		r.Error = errMsg.String
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: iterate module results")
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, credits, is_admin, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Credits, user.IsAdmin, user.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert user")
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, credits, is_admin, created_at FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.Name, &u.Credits, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get user")
	}
	return &u, nil
}

func (s *SQLiteStore) DebitCredits(ctx context.Context, userID string, amount int64, reference, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, eris.Errorf("sqlite: debit amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin debit")
	}
	defer tx.Rollback()

	// Conditional update: the balance check and the decrement are one
	// statement, so a concurrent debit cannot slip between them.
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits - ? WHERE id = ? AND credits >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: conditional debit")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: debit rows affected")
	}
	if n == 0 {
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&balance)
		if err == sql.ErrNoRows {
			return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
		}
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: read balance")
		}
		return nil, eris.Wrapf(ErrInsufficientCredits, "required %d, available %d", amount, balance)
	}

	var after int64
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&after); err != nil {
		return nil, eris.Wrap(err, "sqlite: read balance after debit")
	}

	txn := &model.CreditTransaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          model.TransactionDebit,
		Amount:        amount,
		BalanceBefore: after + amount,
		BalanceAfter:  after,
		Reference:     reference,
		Description:   description,
		Actor:         "self",
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit debit")
	}
	return txn, nil
}

func (s *SQLiteStore) CreditCredits(ctx context.Context, userID string, amount int64, actor, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, eris.Errorf("sqlite: credit amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin credit")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ?`,
		amount, userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: credit update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: credit rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
	}

	var after int64
	if err := tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&after); err != nil {
		return nil, eris.Wrap(err, "sqlite: read balance after credit")
	}

	txn := &model.CreditTransaction{
		ID:            uuid.New().String(),
		UserID:        userID,
		Type:          model.TransactionCredit,
		Amount:        amount,
		BalanceBefore: after - amount,
		BalanceAfter:  after,
		Description:   description,
		Actor:         actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit credit")
	}
	return txn, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, balance_before, balance_after, reference, description, actor, created_at
		 FROM credit_transactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var txns []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var reference, actor sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&reference, &t.Description, &actor, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		t.Reference = reference.String
		t.Actor = actor.String
		txns = append(txns, t)
	}
	return txns, eris.Wrap(rows.Err(), "sqlite: iterate transactions")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, user_id, action, module, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Action, nullable(entry.Module), nullable(entry.Details), entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert audit entry")
}

// helpers

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, tx execer, txn *model.CreditTransaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, user_id, type, amount, balance_before, balance_after, reference, description, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.UserID, string(txn.Type), txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		nullable(txn.Reference), txn.Description, nullable(txn.Actor), txn.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert transaction")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSearch(row scannable) (*model.Search, error) {
	var sr model.Search
	var modulesJSON string
	var completedAt sql.NullTime

	err := row.Scan(&sr.ID, &sr.UserID, &sr.CaseID, &sr.Type, &sr.Value, &modulesJSON,
		&sr.Status, &sr.CreditsUsed, &sr.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "search")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan search")
	}

	if err := json.Unmarshal([]byte(modulesJSON), &sr.Modules); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal modules")
	}
	if completedAt.Valid {
		t := completedAt.Time
		sr.CompletedAt = &t
	}
	return &sr, nil
}

func collectSearches(rows *sql.Rows) ([]model.Search, error) {
	var searches []model.Search
	for rows.Next() {
		sr, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *sr)
	}
	return searches, eris.Wrap(rows.Err(), "sqlite: iterate searches")
}
