package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tracewire/tracewire/internal/db"
	"github.com/tracewire/tracewire/internal/model"
)

// PostgresStore implements Store on top of pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with a mock
// pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	credits    BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
	is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS searches (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL REFERENCES users(id),
	case_id      TEXT NOT NULL,
	type         TEXT NOT NULL,
	value        TEXT NOT NULL,
	modules      JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	credits_used BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS module_results (
	id           TEXT PRIMARY KEY,
	search_id    TEXT NOT NULL REFERENCES searches(id),
	module       TEXT NOT NULL,
	data         JSONB NOT NULL,
	confidence   TEXT NOT NULL,
	source       TEXT,
	error        TEXT,
	retrieved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (search_id, module)
);

CREATE TABLE IF NOT EXISTS credit_transactions (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL REFERENCES users(id),
	type           TEXT NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	balance_before BIGINT NOT NULL,
	balance_after  BIGINT NOT NULL,
	reference      TEXT,
	description    TEXT NOT NULL,
	actor          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	action     TEXT NOT NULL,
	module     TEXT,
	details    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_searches_user_id ON searches(user_id);
CREATE INDEX IF NOT EXISTS idx_searches_case_id ON searches(case_id);
CREATE INDEX IF NOT EXISTS idx_module_results_search_id ON module_results(search_id);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_id ON credit_transactions(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON audit_log(user_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSearch(ctx context.Context, search *model.Search) error {
	modulesJSON, err := json.Marshal(search.Modules)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal modules")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO searches (id, user_id, case_id, type, value, modules, status, credits_used, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		search.ID, search.UserID, search.CaseID, string(search.Type), search.Value,
		modulesJSON, string(search.Status), search.CreditsUsed, search.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert search")
}

func (s *PostgresStore) UpdateSearchStatus(ctx context.Context, searchID string, status model.SearchStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE searches SET status = $1 WHERE id = $2`,
		string(status), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update search status %s", searchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "search %s", searchID)
	}
	return nil
}

func (s *PostgresStore) CompleteSearch(ctx context.Context, searchID string, status model.SearchStatus, creditsUsed int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE searches SET status = $1, credits_used = $2, completed_at = $3 WHERE id = $4`,
		string(status), creditsUsed, time.Now().UTC(), searchID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete search %s", searchID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "search %s", searchID)
	}
	return nil
}

func (s *PostgresStore) GetSearch(ctx context.Context, searchID string) (*model.Search, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE id = $1`,
		searchID,
	)
	return scanPgSearch(row)
}

func (s *PostgresStore) ListSearchesByUser(ctx context.Context, userID string, limit int) ([]model.Search, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches by user")
	}
	defer rows.Close()
	return collectPgSearches(rows)
}

func (s *PostgresStore) ListSearchesByCase(ctx context.Context, caseID string) ([]model.Search, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, case_id, type, value, modules, status, credits_used, created_at, completed_at
		 FROM searches WHERE case_id = $1 ORDER BY created_at DESC`,
		caseID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list searches by case")
	}
	defer rows.Close()
	return collectPgSearches(rows)
}

func (s *PostgresStore) CreateModuleResult(ctx context.Context, result *model.ModuleResult) error {
	dataJSON, err := json.Marshal(result.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO module_results (id, search_id, module, data, confidence, source, error, retrieved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ID, result.SearchID, result.Module, dataJSON,
		string(result.Confidence), nullable(result.Source), nullable(result.Error), result.RetrievedAt,
	)
	return eris.Wrap(err, "postgres: insert module result")
}

func (s *PostgresStore) ListModuleResults(ctx context.Context, searchID string) ([]model.ModuleResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, search_id, module, data, confidence, source, error, retrieved_at
		 FROM module_results WHERE search_id = $1 ORDER BY retrieved_at`,
		searchID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list module results")
	}
	defer rows.Close()

	var results []model.ModuleResult
	for rows.Next() {
		var r model.ModuleResult
		var dataJSON []byte
		var source, errMsg *string
		if err := rows.Scan(&r.ID, &r.SearchID, &r.Module, &dataJSON, &r.Confidence, &source, &errMsg, &r.RetrievedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan module result")
		}
		if err := json.Unmarshal(dataJSON, &r.Data); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result data")
		}
		if source != nil {
			r.Source = *source
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate module results")
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, credits, is_admin, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Name, user.Credits, user.IsAdmin, user.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert user")
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, credits, is_admin, created_at FROM users WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Name, &u.Credits, &u.IsAdmin, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get user")
	}
	return &u, nil
}

func (s *PostgresStore) DebitCredits(ctx context.Context, userID string, amount int64, reference, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, eris.Errorf("postgres: debit amount must be positive, got %d", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin debit")
	}
	defer tx.Rollback(ctx)

	var after int64
	err = tx.QueryRow(ctx,
		`UPDATE users SET credits = credits - $1 WHERE id = $2 AND credits >= $1 RETURNING credits`,
		amount, userID,
	).Scan(&after)
	if err == pgx.ErrNoRows {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT credits FROM users WHERE id = $1`, userID).Scan(&balance)
		if err == pgx.ErrNoRows {
			return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
		}
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read balance")
		}
		return nil, eris.Wrapf(ErrInsufficientCredits, "required %d, available %d", amount, balance)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: conditional debit")
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
	if err := insertPgTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit debit")
	}
	return txn, nil
}

func (s *PostgresStore) CreditCredits(ctx context.Context, userID string, amount int64, actor, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, eris.Errorf("postgres: credit amount must be positive, got %d", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin credit")
	}
	defer tx.Rollback(ctx)

	var after int64
	err = tx.QueryRow(ctx,
		`UPDATE users SET credits = credits + $1 WHERE id = $2 RETURNING credits`,
		amount, userID,
	).Scan(&after)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "user %s", userID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: credit update")
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
	if err := insertPgTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit credit")
	}
	return txn, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, amount, balance_before, balance_after, reference, description, actor, created_at
		 FROM credit_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var txns []model.CreditTransaction
	for rows.Next() {
		var t model.CreditTransaction
		var reference, actor *string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceBefore, &t.BalanceAfter,
			&reference, &t.Description, &actor, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		if reference != nil {
			t.Reference = *reference
		}
		if actor != nil {
			t.Actor = *actor
		}
		txns = append(txns, t)
	}
	return txns, eris.Wrap(rows.Err(), "postgres: iterate transactions")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, user_id, action, module, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.UserID, entry.Action, nullable(entry.Module), nullable(entry.Details), entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert audit entry")
}

func insertPgTransaction(ctx context.Context, tx pgx.Tx, txn *model.CreditTransaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO credit_transactions (id, user_id, type, amount, balance_before, balance_after, reference, description, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, txn.UserID, string(txn.Type), txn.Amount, txn.BalanceBefore, txn.BalanceAfter,
		nullable(txn.Reference), txn.Description, nullable(txn.Actor), txn.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert transaction")
}

func scanPgSearch(row pgx.Row) (*model.Search, error) {
	var sr model.Search
	var modulesJSON []byte
	var completedAt *time.Time

	err := row.Scan(&sr.ID, &sr.UserID, &sr.CaseID, &sr.Type, &sr.Value, &modulesJSON,
		&sr.Status, &sr.CreditsUsed, &sr.CreatedAt, &completedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "search")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan search")
	}

	if err := json.Unmarshal(modulesJSON, &sr.Modules); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal modules")
	}
	sr.CompletedAt = completedAt
	return &sr, nil
}

func collectPgSearches(rows pgx.Rows) ([]model.Search, error) {
	var searches []model.Search
	for rows.Next() {
		sr, err := scanPgSearch(rows)
		if err != nil {
			return nil, err
		}
		searches = append(searches, *sr)
	}
	return searches, eris.Wrap(rows.Err(), "postgres: iterate searches")
}
