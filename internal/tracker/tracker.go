// Package tracker orchestrates lookup searches end to end: validation,
// credit pre-checks, sequential module queries through the correlator,
// parsing and scoring, pay-per-success billing and the final summary.
package tracker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tracewire/tracewire/internal/correlate"
	"github.com/tracewire/tracewire/internal/directory"
	"github.com/tracewire/tracewire/internal/ledger"
	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/parse"
	"github.com/tracewire/tracewire/internal/resilience"
	"github.com/tracewire/tracewire/internal/store"
)

// ErrDisclaimerRequired is returned when a search names a sensitive
// module without an accepted disclaimer.
var ErrDisclaimerRequired = eris.New("sensitive modules require an accepted disclaimer")

// ErrUnknownModule is returned when a requested module is not in the
// catalog.
var ErrUnknownModule = eris.New("unknown module")

// ErrInvalidRequest is returned for malformed submit requests.
var ErrInvalidRequest = eris.New("invalid search request")

// ErrInsufficientCredits mirrors the ledger sentinel.
var ErrInsufficientCredits = ledger.ErrInsufficientCredits

// Querier abstracts the correlator for tests.
type Querier interface {
	Send(ctx context.Context, module string, searchType model.SearchType, value string, timeout time.Duration) (*correlate.Reply, error)
}

// SubmitRequest describes a new search.
type SubmitRequest struct {
	UserID             string
	CaseID             string
	Type               model.SearchType
	Value              string
	Modules            []string
	DisclaimerAccepted bool
}

// Result bundles a finished search with its module results and summary.
type Result struct {
	Search      *model.Search        `json:"search"`
	Modules     []model.ModuleResult `json:"modules"`
	Summary     *model.Summary       `json:"summary,omitempty"`
	CreditsUsed int64                `json:"credits_used"`
}

// Stats aggregates a user's search activity.
type Stats struct {
	TotalSearches  int            `json:"total_searches"`
	Completed      int            `json:"completed"`
	Failed         int            `json:"failed"`
	PhoneSearches  int            `json:"phone_searches"`
	EmailSearches  int            `json:"email_searches"`
	CreditsSpent   int64          `json:"credits_spent"`
	SuccessRate    float64        `json:"success_rate"`
	MostUsedModule string         `json:"most_used_module,omitempty"`
	Recent         []model.Search `json:"recent_searches"`
}

// Tracker runs searches against the bot network and settles billing.
type Tracker struct {
	store    store.Store
	ledger   *ledger.Ledger
	querier  Querier
	dir      *directory.Directory
	parsers  *parse.Set
	breakers *resilience.BotBreakers
	limiter  *rate.Limiter

	queryTimeout time.Duration
	jitterMax    time.Duration
}

// Option configures the tracker.
type Option func(*Tracker)

// WithQueryTimeout sets the fallback reply timeout for bots that do not
// declare a latency.
func WithQueryTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.queryTimeout = d }
}

// WithQueryRate sets the pacing between module queries.
func WithQueryRate(interval time.Duration) Option {
	return func(t *Tracker) { t.limiter = rate.NewLimiter(rate.Every(interval), 1) }
}

// WithBreakerConfig overrides the per-bot circuit breaker policy.
func WithBreakerConfig(cfg resilience.BreakerConfig) Option {
	return func(t *Tracker) { t.breakers = resilience.NewBotBreakers(cfg) }
}

// WithJitter sets the maximum random delay added between module queries.
// Zero disables jitter; tests use that.
func WithJitter(d time.Duration) Option {
	return func(t *Tracker) { t.jitterMax = d }
}

// New creates a tracker.
func New(st store.Store, l *ledger.Ledger, q Querier, dir *directory.Directory, opts ...Option) *Tracker {
	t := &Tracker{
		store:        st,
		ledger:       l,
		querier:      q,
		dir:          dir,
		parsers:      parse.NewSet(),
		breakers:     resilience.NewBotBreakers(resilience.DefaultBreakerConfig()),
		limiter:      rate.NewLimiter(rate.Every(2*time.Second), 1),
		queryTimeout: 30 * time.Second,
		jitterMax:    500 * time.Millisecond,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Breakers exposes per-bot breaker states for health reporting.
func (t *Tracker) Breakers() map[string]resilience.BreakerState {
	return t.breakers.States()
}

// Submit validates a search request, checks credits and records the
// search as pending. The credit check here is advisory; the actual
// charges happen per module during execution and cover only modules
// that returned data.
func (t *Tracker) Submit(ctx context.Context, req SubmitRequest) (*model.Search, error) {
	if !req.Type.Valid() {
		return nil, eris.Wrapf(ErrInvalidRequest, "invalid search type %q", req.Type)
	}
	if req.Value == "" {
		return nil, eris.Wrap(ErrInvalidRequest, "search value is required")
	}
	if len(req.Modules) == 0 {
		return nil, eris.Wrap(ErrInvalidRequest, "at least one module is required")
	}

	modules := dedupModules(req.Modules)
	for _, m := range modules {
		if !model.KnownModule(m) {
			return nil, eris.Wrapf(ErrUnknownModule, "%s", m)
		}
		if model.SensitiveModule(m) && !req.DisclaimerAccepted {
			return nil, eris.Wrapf(ErrDisclaimerRequired, "module %s", m)
		}
	}

	// Reject up front when the balance cannot cover the full request,
	// even though only successful modules are billed later.
	ok, err := t.ledger.Covers(ctx, req.UserID, model.TotalCost(modules))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrInsufficientCredits, "required %d", model.TotalCost(modules))
	}

	search := &model.Search{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		CaseID:    req.CaseID,
		Type:      req.Type,
		Value:     req.Value,
		Modules:   modules,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.store.CreateSearch(ctx, search); err != nil {
		return nil, err
	}

	t.audit(ctx, req.UserID, "search_submitted", "", search.ID)
	zap.L().Info("search submitted",
		zap.String("search_id", search.ID),
		zap.String("user_id", req.UserID),
		zap.Strings("modules", modules),
	)
	return search, nil
}

// Execute runs a pending search: each module is queried in sequence,
// billed on success and persisted as it finishes. A module whose debit
// fails (the balance was drained by a concurrent search after the
// pre-check) is recorded as failed with the ledger error and costs
// nothing; siblings keep running. A search with at least one successful
// module completes; one with none fails.
func (t *Tracker) Execute(ctx context.Context, searchID string) (*Result, error) {
	search, err := t.store.GetSearch(ctx, searchID)
	if err != nil {
		return nil, err
	}
	if search.Status != model.StatusPending {
		return nil, eris.Errorf("tracker: search %s is %s, expected pending", searchID, search.Status)
	}
	if err := t.store.UpdateSearchStatus(ctx, searchID, model.StatusInProgress); err != nil {
		return nil, err
	}
	search.Status = model.StatusInProgress

	// Billing, result rows and the terminal status must land even when
	// the caller cancels mid-batch.
	finishCtx := context.WithoutCancel(ctx)

	var results []model.ModuleResult
	var creditsUsed int64
	anySucceeded := false
	persistFailed := false
	for i, module := range search.Modules {
		if i > 0 {
			if err := t.pace(ctx); err != nil {
				// Cancellation mid-batch: the remaining modules still get
				// a failed result row each, so every requested module has
				// exactly one once the search is terminal.
				for _, skipped := range search.Modules[i:] {
					res := skippedResult(search.ID, skipped, err)
					if perr := t.store.CreateModuleResult(finishCtx, &res); perr != nil {
						zap.L().Error("persist module result failed",
							zap.String("search_id", searchID),
							zap.String("module", skipped),
							zap.Error(perr),
						)
						persistFailed = true
						break
					}
					results = append(results, res)
				}
				break
			}
		}

		res := t.runModule(ctx, search, module)
		if res.Succeeded() {
			txn, err := t.ledger.DebitModule(finishCtx, search.UserID, search.ID, module)
			if err != nil {
				res.Error = eris.Wrap(err, "billing failed").Error()
				zap.L().Warn("module debit failed",
					zap.String("search_id", search.ID),
					zap.String("module", module),
					zap.Error(err),
				)
			} else {
				creditsUsed += txn.Amount
				anySucceeded = true
			}
		}
		if err := t.store.CreateModuleResult(finishCtx, &res); err != nil {
			// Unreachable storage is fatal; already-debited modules keep
			// their transaction rows.
			zap.L().Error("persist module result failed",
				zap.String("search_id", searchID),
				zap.String("module", module),
				zap.Error(err),
			)
			persistFailed = true
			break
		}
		results = append(results, res)
		t.audit(finishCtx, search.UserID, "module_queried", module, res.Error)
	}

	status := model.StatusFailed
	if anySucceeded && !persistFailed {
		status = model.StatusCompleted
	}
	if err := t.store.CompleteSearch(finishCtx, search.ID, status, creditsUsed); err != nil {
		return nil, err
	}
	search.Status = status
	search.CreditsUsed = creditsUsed

	t.audit(finishCtx, search.UserID, "search_"+string(status), "", search.ID)
	zap.L().Info("search finished",
		zap.String("search_id", search.ID),
		zap.String("status", string(status)),
		zap.Int64("credits_used", creditsUsed),
	)

	result := &Result{Search: search, Modules: results, CreditsUsed: creditsUsed}
	if status == model.StatusCompleted {
		result.Summary = BuildSummary(results)
	}
	return result, nil
}

// Run submits and executes in one call, for the CLI path.
func (t *Tracker) Run(ctx context.Context, req SubmitRequest) (*Result, error) {
	search, err := t.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, search.ID)
}

// GetResult loads a stored search with its module results and, when any
// module succeeded, the rebuilt summary.
func (t *Tracker) GetResult(ctx context.Context, searchID string) (*Result, error) {
	search, err := t.store.GetSearch(ctx, searchID)
	if err != nil {
		return nil, err
	}
	results, err := t.store.ListModuleResults(ctx, searchID)
	if err != nil {
		return nil, err
	}

	result := &Result{Search: search, Modules: results, CreditsUsed: search.CreditsUsed}
	for _, r := range results {
		if r.Succeeded() {
			result.Summary = BuildSummary(results)
			break
		}
	}
	return result, nil
}

// UserStats aggregates search counts, spend and module usage for one
// user over their most recent searches.
func (t *Tracker) UserStats(ctx context.Context, userID string, limit int) (*Stats, error) {
	searches, err := t.store.ListSearchesByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalSearches: len(searches)}
	moduleCounts := make(map[string]int)
	for _, s := range searches {
		switch s.Status {
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		}
		switch s.Type {
		case model.SearchTypePhone:
			stats.PhoneSearches++
		case model.SearchTypeEmail:
			stats.EmailSearches++
		}
		stats.CreditsSpent += s.CreditsUsed
		for _, m := range s.Modules {
			moduleCounts[m]++
		}
	}

	if terminal := stats.Completed + stats.Failed; terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}
	best := 0
	for _, m := range model.Catalog() {
		if n := moduleCounts[m.Name]; n > best {
			best = n
			stats.MostUsedModule = m.Name
		}
	}
	if len(searches) > 5 {
		searches = searches[:5]
	}
	stats.Recent = searches
	return stats, nil
}

func (t *Tracker) runModule(ctx context.Context, search *model.Search, module string) model.ModuleResult {
	res := model.ModuleResult{
		ID:          uuid.New().String(),
		SearchID:    search.ID,
		Module:      module,
		Data:        model.Fields{},
		Confidence:  model.ConfidenceLow,
		RetrievedAt: time.Now().UTC(),
	}

	bot, err := t.dir.Lookup(module)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	breaker := t.breakers.Get(bot.Identity)
	if err := breaker.Allow(); err != nil {
		res.Error = err.Error()
		return res
	}

	timeout := t.queryTimeout
	if bot.Latency > 0 {
		timeout = bot.Latency
	}

	reply, err := t.querier.Send(ctx, module, search.Type, search.Value, timeout)
	breaker.Record(err)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Data = t.parsers.Parse(module, reply.Text())
	res.Confidence = parse.Score(res.Data)
	res.Source = reply.Bot
	res.RetrievedAt = time.Now().UTC()
	return res
}

// skippedResult records a module the search never queried because the
// batch was interrupted first.
func skippedResult(searchID, module string, cause error) model.ModuleResult {
	return model.ModuleResult{
		ID:          uuid.New().String(),
		SearchID:    searchID,
		Module:      module,
		Data:        model.Fields{},
		Confidence:  model.ConfidenceLow,
		Error:       eris.Wrap(cause, "cancelled before query").Error(),
		RetrievedAt: time.Now().UTC(),
	}
}

func (t *Tracker) pace(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	if t.jitterMax > 0 {
		jitter := time.Duration(rand.Int63n(int64(t.jitterMax)))
		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (t *Tracker) audit(ctx context.Context, userID, action, module, details string) {
	err := t.store.AppendAudit(ctx, &model.AuditEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Module:    module,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		zap.L().Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}

func dedupModules(modules []string) []string {
	seen := make(map[string]bool, len(modules))
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
