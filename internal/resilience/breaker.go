package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed is the normal operating state.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the bot failed too often; queries are skipped.
	BreakerOpen
	// BreakerHalfOpen allows one probe query to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBotUnavailable is returned when a query is skipped because the
// bot's breaker is open.
var ErrBotUnavailable = eris.New("bot circuit breaker is open")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before
	// opening. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe. Default: 2m.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns sensible per-bot breaker defaults. Bots
// are slow; a couple of consecutive timeouts usually means the operator
// paused the bot.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     2 * time.Minute,
	}
}

// Breaker is a circuit breaker for a single bot identity.
type Breaker struct {
	cfg BreakerConfig

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
	nowFunc             func() time.Time
}

// NewBreaker creates a breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 2 * time.Minute
	}
	return &Breaker{cfg: cfg, state: BreakerClosed, nowFunc: time.Now}
}

// Allow reports whether a query may proceed, transitioning an expired
// open breaker to half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrBotUnavailable
	default:
		return nil
	}
}

// Record updates the breaker with the outcome of a query.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = BreakerClosed
		b.consecutiveFailures = 0
		return
	}

	b.consecutiveFailures++
	b.lastFailure = b.nowFunc()
	if b.state == BreakerHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// BotBreakers manages one breaker per bot identity.
type BotBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewBotBreakers creates a per-bot breaker registry.
func NewBotBreakers(cfg BreakerConfig) *BotBreakers {
	return &BotBreakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for a bot identity, creating one if needed.
func (bb *BotBreakers) Get(bot string) *Breaker {
	bb.mu.RLock()
	b, ok := bb.breakers[bot]
	bb.mu.RUnlock()
	if ok {
		return b
	}

	bb.mu.Lock()
	defer bb.mu.Unlock()
	if b, ok = bb.breakers[bot]; ok {
		return b
	}
	b = NewBreaker(bb.cfg)
	bb.breakers[bot] = b
	return b
}

// States returns a snapshot of all breaker states keyed by bot identity.
func (bb *BotBreakers) States() map[string]BreakerState {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	out := make(map[string]BreakerState, len(bb.breakers))
	for bot, b := range bb.breakers {
		out[bot] = b.State()
	}
	return out
}
