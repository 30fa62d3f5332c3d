// Package correlate matches asynchronous bot replies on the chat
// transport back to the in-flight queries that caused them. Replies are
// matched by sender identity, so the correlator strictly serializes
// queries per bot; a per-query correlation token would need the external
// bots to echo it, which the protocol does not offer.
package correlate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tracewire/tracewire/internal/chat"
	"github.com/tracewire/tracewire/internal/directory"
	"github.com/tracewire/tracewire/internal/model"
	"github.com/tracewire/tracewire/internal/resilience"
)

// ErrQueryTimeout is returned when a bot sends no reply within the
// configured window.
var ErrQueryTimeout = eris.New("no response from bot within timeout")

// Reply is the raw outcome of one bot exchange before parsing.
type Reply struct {
	QueryID string
	Bot     string
	Texts   []string
}

// Text concatenates all buffered reply texts for parsing.
func (r Reply) Text() string {
	return strings.Join(r.Texts, "\n")
}

// Correlator sends module queries over the transport and awaits the
// matching replies.
type Correlator struct {
	transport    chat.Transport
	dir          *directory.Directory
	registry     *Registry
	retry        resilience.RetryConfig
	pollInterval time.Duration

	mu     sync.Mutex
	botMus map[string]*sync.Mutex
}

// Option configures the correlator.
type Option func(*Correlator)

// WithPollInterval overrides the reply poll interval (default 1s).
func WithPollInterval(d time.Duration) Option {
	return func(c *Correlator) { c.pollInterval = d }
}

// WithRetryConfig overrides the send retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Correlator) { c.retry = cfg }
}

// New creates a correlator over the given transport and bot directory.
func New(transport chat.Transport, dir *directory.Directory, opts ...Option) *Correlator {
	c := &Correlator{
		transport:    transport,
		dir:          dir,
		registry:     NewRegistry(),
		retry:        resilience.DefaultRetryConfig(),
		pollInterval: time.Second,
		botMus:       make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry exposes the pending-query registry for observability.
func (c *Correlator) Registry() *Registry {
	return c.registry
}

// Listen consumes the transport's inbound stream and routes messages
// from known bots to pending queries. It returns when the context is
// cancelled or the transport closes its stream. Run it on its own
// goroutine for the life of the process.
func (c *Correlator) Listen(ctx context.Context) {
	bots := c.dir.Identities()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.transport.Messages():
			if !ok {
				return
			}
			if !bots[msg.Sender] {
				continue
			}
			if n := c.registry.Deliver(msg); n > 0 {
				zap.L().Debug("correlate: reply delivered",
					zap.String("sender", msg.Sender),
					zap.Int("pending_matched", n),
				)
			}
		}
	}
}

// Send resolves the serving bot for a module, relays the formatted query
// and waits for at least one reply. The pending entry is removed on
// every exit path. Transient transport failures are retried.
func (c *Correlator) Send(ctx context.Context, module string, searchType model.SearchType, value string, timeout time.Duration) (*Reply, error) {
	bot, err := c.dir.Lookup(module)
	if err != nil {
		return nil, err
	}

	// Serialize in-flight queries per bot identity: sender-only matching
	// cannot tell two concurrent exchanges with the same bot apart.
	botMu := c.lockFor(bot.Identity)
	botMu.Lock()
	defer botMu.Unlock()

	queryID := fmt.Sprintf("%s:%s:%s", module, value, uuid.NewString()[:8])
	c.registry.Register(queryID, bot.Identity)
	defer c.registry.Remove(queryID)

	command := directory.FormatCommand(module, searchType, value)
	zap.L().Info("correlate: querying bot",
		zap.String("module", module),
		zap.String("bot", bot.Identity),
		zap.String("query_id", queryID),
	)

	send := func(ctx context.Context) error {
		return c.transport.Send(ctx, bot.Identity, command)
	}
	if err := resilience.Do(ctx, c.retry, send); err != nil {
		return nil, eris.Wrapf(err, "correlate: send to %s", bot.Identity)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "correlate: wait aborted")
		case <-deadline.C:
			return nil, eris.Wrapf(ErrQueryTimeout, "bot %s, module %s", bot.Identity, module)
		case <-tick.C:
			replies, err := c.registry.Replies(queryID)
			if err != nil {
				return nil, err
			}
			if len(replies) == 0 {
				continue
			}
			texts := make([]string, len(replies))
			for i, m := range replies {
				texts[i] = m.Text
			}
			return &Reply{QueryID: queryID, Bot: bot.Identity, Texts: texts}, nil
		}
	}
}

func (c *Correlator) lockFor(bot string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.botMus[bot]
	if !ok {
		mu = &sync.Mutex{}
		c.botMus[bot] = mu
	}
	return mu
}
