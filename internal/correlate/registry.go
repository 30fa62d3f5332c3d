package correlate

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tracewire/tracewire/internal/chat"
)

// ErrNotFound is returned when a query id has no pending entry, either
// because it never existed or because it was already resolved or timed
// out and cleaned up.
var ErrNotFound = eris.New("pending query not found")

// pendingQuery tracks one in-flight bot exchange. Entries are ephemeral:
// registered on send and removed on every exit path. An orphaned entry
// is a resource leak and a reply-misattribution hazard.
type pendingQuery struct {
	id        string
	bot       string
	startedAt time.Time
	replies   []chat.Message
}

// Registry holds the in-flight query entries, keyed by query id. All
// access is mutex guarded: the inbound listener and senders run on
// separate goroutines.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*pendingQuery
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*pendingQuery)}
}

// Register adds a pending entry for a query targeting the given bot
// identity.
func (r *Registry) Register(queryID, bot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[queryID] = &pendingQuery{
		id:        queryID,
		bot:       bot,
		startedAt: time.Now(),
	}
}

// Deliver appends the message to every pending entry whose target bot
// matches the sender. Matching is by sender identity only, which is why
// in-flight queries to the same bot must be serialized by the caller.
func (r *Registry) Deliver(msg chat.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := 0
	for _, pq := range r.pending {
		if pq.bot == msg.Sender {
			pq.replies = append(pq.replies, msg)
			matched++
		}
	}
	return matched
}

// Replies returns a snapshot of the buffered replies for a query id.
func (r *Registry) Replies(queryID string) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pq, ok := r.pending[queryID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "query %s", queryID)
	}
	out := make([]chat.Message, len(pq.replies))
	copy(out, pq.replies)
	return out, nil
}

// Remove deletes the pending entry. Safe to call on an already removed
// id.
func (r *Registry) Remove(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, queryID)
}

// Len returns the number of in-flight entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
