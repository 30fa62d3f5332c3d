package model

import "time"

// SearchType identifies what kind of value a search targets.
type SearchType string

const (
	SearchTypePhone SearchType = "phone"
	SearchTypeEmail SearchType = "email"
)

// Valid reports whether the search type is one of the supported kinds.
func (t SearchType) Valid() bool {
	return t == SearchTypePhone || t == SearchTypeEmail
}

// SearchStatus represents the lifecycle state of a search.
// Transitions are monotonic: pending -> in_progress -> {completed, failed}.
type SearchStatus string

const (
	StatusPending    SearchStatus = "pending"
	StatusInProgress SearchStatus = "in_progress"
	StatusCompleted  SearchStatus = "completed"
	StatusFailed     SearchStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s SearchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next preserves the
// monotonic lifecycle. Terminal states never revert.
func (s SearchStatus) CanTransition(next SearchStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Confidence rates how complete a parsed result is.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Search is one caller-initiated multi-module lookup for a phone or email.
type Search struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	CaseID      string       `json:"case_id"`
	Type        SearchType   `json:"type"`
	Value       string       `json:"value"`
	Modules     []string     `json:"modules"`
	Status      SearchStatus `json:"status"`
	CreditsUsed int64        `json:"credits_used"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Fields holds the structured data a parser extracted from a bot reply.
type Fields map[string]any

// ModuleResult is the outcome of one module within a search. Immutable
// once written; exactly one exists per requested module when the search
// reaches a terminal status.
type ModuleResult struct {
	ID          string     `json:"id"`
	SearchID    string     `json:"search_id"`
	Module      string     `json:"module"`
	Data        Fields     `json:"data"`
	Confidence  Confidence `json:"confidence"`
	Source      string     `json:"source,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetrievedAt time.Time  `json:"retrieved_at"`
}

// Succeeded reports whether the module produced usable data.
func (r ModuleResult) Succeeded() bool {
	return r.Error == ""
}
