// Package audit describes what a search request leaves behind: every query
// attempt with its outcome, and the final ranked output.
package audit

import (
	"context"
	"time"

	"github.com/seanankenbruck/viewpoint-search/internal/intent"
)

// Path names the route a query took.
type Path string

const (
	PathSynthesized Path = "synthesized"
	PathFallback    Path = "fallback"
	PathCache       Path = "cache"
)

// Outcome of a single attempt.
type Outcome string

const (
	OutcomeExecuted    Outcome = "executed"
	OutcomeUnavailable Outcome = "synthesis_unavailable"
	OutcomeRejected    Outcome = "rejected"
	OutcomeFailed      Outcome = "execution_failed"
)

// Attempt records one candidate query and what happened to it.
type Attempt struct {
	Path      Path          `json:"path"`
	Template  string        `json:"template,omitempty"`
	Text      string        `json:"text,omitempty"`
	Params    []interface{} `json:"params,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Reason    string        `json:"reason,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Rows      int           `json:"rows"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// ResultEntry is the audited view of one ranked result.
type ResultEntry struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Composite   float64 `json:"composite_score"`
	Explanation string  `json:"explanation"`
}

// Record is the persisted trail of one request.
type Record struct {
	RequestID         string             `json:"request_id"`
	Intent            intent.QueryIntent `json:"intent"`
	Attempts          []Attempt          `json:"attempts"`
	Results           []ResultEntry      `json:"results"`
	Path              Path               `json:"path"`
	Error             string             `json:"error,omitempty"`
	VocabularyVersion string             `json:"vocabulary_version"`
	SchemaVersion     string             `json:"schema_version"`
	Elapsed           time.Duration      `json:"elapsed_ns"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Recorder persists audit records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) Record(context.Context, Record) error { return nil }
