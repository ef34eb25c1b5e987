// Package query validates generated SQL before it can reach the datastore and
// builds deterministic fallback queries that always pass validation.
package query

import "fmt"

// CandidateQuery is a single statement with positional placeholders ($1..$n)
// and the ordered parameters bound to them. Parameters are copied on the way
// in and on the way out so a candidate cannot change after validation.
type CandidateQuery struct {
	text   string
	params []interface{}
}

// NewCandidate builds a CandidateQuery. Supported parameter types are
// string, int64, int, float64, bool and []string.
func NewCandidate(text string, params ...interface{}) CandidateQuery {
	return CandidateQuery{
		text:   text,
		params: copyParams(params),
	}
}

// Text returns the query text.
func (q CandidateQuery) Text() string {
	return q.text
}

// Params returns a copy of the bound parameters.
func (q CandidateQuery) Params() []interface{} {
	return copyParams(q.params)
}

// ParamCount returns the number of bound parameters.
func (q CandidateQuery) ParamCount() int {
	return len(q.params)
}

// ValidatedQuery is a CandidateQuery that passed the Gate. It can only be
// produced by Gate.Validate, which makes it the only thing an executor
// should accept.
type ValidatedQuery struct {
	text   string
	params []interface{}
}

func (v *ValidatedQuery) Text() string {
	return v.text
}

func (v *ValidatedQuery) Params() []interface{} {
	return copyParams(v.params)
}

// RejectReason names the first validation rule a candidate failed.
type RejectReason string

const (
	ReasonMultiStatement   RejectReason = "MULTI_STATEMENT"
	ReasonForbiddenKeyword RejectReason = "FORBIDDEN_KEYWORD"
	ReasonParamMismatch    RejectReason = "PARAM_MISMATCH"
	ReasonUnknownSchemaRef RejectReason = "UNKNOWN_SCHEMA_REF"
)

// ValidationResult is the outcome of Gate.Validate. Reason and Detail are set
// only when Accepted is false.
type ValidationResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

func accepted() ValidationResult {
	return ValidationResult{Accepted: true}
}

func rejected(reason RejectReason, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func copyParams(params []interface{}) []interface{} {
	out := make([]interface{}, len(params))
	for i, p := range params {
		if s, ok := p.([]string); ok {
			p = append([]string(nil), s...)
		}
		out[i] = p
	}
	return out
}
