// Package search runs one viewpoint search end to end: normalize the intent,
// obtain a validated query (synthesized or fallback), execute it, enrich and
// rank the candidates, and leave an audit record behind.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seanankenbruck/viewpoint-search/internal/audit"
	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/observability"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/ranking"
	"github.com/seanankenbruck/viewpoint-search/internal/schema"
	"github.com/seanankenbruck/viewpoint-search/internal/store"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// Mode selects how the retrieval query is obtained.
type Mode string

const (
	// ModeSynthesize asks the generative service first and falls back on
	// any failure.
	ModeSynthesize Mode = "synthesize"
	// ModeFallbackOnly always uses the deterministic builder.
	ModeFallbackOnly Mode = "fallback_only"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSynthesize, ModeFallbackOnly:
		return Mode(s), nil
	case "":
		return ModeSynthesize, nil
	default:
		return "", fmt.Errorf("unknown synthesis mode %q (expected %s or %s)", s, ModeSynthesize, ModeFallbackOnly)
	}
}

// Synthesizer produces a candidate query. Every error it returns other than
// a context error is treated as SynthesisUnavailable.
type Synthesizer interface {
	Synthesize(ctx context.Context, in intent.QueryIntent, desc *schema.Descriptor, maxRows int) (query.CandidateQuery, error)
}

// Executor runs a validated query with a row cap.
type Executor interface {
	Execute(ctx context.Context, q *query.ValidatedQuery, maxRows int) (*store.ResultSet, error)
}

// Enricher loads tag records and history for candidate ids.
type Enricher interface {
	Enrich(ctx context.Context, ids []int64, season vocabulary.Season) (map[int64]catalog.Enrichment, error)
}

// ExampleRecorder keeps synthesized queries that executed successfully.
type ExampleRecorder interface {
	Remember(ctx context.Context, in intent.QueryIntent, q *query.ValidatedQuery) error
}

// Config holds the tunables of the pipeline.
type Config struct {
	Mode              Mode
	MaxRows           int
	TopK              int
	EnrichmentTimeout time.Duration
	AuditTimeout      time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeSynthesize
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 200
	}
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.EnrichmentTimeout <= 0 {
		c.EnrichmentTimeout = 2 * time.Second
	}
	if c.AuditTimeout <= 0 {
		c.AuditTimeout = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 200 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 2 * time.Second
	}
}

// Dependencies are the collaborators of a Service. Synthesizer may be nil
// in fallback_only mode; Enricher, Audit, Examples and Cache are optional.
type Dependencies struct {
	Vocabulary  *vocabulary.Registry
	Schema      *schema.Descriptor
	Gate        *query.Gate
	Fallback    *query.FallbackBuilder
	Synthesizer Synthesizer
	Executor    Executor
	Enricher    Enricher
	Audit       audit.Recorder
	Examples    ExampleRecorder
	Cache       *Cache
	Logger      *observability.Logger
}

// Request is one search.
type Request struct {
	Intent intent.RawIntent `json:"intent"`
	TopK   int              `json:"top_k,omitempty"`
}

// Response is the ranked output of a search together with how it was
// obtained.
type Response struct {
	RequestID         string             `json:"request_id"`
	Intent            intent.QueryIntent `json:"intent"`
	Results           []ranking.Ranked   `json:"results"`
	Attempts          []audit.Attempt    `json:"-"` // kept out of responses; recorded in the audit log
	Path              audit.Path         `json:"path"`
	Truncated         bool               `json:"truncated,omitempty"`
	Degraded          []string           `json:"degraded,omitempty"`
	ElapsedMS         int64              `json:"elapsed_ms"`
	VocabularyVersion string             `json:"vocabulary_version"`
	SchemaVersion     string             `json:"schema_version"`
	CacheHit          bool               `json:"cache_hit"`
}

// Service is safe for concurrent use. Each call captures the vocabulary
// snapshot once, so a reload never changes a request in flight.
type Service struct {
	vocab      *vocabulary.Registry
	schema     *schema.Descriptor
	gate       *query.Gate
	fallback   *query.FallbackBuilder
	synth      Synthesizer
	executor   Executor
	enricher   Enricher
	audit      audit.Recorder
	examples   ExampleRecorder
	cache      *Cache
	normalizer *intent.Normalizer
	logger     *observability.Logger
	config     Config
}

// NewService wires a Service and rejects incomplete dependencies.
func NewService(deps Dependencies, config Config) (*Service, error) {
	config.applyDefaults()

	switch {
	case deps.Vocabulary == nil:
		return nil, errors.New("search: vocabulary registry is required")
	case deps.Schema == nil:
		return nil, errors.New("search: schema descriptor is required")
	case deps.Gate == nil:
		return nil, errors.New("search: safety gate is required")
	case deps.Fallback == nil:
		return nil, errors.New("search: fallback builder is required")
	case deps.Executor == nil:
		return nil, errors.New("search: executor is required")
	case config.Mode == ModeSynthesize && deps.Synthesizer == nil:
		return nil, errors.New("search: synthesize mode needs a synthesizer")
	}
	if _, err := ParseMode(string(config.Mode)); err != nil {
		return nil, err
	}

	if deps.Audit == nil {
		deps.Audit = audit.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger("search")
	}

	return &Service{
		vocab:      deps.Vocabulary,
		schema:     deps.Schema,
		gate:       deps.Gate,
		fallback:   deps.Fallback,
		synth:      deps.Synthesizer,
		executor:   deps.Executor,
		enricher:   deps.Enricher,
		audit:      deps.Audit,
		examples:   deps.Examples,
		cache:      deps.Cache,
		normalizer: intent.NewNormalizer(),
		logger:     deps.Logger,
		config:     config,
	}, nil
}

// Mode returns the configured synthesis mode.
func (s *Service) Mode() Mode {
	return s.config.Mode
}

// Vocabulary returns the active vocabulary snapshot.
func (s *Service) Vocabulary() *vocabulary.Snapshot {
	return s.vocab.Current()
}

// SchemaVersion returns the version of the schema descriptor in use.
func (s *Service) SchemaVersion() string {
	return s.schema.Version()
}

// Validate runs the safety gate alone on text and params.
func (s *Service) Validate(text string, params []interface{}) query.ValidationResult {
	return s.gate.Check(query.NewCandidate(text, params...))
}

// retrieval is the outcome of obtaining and executing a query.
type retrieval struct {
	result      *store.ResultSet
	attempts    []audit.Attempt
	path        audit.Path
	synthesized *query.ValidatedQuery
}

// Search runs one request. The only errors returned are context errors,
// FallbackExhausted and DatastoreUnreachable; everything the fallback path
// recovers from shows up in Response.Attempts.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	requestID := observability.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
		ctx = observability.WithRequestID(ctx, requestID)
	}

	vocab := s.vocab.Current()
	in := s.normalizer.Normalize(req.Intent, vocab)

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.TopK
	}
	if topK > s.config.MaxRows {
		topK = s.config.MaxRows
	}

	rec := audit.Record{
		RequestID:         requestID,
		Intent:            in,
		VocabularyVersion: vocab.Version(),
		SchemaVersion:     s.schema.Version(),
		CreatedAt:         start.UTC(),
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.Key(in, s.schema.Version(), s.config.Mode, topK)
		if cached := s.lookupCache(ctx, cacheKey); cached != nil {
			cached.RequestID = requestID
			cached.CacheHit = true
			cached.Attempts = nil
			cached.ElapsedMS = time.Since(start).Milliseconds()

			rec.Path = audit.PathCache
			rec.Results = resultEntries(cached.Results)
			s.finish(ctx, rec, start, nil)
			return cached, nil
		}
	}

	r, err := s.retrieve(ctx, in, vocab)
	if err != nil {
		if r != nil {
			rec.Attempts = r.attempts
			rec.Path = r.path
		}
		rec.Error = err.Error()
		s.finish(ctx, rec, start, err)
		return nil, err
	}

	response := &Response{
		RequestID:         requestID,
		Intent:            in,
		Attempts:          r.attempts,
		Path:              r.path,
		Truncated:         r.result.Truncated,
		VocabularyVersion: vocab.Version(),
		SchemaVersion:     s.schema.Version(),
	}

	enrichment, err := s.enrich(ctx, r.result.Candidates, in.SeasonHint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			rec.Attempts, rec.Path, rec.Error = r.attempts, r.path, ctxErr.Error()
			s.finish(ctx, rec, start, ctxErr)
			return nil, ctxErr
		}
		s.logger.Warn(ctx, "Enrichment failed, ranking without it", map[string]interface{}{
			"error":      err.Error(),
			"candidates": len(r.result.Candidates),
		})
		observability.RecordDegradedStage("enrichment")
		response.Degraded = append(response.Degraded, "enrichment")
		enrichment = nil
	}

	response.Results = ranking.Rank(ranking.Input{
		Candidates: r.result.Candidates,
		Enrichment: enrichment,
		Intent:     in,
		Vocabulary: vocab,
		TopK:       topK,
	})
	response.ElapsedMS = time.Since(start).Milliseconds()

	rec.Attempts = r.attempts
	rec.Path = r.path
	rec.Results = resultEntries(response.Results)
	s.finish(ctx, rec, start, nil)

	if r.synthesized != nil {
		s.rememberExample(ctx, in, r.synthesized)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, response); err != nil {
			s.logger.Warn(ctx, "Failed to cache search response", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return response, nil
}

// retrieve obtains a validated query and executes it. The returned
// retrieval carries the attempts made so far even when err is non-nil.
func (s *Service) retrieve(ctx context.Context, in intent.QueryIntent, vocab *vocabulary.Snapshot) (*retrieval, error) {
	r := &retrieval{}
	trigger := string(ModeFallbackOnly)

	if s.config.Mode == ModeSynthesize {
		attempt, validated, result, err := s.trySynthesized(ctx, in)
		r.attempts = append(r.attempts, attempt)
		r.path = audit.PathSynthesized
		if err == nil {
			r.result = result
			r.synthesized = validated
			return r, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r, ctxErr
		}
		if apperrors.HasCode(err, apperrors.ErrCodeDatastoreUnreachable) {
			return r, err
		}

		s.logger.Info(ctx, "Synthesized query not usable, falling back", map[string]interface{}{
			"outcome": string(attempt.Outcome),
			"reason":  attempt.Reason,
			"detail":  attempt.Detail,
		})
		trigger = string(attempt.Outcome)
	}

	attempt, result, err := s.tryFallback(ctx, in, vocab, trigger)
	r.attempts = append(r.attempts, attempt)
	r.path = audit.PathFallback
	if err != nil {
		return r, err
	}
	r.result = result
	return r, nil
}

func (s *Service) trySynthesized(ctx context.Context, in intent.QueryIntent) (audit.Attempt, *query.ValidatedQuery, *store.ResultSet, error) {
	start := time.Now()
	attempt := audit.Attempt{Path: audit.PathSynthesized}

	candidate, err := s.synth.Synthesize(ctx, in, s.schema, s.config.MaxRows)
	observability.RecordSynthesis(time.Since(start), err)
	if err != nil {
		attempt.Outcome = audit.OutcomeUnavailable
		attempt.Detail = err.Error()
		attempt.Duration = time.Since(start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, nil, nil, ctxErr
		}
		if !apperrors.HasCode(err, apperrors.ErrCodeSynthesisUnavailable) {
			err = apperrors.NewSynthesisUnavailableError(err, "synthesizer failed")
		}
		return attempt, nil, nil, err
	}

	attempt.Text = candidate.Text()
	attempt.Params = candidate.Params()

	validated, res := s.gate.Validate(candidate)
	if !res.Accepted {
		observability.RecordGateRejection(string(res.Reason))
		attempt.Outcome = audit.OutcomeRejected
		attempt.Reason = string(res.Reason)
		attempt.Detail = res.Detail
		attempt.Duration = time.Since(start)
		return attempt, nil, nil, apperrors.NewSynthesisRejectedError(string(res.Reason), res.Detail)
	}

	result, err := s.execute(ctx, audit.PathSynthesized, validated)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Outcome = audit.OutcomeFailed
		attempt.Detail = err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, nil, nil, ctxErr
		}
		if apperrors.HasCode(err, apperrors.ErrCodeDatastoreUnreachable) {
			return attempt, nil, nil, err
		}
		return attempt, nil, nil, apperrors.NewExecutionFailedError(err, string(audit.PathSynthesized))
	}

	attempt.Outcome = audit.OutcomeExecuted
	attempt.Rows = len(result.Candidates)
	attempt.Truncated = result.Truncated
	return attempt, validated, result, nil
}

func (s *Service) tryFallback(ctx context.Context, in intent.QueryIntent, vocab *vocabulary.Snapshot, trigger string) (audit.Attempt, *store.ResultSet, error) {
	start := time.Now()
	attempt := audit.Attempt{Path: audit.PathFallback}

	validated, tmpl, err := s.fallback.Build(in, vocab)
	attempt.Template = string(tmpl)
	if err != nil {
		attempt.Outcome = audit.OutcomeRejected
		attempt.Detail = err.Error()
		attempt.Duration = time.Since(start)
		return attempt, nil, err
	}
	attempt.Text = validated.Text()
	attempt.Params = validated.Params()
	observability.RecordFallback(string(tmpl), trigger)

	result, err := s.execute(ctx, audit.PathFallback, validated)
	attempt.Duration = time.Since(start)
	if err != nil {
		attempt.Outcome = audit.OutcomeFailed
		attempt.Detail = err.Error()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, nil, ctxErr
		}
		if apperrors.HasCode(err, apperrors.ErrCodeDatastoreUnreachable) {
			return attempt, nil, err
		}
		return attempt, nil, apperrors.NewFallbackExhaustedError(
			apperrors.NewExecutionFailedError(err, string(audit.PathFallback)))
	}

	attempt.Outcome = audit.OutcomeExecuted
	attempt.Rows = len(result.Candidates)
	attempt.Truncated = result.Truncated
	return attempt, result, nil
}

func (s *Service) execute(ctx context.Context, path audit.Path, q *query.ValidatedQuery) (*store.ResultSet, error) {
	start := time.Now()
	result, err := s.executor.Execute(ctx, q, s.config.MaxRows)
	observability.RecordExecution(string(path), time.Since(start), err)
	if err == nil && result == nil {
		result = &store.ResultSet{}
	}
	return result, err
}

func (s *Service) enrich(ctx context.Context, candidates []catalog.Candidate, season vocabulary.Season) (map[int64]catalog.Enrichment, error) {
	if s.enricher == nil || len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	enrichCtx, cancel := context.WithTimeout(ctx, s.config.EnrichmentTimeout)
	defer cancel()
	return s.enricher.Enrich(enrichCtx, ids, season)
}

// finish writes the audit record and records request metrics. The audit
// write outlives a cancelled request so that aborted searches are recorded
// too.
func (s *Service) finish(ctx context.Context, rec audit.Record, start time.Time, searchErr error) {
	rec.Elapsed = time.Since(start)

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.AuditTimeout)
	defer cancel()
	if err := s.audit.Record(auditCtx, rec); err != nil {
		observability.RecordDegradedStage("audit")
		s.logger.Warn(ctx, "Failed to write audit record", map[string]interface{}{
			"error":      err.Error(),
			"request_id": rec.RequestID,
		})
	}

	path := string(rec.Path)
	if path == "" {
		path = "none"
	}
	observability.RecordSearch(path, rec.Elapsed, searchErr)

	fields := map[string]interface{}{
		"path":        path,
		"attempts":    len(rec.Attempts),
		"results":     len(rec.Results),
		"duration_ms": rec.Elapsed.Milliseconds(),
	}
	if searchErr != nil {
		s.logger.Error(ctx, "Search failed", searchErr, fields)
		return
	}
	s.logger.Info(ctx, "Search completed", fields)
}

func (s *Service) lookupCache(ctx context.Context, key string) *Response {
	cached, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.RecordCacheLookup("error")
		s.logger.Warn(ctx, "Result cache lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	case cached == nil:
		observability.RecordCacheLookup("miss")
		return nil
	default:
		observability.RecordCacheLookup("hit")
		return cached
	}
}

func (s *Service) rememberExample(ctx context.Context, in intent.QueryIntent, q *query.ValidatedQuery) {
	if s.examples == nil {
		return
	}
	exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.AuditTimeout)
	defer cancel()
	if err := s.examples.Remember(exCtx, in, q); err != nil {
		observability.RecordDegradedStage("example_store")
		s.logger.Warn(ctx, "Failed to store query example", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func resultEntries(results []ranking.Ranked) []audit.ResultEntry {
	entries := make([]audit.ResultEntry, len(results))
	for i, r := range results {
		entries[i] = audit.ResultEntry{
			ID:          r.ID,
			Name:        r.Name,
			Composite:   r.Composite,
			Explanation: r.Explanation,
		}
	}
	return entries
}
