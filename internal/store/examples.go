package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/seanankenbruck/viewpoint-search/internal/intent"
	"github.com/seanankenbruck/viewpoint-search/internal/llm"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
	"github.com/seanankenbruck/viewpoint-search/internal/synth"
)

// minExampleSimilarity is the cosine similarity an example must exceed to
// be offered to the synthesizer.
const minExampleSimilarity = 0.8

// ExampleStore keeps synthesized queries that passed the gate and executed,
// indexed by an embedding of the intent that produced them.
type ExampleStore struct {
	db       *sql.DB
	embedder llm.Embedder
}

func NewExampleStore(db *sql.DB, embedder llm.Embedder) *ExampleStore {
	return &ExampleStore{db: db, embedder: embedder}
}

// Similar returns up to limit stored examples nearest to in.
func (s *ExampleStore) Similar(ctx context.Context, in intent.QueryIntent, limit int) ([]synth.Example, error) {
	embedding, err := s.embedder.Embed(ctx, IntentText(in))
	if err != nil {
		return nil, fmt.Errorf("failed to embed intent: %w", err)
	}

	query := `
		SELECT intent_text, sql_text, params
		FROM query_examples
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(embedding), minExampleSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar examples: %w", err)
	}
	defer rows.Close()

	var examples []synth.Example
	for rows.Next() {
		var ex synth.Example
		var paramsJSON []byte
		if err := rows.Scan(&ex.Intent, &ex.SQL, &paramsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan example row: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &ex.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal example params: %w", err)
		}
		examples = append(examples, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating example rows: %w", err)
	}
	return examples, nil
}

// Remember stores q as the example for in, replacing any earlier example
// for the same intent.
func (s *ExampleStore) Remember(ctx context.Context, in intent.QueryIntent, q *query.ValidatedQuery) error {
	text := IntentText(in)
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed intent: %w", err)
	}
	paramsJSON, err := json.Marshal(q.Params())
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	insertQuery := `
		INSERT INTO query_examples (id, intent_fingerprint, intent_text, sql_text, params, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (intent_fingerprint) DO UPDATE SET
			sql_text = EXCLUDED.sql_text,
			params = EXCLUDED.params,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.created_at
	`

	_, err = s.db.ExecContext(ctx, insertQuery,
		uuid.New().String(),
		in.Fingerprint(),
		text,
		q.Text(),
		paramsJSON,
		pgvector.NewVector(embedding),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store query example: %w", err)
	}
	return nil
}

// IntentText is the compact description of an intent used for embeddings
// and as the example label in prompts.
func IntentText(in intent.QueryIntent) string {
	var parts []string
	if len(in.NameCandidates) > 0 {
		parts = append(parts, "names: "+strings.Join(in.NameCandidates, ", "))
	}
	if len(in.QueryTags) > 0 {
		parts = append(parts, "tags: "+strings.Join(in.QueryTags, ", "))
	}
	if in.SeasonHint.Known() {
		parts = append(parts, "season: "+string(in.SeasonHint))
	}
	if len(in.SceneHints) > 0 {
		parts = append(parts, "scenes: "+strings.Join(in.SceneHints, ", "))
	}
	if in.GeoHints.PlaceName != nil {
		parts = append(parts, "place: "+*in.GeoHints.PlaceName)
	}
	if in.GeoHints.Country != nil {
		parts = append(parts, "country: "+*in.GeoHints.Country)
	}
	if len(parts) == 0 {
		return "any viewpoint"
	}
	return strings.Join(parts, "; ")
}
