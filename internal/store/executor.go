package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/query"
)

// ResultSet is the capped output of one execution.
type ResultSet struct {
	Candidates []catalog.Candidate
	Truncated  bool
}

// Executor runs validated queries in read-only transactions.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewExecutor(db *sql.DB, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Executor{db: db, timeout: timeout}
}

// Execute runs q returning at most maxRows candidates. Parameters are always
// bound. Connection problems come back as DatastoreUnreachable; anything else
// is returned as is for the caller to classify.
func (e *Executor) Execute(ctx context.Context, q *query.ValidatedQuery, maxRows int) (*ResultSet, error) {
	if maxRows <= 0 {
		maxRows = 1
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.db.BeginTx(execCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer tx.Rollback()

	params := q.Params()
	text := capStatement(q.Text(), len(params))
	args := append(bindArgs(params), maxRows+1)

	rows, err := tx.QueryContext(execCtx, text, args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	result, err := scanCandidates(rows, maxRows)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return result, nil
}

// capStatement wraps text so the server stops after limit+1 rows. The limit
// is bound as the next positional parameter. The newline ends a trailing
// line comment in text before the closing paren.
func capStatement(text string, paramCount int) string {
	return fmt.Sprintf("SELECT * FROM (%s\n) AS capped_result LIMIT $%d", text, paramCount+1)
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if IsUnreachable(err) {
		return apperrors.NewDatastoreUnreachableError(err)
	}
	return err
}

// scanCandidates maps result columns by name. viewpoint_id and name_primary
// are required; other known columns are optional; unknown columns are
// ignored.
func scanCandidates(rows *sql.Rows, maxRows int) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		name := strings.ToLower(c)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, required := range []string{"viewpoint_id", "name_primary"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("result is missing required column %q", required)
		}
	}

	result := &ResultSet{Candidates: []catalog.Candidate{}}
	for rows.Next() {
		if len(result.Candidates) == maxRows {
			result.Truncated = true
			break
		}

		var (
			id         sql.NullInt64
			name       sql.NullString
			variants   pq.StringArray
			category   sql.NullString
			country    sql.NullString
			region     sql.NullString
			popularity sql.NullFloat64
		)
		targets := make([]interface{}, len(columns))
		for i := range targets {
			targets[i] = new(interface{})
		}
		bind := func(column string, target interface{}) {
			if i, ok := index[column]; ok {
				targets[i] = target
			}
		}
		bind("viewpoint_id", &id)
		bind("name_primary", &name)
		bind("name_variants", &variants)
		bind("category_norm", &category)
		bind("country", &country)
		bind("region", &region)
		bind("popularity", &popularity)

		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		if !id.Valid {
			continue
		}

		result.Candidates = append(result.Candidates, catalog.Candidate{
			ID:         id.Int64,
			Name:       name.String,
			Aliases:    []string(variants),
			Category:   category.String,
			Country:    country.String,
			Region:     region.String,
			Popularity: popularity.Float64,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidate rows: %w", err)
	}
	return result, nil
}
