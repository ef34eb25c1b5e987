package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/seanankenbruck/viewpoint-search/internal/catalog"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
	"github.com/seanankenbruck/viewpoint-search/internal/vocabulary"
)

// Enricher loads seasonal tag records and history text for candidates.
type Enricher struct {
	db *sql.DB
}

func NewEnricher(db *sql.DB) *Enricher {
	return &Enricher{db: db}
}

// Enrich returns enrichment keyed by viewpoint id. When season is known only
// records for that season and records with an unknown season are loaded.
func (e *Enricher) Enrich(ctx context.Context, ids []int64, season vocabulary.Season) (map[int64]catalog.Enrichment, error) {
	out := make(map[int64]catalog.Enrichment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if err := e.loadTags(ctx, ids, season, out); err != nil {
		return nil, apperrors.NewEnrichmentError(err)
	}
	if err := e.loadHistory(ctx, ids, out); err != nil {
		return nil, apperrors.NewEnrichmentError(err)
	}
	return out, nil
}

func (e *Enricher) loadTags(ctx context.Context, ids []int64, season vocabulary.Season, out map[int64]catalog.Enrichment) error {
	query := `
		SELECT viewpoint_id, tags, season, confidence
		FROM viewpoint_visual_tags
		WHERE viewpoint_id = ANY($1)
		ORDER BY viewpoint_id, confidence DESC NULLS LAST
	`
	args := []interface{}{pq.Array(ids)}
	if season.Known() {
		query = `
		SELECT viewpoint_id, tags, season, confidence
		FROM viewpoint_visual_tags
		WHERE viewpoint_id = ANY($1) AND season IN ($2, 'unknown')
		ORDER BY viewpoint_id, confidence DESC NULLS LAST
	`
		args = append(args, string(season))
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query visual tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         int64
			tags       pq.StringArray
			seasonText sql.NullString
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&id, &tags, &seasonText, &confidence); err != nil {
			return fmt.Errorf("failed to scan visual tag row: %w", err)
		}

		recordSeason, _ := vocabulary.ParseSeason(seasonText.String)
		enrichment := out[id]
		enrichment.Tags = append(enrichment.Tags, catalog.TagRecord{
			Tags:       []string(tags),
			Season:     recordSeason,
			Confidence: confidence.Float64,
		})
		out[id] = enrichment
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating visual tag rows: %w", err)
	}
	return nil
}

func (e *Enricher) loadHistory(ctx context.Context, ids []int64, out map[int64]catalog.Enrichment) error {
	query := `
		SELECT viewpoint_id, COALESCE(NULLIF(history_summary, ''), extract_text, '')
		FROM viewpoint_wiki
		WHERE viewpoint_id = ANY($1)
	`

	rows, err := e.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var history string
		if err := rows.Scan(&id, &history); err != nil {
			return fmt.Errorf("failed to scan history row: %w", err)
		}
		enrichment := out[id]
		enrichment.History = history
		out[id] = enrichment
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating history rows: %w", err)
	}
	return nil
}
