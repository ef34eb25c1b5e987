package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/seanankenbruck/viewpoint-search/internal/audit"
	apperrors "github.com/seanankenbruck/viewpoint-search/internal/errors"
)

// AuditRecorder writes audit records to the query_log table.
type AuditRecorder struct {
	db *sql.DB
}

func NewAuditRecorder(db *sql.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// Record inserts one row per request. Intent, attempts and results are
// stored as JSONB.
func (r *AuditRecorder) Record(ctx context.Context, rec audit.Record) error {
	intentJSON, err := json.Marshal(rec.Intent)
	if err != nil {
		return apperrors.NewAuditWriteError(fmt.Errorf("failed to marshal intent: %w", err), rec.RequestID)
	}
	attemptsJSON, err := json.Marshal(rec.Attempts)
	if err != nil {
		return apperrors.NewAuditWriteError(fmt.Errorf("failed to marshal attempts: %w", err), rec.RequestID)
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return apperrors.NewAuditWriteError(fmt.Errorf("failed to marshal results: %w", err), rec.RequestID)
	}

	query := `
		INSERT INTO query_log (
			request_id, intent, attempts, results, path, error,
			vocabulary_version, schema_version, execution_time_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		rec.RequestID,
		intentJSON,
		attemptsJSON,
		resultsJSON,
		string(rec.Path),
		rec.Error,
		rec.VocabularyVersion,
		rec.SchemaVersion,
		rec.Elapsed.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return apperrors.NewAuditWriteError(fmt.Errorf("failed to insert query log: %w", err), rec.RequestID)
	}
	return nil
}
