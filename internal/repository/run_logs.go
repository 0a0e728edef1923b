package repository

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

func (s *sqlStore) CreateRunLog(ctx context.Context, r *models.RunLog) error {
	query := `INSERT INTO run_logs (run_id, source_name, status, found, added, updated, errors, error_text, started_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	err := s.db.QueryRowContext(ctx, s.d.rebind(query), r.RunID, r.SourceName, r.Status,
		r.Found, r.Added, r.Updated, r.Errors, r.ErrorText, r.StartedAt, r.DurationSeconds).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to write run log for %s: %w", r.SourceName, err)
	}
	return nil
}

func (s *sqlStore) ListRunLogs(ctx context.Context, limit int) ([]models.RunLog, error) {
	query, args := limitClause(`SELECT id, run_id, source_name, status, found, added, updated, errors,
			error_text, started_at, duration_seconds
		FROM run_logs ORDER BY started_at DESC, id DESC`, nil, limit)

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	logs := []models.RunLog{}
	for rows.Next() {
		var r models.RunLog
		err := rows.Scan(&r.ID, &r.RunID, &r.SourceName, &r.Status, &r.Found, &r.Added,
			&r.Updated, &r.Errors, &r.ErrorText, &r.StartedAt, &r.DurationSeconds)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}
