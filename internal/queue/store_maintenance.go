package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var expectedColumns = []string{
	"id",
	"path",
	"status",
	"attempts",
	"error_message",
	"created_at",
	"updated_at",
}

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM samples GROUP BY status`)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeErr("stats", err)
		}
		stats[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("stats", err)
	}
	return stats, nil
}

// Health aggregates item counts and the most recent update time.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{
		Pending: stats[StatusPending],
		Done:    stats[StatusDone],
		Error:   stats[StatusError],
	}
	for _, count := range stats {
		health.Total += count
	}

	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM samples`).Scan(&last); err != nil {
		return HealthSummary{}, storeErr("health", err)
	}
	if t, err := parseTimeString(last.String); err == nil {
		health.LastUpdated = t
	}
	return health, nil
}

// RetryErrored moves errored items back to pending and resets their attempt
// count. With no paths every errored item is retried.
func (s *Store) RetryErrored(ctx context.Context, paths ...string) (int64, error) {
	query := `UPDATE samples SET status = ?, attempts = 0, error_message = NULL, updated_at = ? WHERE status = ?`
	args := []any{StatusPending, timestamp(), StatusError}
	if len(paths) > 0 {
		query += ` AND path IN (` + makePlaceholders(len(paths)) + `)`
		for _, path := range paths {
			args = append(args, path)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, storeErr("retry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr("retry", err)
	}
	return affected, nil
}

// CheckHealth returns diagnostic information about the progress database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("progress database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat progress database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("progress database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("progress database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping progress database: %w", err)
	}
	health.DatabaseReadable = true

	if version, err := s.SchemaVersion(connCtx); err == nil {
		health.SchemaVersion = version
	}

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'samples'")
	switch err := row.Scan(&tableName); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		health.Error = err.Error()
		return health, fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
	}

	if health.TableExists {
		columns, err := s.tableColumns(connCtx)
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		health.ColumnsPresent = columns
		present := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			present[col] = struct{}{}
		}
		for _, col := range expectedColumns {
			if _, ok := present[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}

		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM samples").Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count samples: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}

func (s *Store) tableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(samples)")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}
