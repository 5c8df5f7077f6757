package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RegisterBatch records every path as pending unless it is already tracked.
// Existing rows keep their status. It returns how many rows were inserted.
func (s *Store) RegisterBatch(ctx context.Context, paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	var inserted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inserted = 0
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR IGNORE INTO samples (path, status, attempts, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := timestamp()
		for _, path := range paths {
			res, err := stmt.ExecContext(ctx, path, StatusPending, now, now)
			if err != nil {
				return fmt.Errorf("insert %s: %w", path, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, storeErr("register", err)
	}
	return inserted, nil
}

// FetchPending returns up to limit pending paths in insertion order. Rows are
// not marked in flight.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path FROM samples WHERE status = ? ORDER BY id LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, storeErr("fetch pending", err)
	}
	defer rows.Close()

	paths := make([]string, 0, limit)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, storeErr("fetch pending", err)
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("fetch pending", err)
	}
	return paths, nil
}

// MarkDone moves a pending item to done.
func (s *Store) MarkDone(ctx context.Context, path string) error {
	return s.settle(ctx, "mark done", path, StatusDone, "")
}

// MarkError moves a pending item to error and keeps reason.
func (s *Store) MarkError(ctx context.Context, path, reason string) error {
	return s.settle(ctx, "mark error", path, StatusError, reason)
}

func (s *Store) settle(ctx context.Context, op, path string, status Status, reason string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE samples SET status = ?, error_message = ?, updated_at = ? WHERE path = ? AND status = ?`,
		status, nullableString(reason), timestamp(), path, StatusPending)
	if err != nil {
		return storeErr(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if affected == 0 {
		return notPending(path)
	}
	return nil
}

// RecordFailure counts a failed attempt for a pending item. Once attempts
// reach maxAttempts the item settles to error; before that it stays pending and
// is offered again in a later batch. It returns the resulting status.
func (s *Store) RecordFailure(ctx context.Context, path, reason string, maxAttempts int) (Status, error) {
	maxAttempts = max(maxAttempts, 1)
	var result Status
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var attempts int
		row := tx.QueryRowContext(ctx,
			`SELECT attempts FROM samples WHERE path = ? AND status = ?`, path, StatusPending)
		if err := row.Scan(&attempts); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notPending(path)
			}
			return err
		}
		attempts++
		result = StatusPending
		if attempts >= maxAttempts {
			result = StatusError
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE samples SET status = ?, attempts = ?, error_message = ?, updated_at = ? WHERE path = ?`,
			result, attempts, nullableString(reason), timestamp(), path)
		return err
	})
	if errors.Is(err, ErrNotPending) {
		return "", err
	}
	if err != nil {
		return "", storeErr("record failure", err)
	}
	return result, nil
}

// CountPending returns the number of pending items.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM samples WHERE status = ?`, StatusPending)
	if err := row.Scan(&count); err != nil {
		return 0, storeErr("count pending", err)
	}
	return count, nil
}

// Get returns the item tracked for path, or nil when it is unknown.
func (s *Store) Get(ctx context.Context, path string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM samples WHERE path = ?`, path)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return item, nil
}

// List returns items in insertion order, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM samples`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, storeErr("list", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return items, nil
}
