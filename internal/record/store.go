// Package record implements the delivery-record store that protects the
// at-most-once notification invariant. Records are append-only: the dedup
// check asks "did any record land within the window", so concurrent writes
// from the two execution contexts for the same task are harmless duplicates
// rather than a lost-update race.
package record

import (
	"context"
	"database/sql"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
)

const (
	// DefaultDedupWindow is the minimum spacing enforced between two
	// notifications for the same task.
	DefaultDedupWindow = 5 * time.Minute

	// DefaultRetention is how long fired records are kept for
	// diagnostics before the prune sweep removes them.
	DefaultRetention = 24 * time.Hour
)

// Store tracks when a reminder last fired per task. Implementations must be
// safe for concurrent use from both execution contexts.
type Store interface {
	// RecordFired appends a delivery record for the task.
	RecordFired(ctx context.Context, taskID string, when time.Time) error

	// WasFiredRecently reports whether any record for the task exists
	// within the window trailing now. The caller supplies now so the
	// dedup check and the eligibility check share one clock.
	WasFiredRecently(ctx context.Context, taskID string, now time.Time,
		window time.Duration) (bool, error)

	// PruneOlderThan removes records older than the retention duration,
	// returning how many were removed. The most recent record per task
	// is all correctness needs; older ones are diagnostics only.
	PruneOlderThan(ctx context.Context,
		retention time.Duration) (int64, error)
}

// SQLStore is the durable Store implementation over the shared SQLite
// database.
type SQLStore struct {
	store *db.Store
}

// NewSQLStore creates a SQLStore over the given database store.
func NewSQLStore(store *db.Store) *SQLStore {
	return &SQLStore{store: store}
}

// RecordFired appends a delivery record for the task.
func (s *SQLStore) RecordFired(ctx context.Context, taskID string,
	when time.Time) error {

	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO delivery_records (task_id, notified_at)
			VALUES (?, ?)`,
			taskID, when.UnixMilli(),
		)
		return err
	})
}

// WasFiredRecently reports whether any record for the task exists within the
// window trailing now.
func (s *SQLStore) WasFiredRecently(ctx context.Context, taskID string,
	now time.Time, window time.Duration) (bool, error) {

	var fired bool
	err := s.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM delivery_records
				WHERE task_id = ? AND notified_at > ?
			)`,
			taskID, now.Add(-window).UnixMilli(),
		)
		return row.Scan(&fired)
	})

	return fired, err
}

// PruneOlderThan removes records older than the retention duration.
func (s *SQLStore) PruneOlderThan(ctx context.Context,
	retention time.Duration) (int64, error) {

	var pruned int64
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM delivery_records
			WHERE notified_at < ?`,
			time.Now().Add(-retention).UnixMilli(),
		)
		if err != nil {
			return err
		}

		pruned, err = res.RowsAffected()
		return err
	})

	return pruned, err
}

var _ Store = (*SQLStore)(nil)
