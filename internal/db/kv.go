package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Durable store namespaces. The names match the layout the settings and
// task snapshots have always been persisted under, so an existing database
// keeps working across upgrades.
const (
	// NSSettings holds the policy snapshot pushed to the background
	// context.
	NSSettings = "fcm-settings"

	// KeySettingsConfig is the single entry in NSSettings.
	KeySettingsConfig = "fcm-config"

	// NSTasks holds the background context's pending-task cache.
	NSTasks = "fcm-tasks"

	// KeyPendingTasks is the single entry in NSTasks.
	KeyPendingTasks = "pending-tasks"

	// NSNotifications holds per-notification diagnostics records, keyed
	// notification-<id>.
	NSNotifications = "notifications"

	// NSConfigNotification holds the user-facing notification settings
	// record.
	NSConfigNotification = "config-notification"

	// NSStrategy holds per-strategy recovery state (subscription handles
	// or flags) so a fresh process start can restore a registration
	// without re-prompting.
	NSStrategy = "strategy-state"

	// NSContextState holds the last persisted ExecutionContextState per
	// context.
	NSContextState = "context-state"
)

// ErrKeyNotFound is returned by Get when no entry exists for the key.
var ErrKeyNotFound = errors.New("kv: key not found")

// KVStore is a namespaced JSON key/value layer over the Store. Values are
// marshalled to JSON on Put and unmarshalled on Get.
type KVStore struct {
	store *Store
}

// NewKVStore creates a KVStore over the given Store.
func NewKVStore(store *Store) *KVStore {
	return &KVStore{store: store}
}

// Put upserts value under (namespace, key).
func (k *KVStore) Put(ctx context.Context, namespace, key string,
	value any) error {

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv marshal %s/%s: %w", namespace, key, err)
	}

	return k.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (namespace, k, value_json, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, k) DO UPDATE SET
				value_json = excluded.value_json,
				updated_at = excluded.updated_at`,
			namespace, key, string(data),
			time.Now().UnixMilli(),
		)
		return err
	})
}

// Get reads the entry under (namespace, key) into out. Returns
// ErrKeyNotFound if no entry exists.
func (k *KVStore) Get(ctx context.Context, namespace, key string,
	out any) error {

	var raw string
	err := k.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT value_json FROM kv_entries
			WHERE namespace = ? AND k = ?`,
			namespace, key,
		)

		if err := row.Scan(&raw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrKeyNotFound
			}
			return err
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("kv unmarshal %s/%s: %w",
			namespace, key, err)
	}

	return nil
}

// Delete removes the entry under (namespace, key). Deleting a missing entry
// is not an error.
func (k *KVStore) Delete(ctx context.Context, namespace, key string) error {
	return k.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM kv_entries
			WHERE namespace = ? AND k = ?`,
			namespace, key,
		)
		return err
	})
}

// Keys lists all keys in a namespace, ordered by key.
func (k *KVStore) Keys(ctx context.Context,
	namespace string) ([]string, error) {

	var keys []string
	err := k.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT k FROM kv_entries
			WHERE namespace = ? ORDER BY k`,
			namespace,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			keys = append(keys, key)
		}

		return rows.Err()
	})

	return keys, err
}

// PruneOlderThan removes entries in namespace last updated before cutoff,
// returning the number of rows removed. Used by the diagnostics retention
// sweep.
func (k *KVStore) PruneOlderThan(ctx context.Context, namespace string,
	cutoff time.Time) (int64, error) {

	var pruned int64
	err := k.store.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM kv_entries
			WHERE namespace = ? AND updated_at < ?`,
			namespace, cutoff.UnixMilli(),
		)
		if err != nil {
			return err
		}

		pruned, err = res.RowsAffected()
		return err
	})

	return pruned, err
}
