package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *db.KVStore {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "policy.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return db.NewKVStore(store)
}

// TestLeadTime covers unit conversion and bounds.
func TestLeadTime(t *testing.T) {
	t.Parallel()

	require.Equal(t, 30*time.Minute,
		LeadTime{Value: 30, Unit: UnitMinutes}.Duration())
	require.Equal(t, 2*time.Hour,
		LeadTime{Value: 2, Unit: UnitHours}.Duration())

	require.NoError(t, LeadTime{Value: 1, Unit: UnitMinutes}.Validate())
	require.NoError(t, LeadTime{Value: 24, Unit: UnitHours}.Validate())
	require.Error(t, LeadTime{Value: 0, Unit: UnitMinutes}.Validate())
	require.Error(t, LeadTime{Value: 61, Unit: UnitMinutes}.Validate())
	require.Error(t, LeadTime{Value: 25, Unit: UnitHours}.Validate())
	require.Error(t, LeadTime{Value: 5, Unit: "days"}.Validate())
}

// TestStoreSaveLoad round-trips a policy through the store and checks the
// version counter advances.
func TestStoreSaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(newTestKV(t))

	// A fresh database yields the default policy at version zero.
	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Zero(t, snap.Version)
	require.Equal(t, DefaultPolicy(), snap.Policy)

	p := Policy{
		Enabled:   true,
		WithSound: false,
		Lead:      LeadTime{Value: 2, Unit: UnitHours},
	}
	saved, err := store.Save(ctx, p)
	require.NoError(t, err)
	require.EqualValues(t, 1, saved.Version)

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, p, snap.Policy)
	require.EqualValues(t, 1, snap.Version)

	// Invalid lead times are rejected before touching the store.
	p.Lead.Value = 0
	_, err = store.Save(ctx, p)
	require.Error(t, err)
}

// TestStoreLegacyFallback asserts that a database holding only the old
// settings record still loads.
func TestStoreLegacyFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newTestKV(t)

	legacy := map[string]any{
		"ativadas":             true,
		"comSom":               false,
		"antecedencia_valor":   45,
		"antecedencia_unidade": "minutes",
		"timestamp":            int64(1700000000000),
	}
	require.NoError(t, kv.Put(
		ctx, db.NSConfigNotification, KeyLegacyRecord, legacy,
	))

	snap, err := NewStore(kv).Load(ctx)
	require.NoError(t, err)
	require.True(t, snap.Enabled)
	require.False(t, snap.WithSound)
	require.Equal(t, 45*time.Minute, snap.Lead.Duration())
	require.Zero(t, snap.Version)
}

// TestApplySnapshotOrdering asserts that stale snapshots are dropped and
// newer ones applied, so out-of-order settings messages cannot roll back.
func TestApplySnapshotOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(newTestKV(t))

	var changes []uint64
	store.OnChange(func(s Snapshot) {
		changes = append(changes, s.Version)
	})

	_, err := store.Save(ctx, DefaultPolicy())
	require.NoError(t, err)

	newer := Snapshot{
		Policy:    Policy{Enabled: false, Lead: LeadTime{Value: 1, Unit: UnitHours}},
		Version:   5,
		UpdatedAt: time.Now().UnixMilli(),
	}
	applied, err := store.ApplySnapshot(ctx, newer)
	require.NoError(t, err)
	require.True(t, applied)

	stale := newer
	stale.Version = 3
	stale.Policy.Enabled = true
	applied, err = store.ApplySnapshot(ctx, stale)
	require.NoError(t, err)
	require.False(t, applied)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, snap.Version)
	require.False(t, snap.Enabled)

	require.Equal(t, []uint64{1, 5}, changes)
}
