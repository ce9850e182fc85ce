package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
)

// KeyLegacyRecord is the fixed key of the user-facing settings record in the
// config-notification namespace.
const KeyLegacyRecord = "settings"

// Snapshot is the versioned policy record exchanged between contexts. The
// version counter lets a receiver drop snapshots that arrive out of order.
type Snapshot struct {
	Policy

	// Version increases by one on every save.
	Version uint64 `json:"version"`

	// UpdatedAt is the save time in epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt"`
}

// legacyRecord is the settings layout the original storage used. It is kept
// in sync with every save so a database written by an older build, or read
// by one, stays coherent.
type legacyRecord struct {
	Enabled   bool   `json:"ativadas"`
	WithSound bool   `json:"comSom"`
	LeadValue int    `json:"antecedencia_valor"`
	LeadUnit  string `json:"antecedencia_unidade"`
	Timestamp int64  `json:"timestamp"`
}

// Store persists the policy and notifies listeners of changes. It implements
// Provider.
type Store struct {
	kv *db.KVStore

	mu       sync.Mutex
	onChange []func(Snapshot)
}

// NewStore creates a policy Store over the shared kv layer.
func NewStore(kv *db.KVStore) *Store {
	return &Store{kv: kv}
}

// OnChange registers a callback invoked after every successful save or
// applied snapshot. Callbacks run on the saver's goroutine.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = append(s.onChange, fn)
}

// Load returns the persisted snapshot. When no snapshot exists yet it falls
// back to the legacy record, and failing that to the default policy at
// version zero.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.kv.Get(ctx, db.NSSettings, db.KeySettingsConfig, &snap)
	switch {
	case err == nil:
		return snap, nil

	case !errors.Is(err, db.ErrKeyNotFound):
		return Snapshot{}, fmt.Errorf("load policy: %w", err)
	}

	var legacy legacyRecord
	err = s.kv.Get(ctx, db.NSConfigNotification, KeyLegacyRecord, &legacy)
	switch {
	case err == nil:
		return Snapshot{
			Policy: Policy{
				Enabled:   legacy.Enabled,
				WithSound: legacy.WithSound,
				Lead: LeadTime{
					Value: legacy.LeadValue,
					Unit:  Unit(legacy.LeadUnit),
				},
			},
			UpdatedAt: legacy.Timestamp,
		}, nil

	case !errors.Is(err, db.ErrKeyNotFound):
		return Snapshot{}, fmt.Errorf("load legacy policy: %w", err)
	}

	return Snapshot{Policy: DefaultPolicy()}, nil
}

// Current implements Provider by loading the latest snapshot.
func (s *Store) Current(ctx context.Context) (Policy, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return Policy{}, err
	}

	return snap.Policy, nil
}

// Save validates and persists a new policy, bumping the version counter and
// rewriting the legacy record alongside the snapshot.
func (s *Store) Save(ctx context.Context, p Policy) (Snapshot, error) {
	if err := p.Lead.Validate(); err != nil {
		return Snapshot{}, err
	}

	prev, err := s.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Policy:    p,
		Version:   prev.Version + 1,
		UpdatedAt: time.Now().UnixMilli(),
	}

	if err := s.persist(ctx, snap); err != nil {
		return Snapshot{}, err
	}

	log.DebugS(ctx, "Policy saved",
		"version", snap.Version,
		"enabled", p.Enabled,
		"lead", p.Lead.Duration())

	s.notify(snap)

	return snap, nil
}

// ApplySnapshot persists a snapshot received from the other context. Stale
// snapshots, those with a version at or below the stored one, are ignored so
// out-of-order delivery cannot roll settings back. It reports whether the
// snapshot was applied.
func (s *Store) ApplySnapshot(ctx context.Context,
	snap Snapshot) (bool, error) {

	prev, err := s.Load(ctx)
	if err != nil {
		return false, err
	}

	if snap.Version <= prev.Version {
		log.DebugS(ctx, "Ignoring stale policy snapshot",
			"got", snap.Version, "have", prev.Version)

		return false, nil
	}

	if err := s.persist(ctx, snap); err != nil {
		return false, err
	}

	s.notify(snap)

	return true, nil
}

func (s *Store) persist(ctx context.Context, snap Snapshot) error {
	err := s.kv.Put(ctx, db.NSSettings, db.KeySettingsConfig, snap)
	if err != nil {
		return fmt.Errorf("persist policy snapshot: %w", err)
	}

	legacy := legacyRecord{
		Enabled:   snap.Enabled,
		WithSound: snap.WithSound,
		LeadValue: snap.Lead.Value,
		LeadUnit:  string(snap.Lead.Unit),
		Timestamp: snap.UpdatedAt,
	}
	err = s.kv.Put(ctx, db.NSConfigNotification, KeyLegacyRecord, legacy)
	if err != nil {
		return fmt.Errorf("persist legacy policy record: %w", err)
	}

	return nil
}

func (s *Store) notify(snap Snapshot) {
	s.mu.Lock()
	cbs := make([]func(Snapshot), len(s.onChange))
	copy(cbs, s.onChange)
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(snap)
	}
}

var _ Provider = (*Store)(nil)
