package record

import (
	"context"
	"time"
)

// MirroredStore pairs the durable store with an in-memory mirror. Reads hit
// the mirror first (the foreground fast path); writes go to both, with the
// durable write being best-effort. When the durable store errors, the
// mirror's answer is used so dedup stays approximately correct and the
// scheduler never crashes on storage failure.
type MirroredStore struct {
	durable Store
	mirror  *MemoryStore
}

// NewMirroredStore wraps the durable store with a fresh in-memory mirror.
func NewMirroredStore(durable Store) *MirroredStore {
	return &MirroredStore{
		durable: durable,
		mirror:  NewMemoryStore(),
	}
}

// RecordFired writes to the mirror first, then best-effort to the durable
// store. The mirror write cannot fail, so even a dead durable store leaves
// the current process protected against duplicates.
func (m *MirroredStore) RecordFired(ctx context.Context, taskID string,
	when time.Time) error {

	_ = m.mirror.RecordFired(ctx, taskID, when)

	if err := m.durable.RecordFired(ctx, taskID, when); err != nil {
		log.WarnS(ctx, "Durable delivery record write failed, "+
			"in-memory mirror only", err, "task_id", taskID)
	}

	return nil
}

// WasFiredRecently consults the mirror first; a hit there is authoritative.
// On a miss it falls through to the durable store, which may have records
// written by the other execution context.
func (m *MirroredStore) WasFiredRecently(ctx context.Context, taskID string,
	now time.Time, window time.Duration) (bool, error) {

	fired, _ := m.mirror.WasFiredRecently(ctx, taskID, now, window)
	if fired {
		return true, nil
	}

	fired, err := m.durable.WasFiredRecently(ctx, taskID, now, window)
	if err != nil {
		log.WarnS(ctx, "Durable delivery record read failed, "+
			"using in-memory mirror", err, "task_id", taskID)

		return false, nil
	}

	return fired, nil
}

// PruneOlderThan prunes both stores. A durable prune failure is logged and
// retried on the next sweep.
func (m *MirroredStore) PruneOlderThan(ctx context.Context,
	retention time.Duration) (int64, error) {

	_, _ = m.mirror.PruneOlderThan(ctx, retention)

	pruned, err := m.durable.PruneOlderThan(ctx, retention)
	if err != nil {
		log.WarnS(ctx, "Durable delivery record prune failed", err)
		return 0, nil
	}

	return pruned, nil
}

var _ Store = (*MirroredStore)(nil)
