package record

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It backs two roles: the foreground
// context's fast-path mirror, and the degraded fallback when the durable
// store is unavailable.
type MemoryStore struct {
	mu sync.RWMutex

	// fired maps task id to the epoch-ms timestamps of its records.
	fired map[string][]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fired: make(map[string][]int64),
	}
}

// RecordFired appends a delivery record for the task.
func (m *MemoryStore) RecordFired(_ context.Context, taskID string,
	when time.Time) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.fired[taskID] = append(m.fired[taskID], when.UnixMilli())

	return nil
}

// WasFiredRecently reports whether any record for the task exists within the
// window trailing now.
func (m *MemoryStore) WasFiredRecently(_ context.Context, taskID string,
	now time.Time, window time.Duration) (bool, error) {

	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := now.Add(-window).UnixMilli()
	for _, at := range m.fired[taskID] {
		if at > cutoff {
			return true, nil
		}
	}

	return false, nil
}

// PruneOlderThan removes records older than the retention duration.
func (m *MemoryStore) PruneOlderThan(_ context.Context,
	retention time.Duration) (int64, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-retention).UnixMilli()

	var pruned int64
	for taskID, times := range m.fired {
		kept := times[:0]
		for _, at := range times {
			if at >= cutoff {
				kept = append(kept, at)
			} else {
				pruned++
			}
		}

		if len(kept) == 0 {
			delete(m.fired, taskID)
		} else {
			m.fired[taskID] = kept
		}
	}

	return pruned, nil
}

var _ Store = (*MemoryStore)(nil)
