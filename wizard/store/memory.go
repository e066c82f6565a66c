// Package store provides DraftStore implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/warp/issuance-engine/wizard"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps encoded snapshots per session key. Snapshots are stored as
// bytes so a restored draft is a true copy, never an alias of live state.
type Memory struct {
	mu        sync.RWMutex
	codec     wizard.DraftCodec
	snapshots map[string]entry
}

type entry struct {
	data    []byte
	savedAt time.Time
}

func NewMemory(codec wizard.DraftCodec) *Memory {
	return &Memory{
		codec:     codec,
		snapshots: make(map[string]entry),
	}
}

// Save overwrites the snapshot for the key. Idempotent.
func (m *Memory) Save(_ context.Context, key string, draft *wizard.PolicyDraft) error {
	data, err := m.codec.Encode(draft)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = entry{data: data, savedAt: time.Now()}
	return nil
}

func (m *Memory) Load(_ context.Context, key string) (*wizard.PolicyDraft, bool, error) {
	m.mu.RLock()
	e, ok := m.snapshots[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	draft, err := m.codec.Decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return draft, true, nil
}

// Clear removes the snapshot. Missing keys are a no-op.
func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, key)
	return nil
}

func (m *Memory) PeekTimestamp(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.snapshots[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return e.savedAt, true, nil
}
