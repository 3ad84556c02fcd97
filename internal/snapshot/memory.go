package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/inamate/nestbox/internal/typeid"
)

// Memory keeps snapshots in process memory.
type Memory struct {
	mu        sync.RWMutex
	bySession map[string][]Snapshot
}

func NewMemory() *Memory {
	return &Memory{bySession: make(map[string][]Snapshot)}
}

func (m *Memory) Create(ctx context.Context, sessionID string, doc json.RawMessage) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := make(json.RawMessage, len(doc))
	copy(data, doc)

	snap := Snapshot{
		ID:        typeid.NewSnapshotID(),
		SessionID: sessionID,
		Version:   len(m.bySession[sessionID]) + 1,
		Document:  data,
		CreatedAt: time.Now().UTC(),
	}
	m.bySession[sessionID] = append(m.bySession[sessionID], snap)

	out := snap
	return &out, nil
}

func (m *Memory) Latest(ctx context.Context, sessionID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.bySession[sessionID]
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	out := snaps[len(snaps)-1]
	return &out, nil
}

func (m *Memory) Close() error { return nil }
