package publication

import (
	"context"
	"sync"
	"time"

	"certverify-backend/internal/domain"

	"github.com/google/uuid"
)

type memoryEntry struct {
	batch     Batch
	expiresAt time.Time
}

// MemoryBatchStore keeps batches in process. Expired entries are dropped on access.
type MemoryBatchStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]memoryEntry
	now     func() time.Time
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{entries: make(map[uuid.UUID]memoryEntry), now: time.Now}
}

func (m *MemoryBatchStore) Save(_ context.Context, b *Batch, ttl time.Duration) error {
	cp := *b
	cp.Items = append([]Item(nil), b.Items...)
	m.mu.Lock()
	m.entries[b.ID] = memoryEntry{batch: cp, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryBatchStore) Load(_ context.Context, id uuid.UUID) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, domain.ErrNotFound
	}
	b := e.batch
	b.Items = append([]Item(nil), e.batch.Items...)
	return &b, nil
}

func (m *MemoryBatchStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}
