package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/integration"
)

// MemoryArchive keeps payloads in process. Used when no bucket is configured
// and in tests.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
	prefix  string
	now     func() time.Time
}

// NewMemoryArchive creates an empty archive
func NewMemoryArchive(prefix string) *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte), prefix: prefix, now: time.Now}
}

// ArchiveWebhook stores a verified delivery body and returns its key
func (m *MemoryArchive) ArchiveWebhook(ctx context.Context, reg *integration.WebhookRegistration, deliveryID string, body []byte) (string, error) {
	return archiveWebhook(ctx, m, m.prefix, m.now(), reg, deliveryID, body)
}

// Put stores a copy of data under key
func (m *MemoryArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// Get returns the object stored under key
func (m *MemoryArchive) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored objects
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
