package cache

import (
	"sync"
	"time"
)

// ttlEntry is a stored value with expiration
type ttlEntry struct {
	value     any
	expiresAt time.Time
}

// ttlMap is a mutex-guarded map whose entries expire. A background
// goroutine removes expired entries until close is called.
type ttlMap struct {
	mu        sync.Mutex
	entries   map[string]ttlEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newTTLMap(cleanupInterval time.Duration) *ttlMap {
	m := &ttlMap{
		entries:  make(map[string]ttlEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.cleanupLoop(cleanupInterval)
	return m
}

// setIfAbsent stores the value unless a live entry exists
func (m *ttlMap) setIfAbsent(key string, value any, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}
	m.entries[key] = ttlEntry{value: value, expiresAt: now.Add(ttl)}
	return true
}

// get returns a live entry
func (m *ttlMap) get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// take removes and returns a live entry
func (m *ttlMap) take(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	delete(m.entries, key)
	if !m.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (m *ttlMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *ttlMap) close() {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
	})
}

func (m *ttlMap) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *ttlMap) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}
