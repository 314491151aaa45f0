package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"sips-gamification/logger"
)

// maxEntriesBeforeSweep triggers an expiry sweep on Set once the map grows past it.
const maxEntriesBeforeSweep = 10000

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is the in-process fallback. State is not shared between instances, so cooldowns
// only hold per process when several replicas run without Redis.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	log     *logger.Logger
}

func NewMemory(log *logger.Logger) *Memory {
	return NewMemoryWithClock(log, time.Now)
}

func NewMemoryWithClock(log *logger.Logger, now func() time.Time) *Memory {
	if log == nil {
		log = logger.Nop()
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     now,
		log:     log.With("service", "MemoryCache"),
	}
}

func (m *Memory) Get(_ context.Context, key string, dest interface{}) bool {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		m.log.Warn("cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		m.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if len(m.entries) >= maxEntriesBeforeSweep {
		m.sweepLocked(now)
	}
	m.entries[key] = memoryEntry{data: data, expiresAt: now.Add(ttl)}
}

func (m *Memory) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		m.log.Warn("cache encode failed", "key", key, "error", err)
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}
	m.entries[key] = memoryEntry{data: data, expiresAt: now.Add(ttl)}
	return true
}

func (m *Memory) Del(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) sweepLocked(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
