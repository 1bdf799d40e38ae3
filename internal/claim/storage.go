package claim

import (
	"sync"
	"time"
)

// Record is the value written under a claim key.
type Record struct {
	Token     string    `yaml:"token"`
	WrittenAt time.Time `yaml:"written_at"`
}

// Storage is a last-write-wins key/value medium shared by every client
// context on the machine. It offers no compare-and-swap.
type Storage interface {
	Get(key string) (Record, bool, error)
	Put(key string, rec Record) error
	Delete(key string) error
}

// MemoryStore is a Storage for contexts living in one process.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (m *MemoryStore) Get(key string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	return rec, ok, nil
}

func (m *MemoryStore) Put(key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[key] = rec
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}
