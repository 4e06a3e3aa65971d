package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"augustus/columnar"
	"augustus/core"
)

type memoryEntry struct {
	packed    []byte
	entries   int
	updatedAt time.Time
}

// MemoryStateStore is an in-memory implementation of StateStore. It
// keeps packed snapshots, so a loaded state never aliases a saved one.
type MemoryStateStore struct {
	mu         sync.RWMutex
	compressor columnar.Compressor
	states     map[string]map[string]*memoryEntry // namespace -> name -> snapshot
	closed     bool
}

// NewMemoryStateStore creates a new in-memory state store
func NewMemoryStateStore(compressor columnar.Compressor) *MemoryStateStore {
	if compressor == nil {
		compressor = &columnar.NoCompressor{}
	}
	return &MemoryStateStore{
		compressor: compressor,
		states:     make(map[string]map[string]*memoryEntry),
	}
}

func newMemoryStoreFromConfig(config map[string]interface{}) (StateStore, error) {
	c, err := compressorFromConfig(config)
	if err != nil {
		return nil, err
	}
	return NewMemoryStateStore(c), nil
}

// Close closes the store
func (m *MemoryStateStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Clear all data
	m.states = make(map[string]map[string]*memoryEntry)
	m.closed = true
	return nil
}

func (m *MemoryStateStore) Save(ctx context.Context, id StateIdentifier, state *core.DataTableState) error {
	if err := id.Validate(); err != nil {
		return err
	}
	packed, err := encodeState(m.compressor, state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if m.states[id.Namespace] == nil {
		m.states[id.Namespace] = make(map[string]*memoryEntry)
	}
	m.states[id.Namespace][id.Name] = &memoryEntry{packed: packed, entries: state.Len(), updatedAt: time.Now()}
	return nil
}

func (m *MemoryStateStore) entry(id StateIdentifier) (*memoryEntry, error) {
	if m.closed {
		return nil, ErrStoreClosed
	}
	e, exists := m.states[id.Namespace][id.Name]
	if !exists {
		return nil, ErrStateNotFound
	}
	return e, nil
}

func (m *MemoryStateStore) Load(ctx context.Context, id StateIdentifier) (*core.DataTableState, error) {
	m.mu.RLock()
	e, err := m.entry(id)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return decodeState(e.packed)
}

func (m *MemoryStateStore) Stat(ctx context.Context, id StateIdentifier) (*StateMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	return &StateMetadata{
		Identifier:  id,
		Compression: packedCompression(e.packed),
		SizeBytes:   int64(len(e.packed)),
		Entries:     e.entries,
		UpdatedAt:   e.updatedAt,
	}, nil
}

func (m *MemoryStateStore) List(ctx context.Context, namespace string) ([]StateIdentifier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	var result []StateIdentifier
	for name := range m.states[namespace] {
		result = append(result, StateIdentifier{Namespace: namespace, Name: name})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryStateStore) Delete(ctx context.Context, id StateIdentifier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.entry(id); err != nil {
		return err
	}
	delete(m.states[id.Namespace], id.Name)
	return nil
}
