package catalog

import (
	"context"
	"errors"
	"sync"

	"augustus/core"
)

// Manager resolves snapshot names against a default namespace and turns
// a missing snapshot into a fresh state
type Manager struct {
	store            StateStore
	defaultNamespace string
	mu               sync.RWMutex
}

// NewManager creates a new state manager
func NewManager(store StateStore, defaultNamespace string) *Manager {
	return &Manager{store: store, defaultNamespace: defaultNamespace}
}

// Close closes the underlying store
func (m *Manager) Close() error {
	return m.store.Close()
}

// SetDefaultNamespace sets the namespace of unqualified names
func (m *Manager) SetDefaultNamespace(namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultNamespace = namespace
}

// GetDefaultNamespace returns the namespace of unqualified names
func (m *Manager) GetDefaultNamespace() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultNamespace
}

// GetStateStore returns the underlying state store
func (m *Manager) GetStateStore() StateStore {
	return m.store
}

func (m *Manager) resolve(identifier string) StateIdentifier {
	return ParseStateIdentifier(identifier, m.GetDefaultNamespace())
}

// Restore loads the named state, or returns an empty one when nothing
// has been saved under that name yet
func (m *Manager) Restore(ctx context.Context, identifier string) (*core.DataTableState, error) {
	id := m.resolve(identifier)
	state, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrStateNotFound) {
		core.GetTracer().Info(core.TraceComponentState, "Starting new state", core.TraceContext("state", id.String()))
		return core.NewDataTableState(), nil
	}
	return state, err
}

// Checkpoint saves the state under the given name
func (m *Manager) Checkpoint(ctx context.Context, identifier string, state *core.DataTableState) error {
	return m.store.Save(ctx, m.resolve(identifier), state)
}

// Describe returns the metadata of the named state
func (m *Manager) Describe(ctx context.Context, identifier string) (*StateMetadata, error) {
	return m.store.Stat(ctx, m.resolve(identifier))
}

// States lists the saved states of the default namespace
func (m *Manager) States(ctx context.Context) ([]StateIdentifier, error) {
	return m.store.List(ctx, m.GetDefaultNamespace())
}

// Forget deletes the named state
func (m *Manager) Forget(ctx context.Context, identifier string) error {
	return m.store.Delete(ctx, m.resolve(identifier))
}
