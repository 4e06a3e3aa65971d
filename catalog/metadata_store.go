package catalog

import (
	"context"
	"fmt"

	"augustus/columnar"
	"augustus/core"
)

// StateStore is the interface for pluggable DataTableState storage
type StateStore interface {
	Save(ctx context.Context, id StateIdentifier, state *core.DataTableState) error
	Load(ctx context.Context, id StateIdentifier) (*core.DataTableState, error)
	Stat(ctx context.Context, id StateIdentifier) (*StateMetadata, error)
	List(ctx context.Context, namespace string) ([]StateIdentifier, error)
	Delete(ctx context.Context, id StateIdentifier) error

	// Lifecycle
	Close() error
}

// StateStoreFactory creates state store instances
type StateStoreFactory interface {
	CreateStore(config map[string]interface{}) (StateStore, error)
}

// StateStoreFactoryFunc adapts a function to StateStoreFactory
type StateStoreFactoryFunc func(config map[string]interface{}) (StateStore, error)

func (f StateStoreFactoryFunc) CreateStore(config map[string]interface{}) (StateStore, error) {
	return f(config)
}

// Registry of available state store implementations
var stateStoreFactories = map[string]StateStoreFactory{
	"memory": StateStoreFactoryFunc(newMemoryStoreFromConfig),
	"fs":     StateStoreFactoryFunc(newFileStoreFromConfig),
}

// RegisterStateStore registers a new state store implementation
func RegisterStateStore(name string, factory StateStoreFactory) {
	stateStoreFactories[name] = factory
}

// CreateStateStore creates a state store instance
func CreateStateStore(storeType string, config map[string]interface{}) (StateStore, error) {
	factory, exists := stateStoreFactories[storeType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStoreType, storeType)
	}
	return factory.CreateStore(config)
}

// compressorFromConfig reads the "compression" key, defaulting to none
func compressorFromConfig(config map[string]interface{}) (columnar.Compressor, error) {
	name, _ := config["compression"].(string)
	ct, err := columnar.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return columnar.CreateCompressor(ct, columnar.CompressionLevelDefault)
}

// encodeState serializes and packs a snapshot
func encodeState(c columnar.Compressor, state *core.DataTableState) ([]byte, error) {
	data, err := state.Encode()
	if err != nil {
		return nil, err
	}
	return columnar.Pack(c, data)
}

// decodeState unpacks and deserializes a snapshot written by encodeState
func decodeState(packed []byte) (*core.DataTableState, error) {
	data, err := columnar.Unpack(packed)
	if err != nil {
		return nil, err
	}
	return core.DecodeDataTableState(data)
}

// packedCompression names the algorithm recorded in a packed buffer
func packedCompression(packed []byte) string {
	if len(packed) == 0 {
		return columnar.CompressionNone.String()
	}
	return columnar.CompressionType(packed[0]).String()
}
