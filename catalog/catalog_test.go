package catalog

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"augustus/columnar"
	"augustus/core"
)

func sampleState() *core.DataTableState {
	state := core.NewDataTableState()
	state.Set("cusum", &core.StateValue{Number: 2.5})
	state.Set("counts", &core.StateValue{Multiset: map[string]int64{"a": 3, "b": 1}})
	return state
}

func TestParseStateIdentifier(t *testing.T) {
	assert.Equal(t, StateIdentifier{Namespace: "default", Name: "alarm"}, ParseStateIdentifier("alarm", "default"))
	assert.Equal(t, StateIdentifier{Namespace: "prod", Name: "alarm"}, ParseStateIdentifier("prod.alarm", "default"))
	assert.Equal(t, StateIdentifier{Namespace: "prod", Name: "alarm.v2"}, ParseStateIdentifier("prod.alarm.v2", "default"))
	assert.Equal(t, "prod.alarm", StateIdentifier{Namespace: "prod", Name: "alarm"}.String())

	assert.ErrorIs(t, StateIdentifier{Namespace: "default", Name: "../etc"}.Validate(), ErrInvalidIdentifier)
	assert.ErrorIs(t, StateIdentifier{Namespace: "", Name: "x"}.Validate(), ErrInvalidIdentifier)
	assert.NoError(t, StateIdentifier{Namespace: "a", Name: "b"}.Validate())
}

func storeContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	id := StateIdentifier{Namespace: "default", Name: "alarm"}

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, store.Save(ctx, id, sampleState()))
	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"cusum", "counts"}, loaded.Keys())
	v, ok := loaded.Get("counts")
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"a": 3, "b": 1}, v.Multiset)

	// loaded states are independent copies
	loaded.Set("extra", &core.StateValue{Number: 1})
	again, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Len())

	meta, err := store.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, meta.Identifier)
	assert.Equal(t, 2, meta.Entries)
	assert.Positive(t, meta.SizeBytes)

	require.NoError(t, store.Save(ctx, StateIdentifier{Namespace: "default", Name: "aggregate"}, core.NewDataTableState()))
	require.NoError(t, store.Save(ctx, StateIdentifier{Namespace: "other", Name: "zeta"}, core.NewDataTableState()))
	ids, err := store.List(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, []StateIdentifier{{"default", "aggregate"}, {"default", "alarm"}}, ids)

	empty, err := store.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.ErrorIs(t, store.Delete(ctx, id), ErrStateNotFound)

	assert.ErrorIs(t, store.Save(ctx, StateIdentifier{Namespace: "default", Name: "a/b"}, sampleState()), ErrInvalidIdentifier)
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore(&columnar.SnappyCompressor{})
	storeContract(t, store)

	require.NoError(t, store.Save(context.Background(), StateIdentifier{"default", "x"}, sampleState()))
	meta, err := store.Stat(context.Background(), StateIdentifier{"default", "x"})
	require.NoError(t, err)
	assert.Equal(t, "snappy", meta.Compression)

	require.NoError(t, store.Close())
	_, err = store.Load(context.Background(), StateIdentifier{"default", "x"})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestFileStateStore(t *testing.T) {
	for _, compression := range []string{"none", "gzip", "snappy", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			store, err := CreateStateStore("fs", map[string]interface{}{
				"dir":         "/var/augustus",
				"compression": compression,
				"fs":          fs,
			})
			require.NoError(t, err)
			defer store.Close()
			storeContract(t, store)

			exists, err := afero.Exists(fs, "/var/augustus/other/zeta.state")
			require.NoError(t, err)
			assert.True(t, exists)
			tmp, err := afero.Exists(fs, "/var/augustus/other/zeta.state.tmp")
			require.NoError(t, err)
			assert.False(t, tmp)

			meta, err := store.Stat(context.Background(), StateIdentifier{"other", "zeta"})
			require.NoError(t, err)
			assert.Equal(t, compression, meta.Compression)
		})
	}

	t.Run("Corrupt", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		store, err := NewFileStateStore(fs, "/s", nil)
		require.NoError(t, err)
		require.NoError(t, fs.MkdirAll("/s/default", 0o755))
		require.NoError(t, afero.WriteFile(fs, "/s/default/bad.state", []byte{byte(columnar.CompressionNone), '{'}, 0o644))
		_, err = store.Load(context.Background(), StateIdentifier{"default", "bad"})
		assert.Error(t, err)
	})
}

func TestCreateStateStore(t *testing.T) {
	store, err := CreateStateStore("memory", map[string]interface{}{"compression": "gzip"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStateStore{}, store)

	_, err = CreateStateStore("fs", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrMissingStoreConfig)

	_, err = CreateStateStore("memory", map[string]interface{}{"compression": "lz77"})
	assert.Error(t, err)

	_, err = CreateStateStore("redis", nil)
	assert.ErrorIs(t, err, ErrUnknownStoreType)

	RegisterStateStore("fixed", StateStoreFactoryFunc(func(map[string]interface{}) (StateStore, error) {
		return NewMemoryStateStore(nil), nil
	}))
	store, err = CreateStateStore("fixed", nil)
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStateStore(nil), "default")
	defer m.Close()

	state, err := m.Restore(ctx, "alarm")
	require.NoError(t, err)
	assert.Equal(t, 0, state.Len())

	state.Set("cusum", &core.StateValue{Number: 4})
	require.NoError(t, m.Checkpoint(ctx, "alarm", state))

	restored, err := m.Restore(ctx, "default.alarm")
	require.NoError(t, err)
	v, ok := restored.Get("cusum")
	require.True(t, ok)
	assert.Equal(t, 4.0, v.Number)

	meta, err := m.Describe(ctx, "alarm")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Entries)

	ids, err := m.States(ctx)
	require.NoError(t, err)
	assert.Equal(t, []StateIdentifier{{"default", "alarm"}}, ids)

	m.SetDefaultNamespace("staging")
	assert.Equal(t, "staging", m.GetDefaultNamespace())
	ids, err = m.States(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, m.Forget(ctx, "default.alarm"))
	_, err = m.Describe(ctx, "default.alarm")
	assert.ErrorIs(t, err, ErrStateNotFound)
}
