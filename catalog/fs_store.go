package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"augustus/columnar"
	"augustus/core"
)

const stateFileSuffix = ".state"

// FileStateStore keeps one packed snapshot file per identifier under
// dir/namespace/name.state on an afero filesystem
type FileStateStore struct {
	fs         afero.Fs
	dir        string
	compressor columnar.Compressor
}

// NewFileStateStore creates a store rooted at dir
func NewFileStateStore(fs afero.Fs, dir string, compressor columnar.Compressor) (*FileStateStore, error) {
	if compressor == nil {
		compressor = &columnar.NoCompressor{}
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating state directory %s", dir)
	}
	return &FileStateStore{fs: fs, dir: dir, compressor: compressor}, nil
}

// newFileStoreFromConfig reads "dir", "compression" and an optional
// "fs" (afero.Fs, the OS filesystem by default)
func newFileStoreFromConfig(config map[string]interface{}) (StateStore, error) {
	dir, _ := config["dir"].(string)
	if dir == "" {
		return nil, errors.Wrap(ErrMissingStoreConfig, "fs state store needs a dir")
	}
	fs, ok := config["fs"].(afero.Fs)
	if !ok {
		fs = afero.NewOsFs()
	}
	c, err := compressorFromConfig(config)
	if err != nil {
		return nil, err
	}
	return NewFileStateStore(fs, dir, c)
}

func (s *FileStateStore) path(id StateIdentifier) string {
	return filepath.Join(s.dir, id.Namespace, id.Name+stateFileSuffix)
}

func (s *FileStateStore) Close() error {
	if z, ok := s.compressor.(*columnar.ZstdCompressor); ok {
		z.Close()
	}
	return nil
}

// Save writes to a temporary file and renames it into place, so that a
// reader never sees a partial snapshot
func (s *FileStateStore) Save(ctx context.Context, id StateIdentifier, state *core.DataTableState) error {
	if err := id.Validate(); err != nil {
		return err
	}
	packed, err := encodeState(s.compressor, state)
	if err != nil {
		return err
	}
	path := s.path(id)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, packed, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming %s", tmp)
	}
	core.GetTracer().Debug(core.TraceComponentState, "Saved state snapshot", core.TraceContext("state", id.String(), "bytes", len(packed), "compression", s.compressor.Type().String()))
	return nil
}

func (s *FileStateStore) read(id StateIdentifier) ([]byte, os.FileInfo, error) {
	if err := id.Validate(); err != nil {
		return nil, nil, err
	}
	path := s.path(id)
	info, err := s.fs.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil, ErrStateNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	packed, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	return packed, info, nil
}

func (s *FileStateStore) Load(ctx context.Context, id StateIdentifier) (*core.DataTableState, error) {
	packed, _, err := s.read(id)
	if err != nil {
		return nil, err
	}
	state, err := decodeState(packed)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding state %s", id)
	}
	core.GetTracer().Debug(core.TraceComponentState, "Loaded state snapshot", core.TraceContext("state", id.String(), "entries", state.Len()))
	return state, nil
}

func (s *FileStateStore) Stat(ctx context.Context, id StateIdentifier) (*StateMetadata, error) {
	packed, info, err := s.read(id)
	if err != nil {
		return nil, err
	}
	state, err := decodeState(packed)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding state %s", id)
	}
	return &StateMetadata{
		Identifier:  id,
		Compression: packedCompression(packed),
		SizeBytes:   info.Size(),
		Entries:     state.Len(),
		UpdatedAt:   info.ModTime(),
	}, nil
}

func (s *FileStateStore) List(ctx context.Context, namespace string) ([]StateIdentifier, error) {
	infos, err := afero.ReadDir(s.fs, filepath.Join(s.dir, namespace))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing namespace %s", namespace)
	}
	var result []StateIdentifier
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, stateFileSuffix) {
			continue
		}
		result = append(result, StateIdentifier{Namespace: namespace, Name: strings.TrimSuffix(name, stateFileSuffix)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *FileStateStore) Delete(ctx context.Context, id StateIdentifier) error {
	if _, _, err := s.read(id); err != nil {
		return err
	}
	return errors.Wrapf(s.fs.Remove(s.path(id)), "deleting state %s", id)
}
