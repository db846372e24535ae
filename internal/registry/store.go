package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// Record is the persisted form of one fit.
type Record struct {
	Handle Handle
	State  []byte
}

// Store persists fits so they outlive the process.
type Store interface {
	Save(Record) error
	LoadAll() ([]Record, error)
}

// MemoryStore keeps records for the life of the process only.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{recs: map[string]Record{}} }

func (m *MemoryStore) Save(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[r.Handle.ID] = r
	return nil
}

func (m *MemoryStore) LoadAll() ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

// FileStore writes <dir>/<handle>.yml (manifest) and <handle>.state.zst
// (zstd-compressed encoder state). The state is written before the
// manifest, so a manifest on disk always has its state next to it.
type FileStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

const (
	manifestExt = ".yml"
	stateExt    = ".state.zst"
)

type manifest struct {
	Handle `yaml:",inline"`
	State  string `yaml:"state"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, enc: enc, dec: dec}, nil
}

func (s *FileStore) Save(r Record) error {
	statePath := filepath.Join(s.dir, r.Handle.ID+stateExt)
	if err := writeAtomic(statePath, s.enc.EncodeAll(r.State, nil)); err != nil {
		return fmt.Errorf("registry: write state: %w", err)
	}
	raw, err := yaml.Marshal(manifest{Handle: r.Handle, State: filepath.Base(statePath)})
	if err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.dir, r.Handle.ID+manifestExt), raw); err != nil {
		return fmt.Errorf("registry: write manifest: %w", err)
	}
	return nil
}

func (s *FileStore) LoadAll() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestExt) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var m manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("registry: %s: %w", e.Name(), err)
		}
		packed, err := os.ReadFile(filepath.Join(s.dir, m.State))
		if err != nil {
			return nil, fmt.Errorf("registry: state for %s: %w", m.ID, err)
		}
		state, err := s.dec.DecodeAll(packed, nil)
		if err != nil {
			return nil, fmt.Errorf("registry: decompress state for %s: %w", m.ID, err)
		}
		out = append(out, Record{Handle: m.Handle, State: state})
	}
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
