package localdisc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/codec"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/name_service"
)

// binding is the content of one binding file.
type binding struct {
	HumanName string  `cbor:"human_name"`
	Name      cs.Name `cbor:"name"`
}

// LocalDiscNameService keeps one CBOR file per human name. A binding file is
// published with os.Link, which fails if the file exists, so two processes
// sharing the directory cannot both bind the same name.
type LocalDiscNameService struct {
	dir string
	ls  log_service.LogService

	// Bindings never change once written, so cached ones stay valid.
	mu    sync.Mutex
	cache map[string]cs.Name
}

func NewLocalDiscNameService(baseDir string, ls log_service.LogService) (*LocalDiscNameService, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create name directory: %w", err)
	}
	return &LocalDiscNameService{
		dir:   baseDir,
		ls:    ls,
		cache: make(map[string]cs.Name),
	}, nil
}

// bindingPath hashes the human name so any name maps to a short file name.
func (s *LocalDiscNameService) bindingPath(humanName string) string {
	sum := blake3.Sum256([]byte(humanName))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".cbor")
}

func (s *LocalDiscNameService) read(humanName string) (cs.Name, error) {
	data, err := os.ReadFile(s.bindingPath(humanName))
	if errors.Is(err, fs.ErrNotExist) {
		return cs.Name{}, fmt.Errorf("%w: %q", cs.ErrNameNotFound, humanName)
	}
	if err != nil {
		return cs.Name{}, fmt.Errorf("%w: read binding: %v", cs.ErrUnavailable, err)
	}
	var b binding
	if err := codec.Unmarshal(data, &b); err != nil {
		return cs.Name{}, fmt.Errorf("decode binding for %q: %w", humanName, err)
	}
	if b.HumanName != humanName {
		return cs.Name{}, fmt.Errorf("binding file for %q holds %q", humanName, b.HumanName)
	}
	return b.Name, nil
}

func (s *LocalDiscNameService) Bind(_ context.Context, humanName string, name cs.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[humanName]; ok {
		return fmt.Errorf("%w: %q", cs.ErrNameTaken, humanName)
	}
	data, err := codec.Marshal(binding{HumanName: humanName, Name: name})
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".bind-*")
	if err != nil {
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}

	if err := os.Link(tmp.Name(), s.bindingPath(humanName)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %q", cs.ErrNameTaken, humanName)
		}
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	s.cache[humanName] = name

	s.ls.Debug(log_service.LogEvent{
		Message:  "Bound human name",
		Metadata: map[string]any{"humanName": humanName, "capsule": name.String()},
	})
	return nil
}

func (s *LocalDiscNameService) Resolve(_ context.Context, humanName string) (cs.Name, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name, ok := s.cache[humanName]; ok {
		return name, nil
	}
	name, err := s.read(humanName)
	if err != nil {
		return cs.Name{}, err
	}
	s.cache[humanName] = name
	return name, nil
}

var _ name_service.NameService = (*LocalDiscNameService)(nil)
