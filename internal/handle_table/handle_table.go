package handle_table

import (
	"fmt"
	"sync"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/log_service"
)

const DefaultMaxHandles = 1024

// Object is an open file or directory. Only *file_service.File and
// *directory_service.Directory are stored.
type Object interface {
	Name() cs.Name
	Close() error
}

var (
	_ Object = (*file_service.File)(nil)
	_ Object = (*ds.Directory)(nil)
)

type slot struct {
	obj  Object
	refs int
}

// HandleTable hands out small integer ids for open objects. Opening an
// identity that is already open shares the existing object and bumps its
// reference count. Ids start at 1.
type HandleTable struct {
	mu     sync.Mutex
	slots  []*slot
	byName map[cs.Name]uint64
	ls     log_service.LogService
}

func NewHandleTable(maxHandles int, ls log_service.LogService) *HandleTable {
	if maxHandles <= 0 {
		maxHandles = DefaultMaxHandles
	}
	return &HandleTable{
		slots:  make([]*slot, maxHandles),
		byName: make(map[cs.Name]uint64),
		ls:     ls,
	}
}

// Allocate stores obj under a fresh id. The table takes ownership of obj.
func (h *HandleTable) Allocate(obj Object) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.slots {
		if s != nil {
			continue
		}
		h.slots[i] = &slot{obj: obj, refs: 1}
		id := uint64(i + 1)
		if _, shared := h.byName[obj.Name()]; !shared {
			h.byName[obj.Name()] = id
		}
		return id, nil
	}
	return 0, fmt.Errorf("%w: limit %d", ErrTooManyHandles, len(h.slots))
}

// Acquire returns the id of an open object with the given identity and
// takes another reference on it.
func (h *HandleTable) Acquire(name cs.Name) (uint64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.byName[name]
	if !ok {
		return 0, false
	}
	h.slots[id-1].refs++
	return id, true
}

func (h *HandleTable) get(id uint64) (*slot, error) {
	if id == 0 || id > uint64(len(h.slots)) || h.slots[id-1] == nil {
		return nil, fmt.Errorf("%w: %d", ErrBadHandle, id)
	}
	return h.slots[id-1], nil
}

func (h *HandleTable) Lookup(id uint64) (Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.get(id)
	if err != nil {
		return nil, err
	}
	return s.obj, nil
}

func (h *HandleTable) File(id uint64) (*file_service.File, error) {
	obj, err := h.Lookup(id)
	if err != nil {
		return nil, err
	}
	f, ok := obj.(*file_service.File)
	if !ok {
		return nil, fmt.Errorf("%w: %d is a directory", ErrWrongKind, id)
	}
	return f, nil
}

func (h *HandleTable) Directory(id uint64) (*ds.Directory, error) {
	obj, err := h.Lookup(id)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*ds.Directory)
	if !ok {
		return nil, fmt.Errorf("%w: %d is a file", ErrWrongKind, id)
	}
	return d, nil
}

// Release drops one reference. The last one closes the object and frees the id.
func (h *HandleTable) Release(id uint64) error {
	h.mu.Lock()
	s, err := h.get(id)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	s.refs--
	if s.refs > 0 {
		h.mu.Unlock()
		return nil
	}
	h.slots[id-1] = nil
	if h.byName[s.obj.Name()] == id {
		delete(h.byName, s.obj.Name())
	}
	h.mu.Unlock()

	return s.obj.Close()
}

// Refs reports the reference count of id, zero if it is not open.
func (h *HandleTable) Refs(id uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.get(id)
	if err != nil {
		return 0
	}
	return s.refs
}

func (h *HandleTable) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Close closes every open object regardless of reference counts.
func (h *HandleTable) Close() error {
	h.mu.Lock()
	slots := h.slots
	h.slots = make([]*slot, len(slots))
	h.byName = make(map[cs.Name]uint64)
	h.mu.Unlock()

	var firstErr error
	open := 0
	for _, s := range slots {
		if s == nil {
			continue
		}
		open++
		if err := s.obj.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if open > 0 {
		h.ls.Info(log_service.LogEvent{
			Message:  "Closed open handles",
			Metadata: map[string]any{"count": open},
		})
	}
	return firstErr
}
