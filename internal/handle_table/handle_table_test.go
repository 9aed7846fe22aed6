package handle_table

import (
	"context"
	"errors"
	"testing"

	"github.com/AnishMulay/capfs/internal/capsule_service/inmemory"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/log_service"
	names "github.com/AnishMulay/capfs/internal/name_service/inmemory"
)

func newObjects(t *testing.T) (*ds.DirectoryService, *ds.Directory) {
	t.Helper()
	ctx := context.Background()
	capsules := inmemory.NewInMemoryCapsuleService(names.NewInMemoryNameService(), log_service.Nop{})
	dirs := ds.NewDirectoryService(file_service.NewFileService(capsules, log_service.Nop{}), ds.Options{}, log_service.Nop{})
	if err := dirs.MakeRoot(ctx); err != nil {
		t.Fatal(err)
	}
	root, err := dirs.OpenRoot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return dirs, root
}

func TestHandleTable_Refcount(t *testing.T) {
	ctx := context.Background()
	dirs, root := newObjects(t)
	f, err := dirs.MakeFile(ctx, root, "f")
	if err != nil {
		t.Fatal(err)
	}

	h := NewHandleTable(4, log_service.Nop{})
	rootID, err := h.Allocate(root)
	if err != nil {
		t.Fatal(err)
	}
	fileID, err := h.Allocate(f)
	if err != nil {
		t.Fatal(err)
	}
	if rootID != 1 || fileID != 2 {
		t.Errorf("ids = %d, %d; want 1, 2", rootID, fileID)
	}

	again, ok := h.Acquire(f.Name())
	if !ok || again != fileID {
		t.Fatalf("Acquire() = %d, %v; want %d, true", again, ok, fileID)
	}
	if got := h.Refs(fileID); got != 2 {
		t.Errorf("Refs() = %d, want 2", got)
	}

	if err := h.Release(fileID); err != nil {
		t.Fatal(err)
	}
	// Still open: one reference left.
	if _, err := f.Length(ctx); err != nil {
		t.Errorf("Length() after first release error = %v", err)
	}
	if err := h.Release(fileID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Length(ctx); !errors.Is(err, file_service.ErrClosed) {
		t.Errorf("Length() after last release error = %v, want ErrClosed", err)
	}
	if _, ok := h.Acquire(f.Name()); ok {
		t.Error("Acquire() found a released identity")
	}
	if err := h.Release(fileID); !errors.Is(err, ErrBadHandle) {
		t.Errorf("Release() of freed id error = %v, want ErrBadHandle", err)
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if h.Len() != 0 {
		t.Errorf("Len() after Close = %d", h.Len())
	}
}

func TestHandleTable_Kinds(t *testing.T) {
	ctx := context.Background()
	dirs, root := newObjects(t)
	f, err := dirs.MakeFile(ctx, root, "f")
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandleTable(0, log_service.Nop{})
	defer h.Close()

	dirID, _ := h.Allocate(root)
	fileID, _ := h.Allocate(f)

	if _, err := h.Directory(dirID); err != nil {
		t.Errorf("Directory(dir) error = %v", err)
	}
	if _, err := h.File(fileID); err != nil {
		t.Errorf("File(file) error = %v", err)
	}
	if _, err := h.File(dirID); !errors.Is(err, ErrWrongKind) {
		t.Errorf("File(dir) error = %v, want ErrWrongKind", err)
	}
	if _, err := h.Directory(fileID); !errors.Is(err, ErrWrongKind) {
		t.Errorf("Directory(file) error = %v, want ErrWrongKind", err)
	}
	for _, id := range []uint64{0, 99, DefaultMaxHandles + 1} {
		if _, err := h.Lookup(id); !errors.Is(err, ErrBadHandle) {
			t.Errorf("Lookup(%d) error = %v, want ErrBadHandle", id, err)
		}
	}
}

func TestHandleTable_Limit(t *testing.T) {
	ctx := context.Background()
	dirs, root := newObjects(t)
	h := NewHandleTable(2, log_service.Nop{})
	defer h.Close()

	var ids []uint64
	for _, name := range []string{"a", "b"} {
		f, err := dirs.MakeFile(ctx, root, name)
		if err != nil {
			t.Fatal(err)
		}
		id, err := h.Allocate(f)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if _, err := h.Allocate(root); !errors.Is(err, ErrTooManyHandles) {
		t.Fatalf("Allocate() past limit error = %v, want ErrTooManyHandles", err)
	}

	// A freed id is reused.
	if err := h.Release(ids[0]); err != nil {
		t.Fatal(err)
	}
	id, err := h.Allocate(root)
	if err != nil {
		t.Fatal(err)
	}
	if id != ids[0] {
		t.Errorf("Allocate() = %d, want reused id %d", id, ids[0])
	}
}
