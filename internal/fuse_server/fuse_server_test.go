package fuse_server

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanwen/go-fuse/v2/fuse"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/capsule_service/inmemory"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/handle_table"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/internal/log_service"
	names "github.com/AnishMulay/capfs/internal/name_service/inmemory"
	ps "github.com/AnishMulay/capfs/internal/posix_service"
)

func TestFillAttr(t *testing.T) {
	var target cs.Name
	target[0] = 7

	var file, dir fuse.Attr
	fillAttr(ps.Attr{Length: 1000, Target: target}, &file)
	fillAttr(ps.Attr{IsDir: true, Length: inode.BlockSize, Target: target}, &dir)

	if file.Mode != syscall.S_IFREG|fileMode || file.Size != 1000 || file.Blocks != 2 {
		t.Errorf("file attr = %+v", file)
	}
	if dir.Mode != syscall.S_IFDIR|dirMode || dir.Nlink != 2 {
		t.Errorf("dir attr = %+v", dir)
	}
	if file.Ino != dir.Ino || file.Ino == 0 {
		t.Errorf("inode numbers %d, %d; want equal and non-zero for one identity", file.Ino, dir.Ino)
	}
}

// fuseAvailable skips tests that need a real mount.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

func testMount(t *testing.T) string {
	t.Helper()
	fuseAvailable(t)

	capsules := inmemory.NewInMemoryCapsuleService(names.NewInMemoryNameService(), log_service.Nop{})
	dirs := ds.NewDirectoryService(file_service.NewFileService(capsules, log_service.Nop{}), ds.Options{}, log_service.Nop{})
	if err := dirs.MakeRoot(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc := ps.NewPosixService(dirs, handle_table.NewHandleTable(0, log_service.Nop{}), log_service.Nop{})

	mountpoint := filepath.Join(t.TempDir(), "mnt")
	server, err := Mount(Options{Mountpoint: mountpoint, Service: svc})
	if err != nil {
		t.Skipf("skipping: mount failed: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
		svc.Close()
	})
	return mountpoint
}

func TestMount_EndToEnd(t *testing.T) {
	mnt := testMount(t)

	if err := os.Mkdir(filepath.Join(mnt, "d"), 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(mnt, "d", "f")
	want := bytes.Repeat([]byte("capfs"), inode.BlockSize/4)
	if err := os.WriteFile(file, want, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read back %d bytes, want %d", len(got), len(want))
	}

	if err := os.Rename(file, filepath.Join(mnt, "g")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(mnt)
	if err != nil {
		t.Fatal(err)
	}
	var listed []string
	for _, e := range entries {
		listed = append(listed, e.Name())
	}
	sort.Strings(listed)
	if diff := cmp.Diff([]string{"d", "g"}, listed); diff != "" {
		t.Errorf("ReadDir mismatch (-want +got):\n%s", diff)
	}

	if err := os.Truncate(filepath.Join(mnt, "g"), 3); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(filepath.Join(mnt, "g")); err != nil || fi.Size() != 3 {
		t.Errorf("Stat after truncate = %v, %v; want size 3", fi, err)
	}

	if err := os.WriteFile(filepath.Join(mnt, "d", "x"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(mnt, "d")); !errors.Is(err, syscall.ENOTEMPTY) {
		t.Errorf("rmdir non-empty error = %v, want ENOTEMPTY", err)
	}
}
