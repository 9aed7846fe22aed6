package capfs

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/AnishMulay/capfs/internal/config"
	"github.com/AnishMulay/capfs/internal/file_service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Log.Level = "ERROR"
	return cfg
}

func TestOpenStack_LocalDisc(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	s, err := OpenStack(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Dirs.MakeRoot(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Posix.Mkdir(ctx, "/persisted"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// A second stack over the same data dir sees the tree.
	s, err = OpenStack(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	attr, err := s.Posix.Stat(ctx, "/persisted")
	if err != nil {
		t.Fatalf("Stat() after reopen error = %v", err)
	}
	if !attr.IsDir {
		t.Error("reopened entry is not a directory")
	}
}

func TestOpenStack_Memory(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Capsules.Backend = config.CapsuleBackendMemory
	cfg.Names.Backend = config.NameBackendMemory
	cfg.Log.Backend = config.LogBackendConsole

	s, err := OpenStack(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Dirs.OpenRoot(ctx); !errors.Is(err, file_service.ErrNotFound) {
		t.Errorf("OpenRoot() on fresh memory stack error = %v, want ErrNotFound", err)
	}
}

func TestOpenStack_UnreachableServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	cfg := testConfig(t)
	cfg.Capsules.Backend = config.CapsuleBackendGRPC
	cfg.Capsules.Address = addr

	if _, err := OpenStack(context.Background(), cfg); !errors.Is(err, file_service.ErrBackendUnavailable) {
		t.Errorf("OpenStack() error = %v, want ErrBackendUnavailable", err)
	}
}

func TestBuild_RequiresRoot(t *testing.T) {
	cfg := testConfig(t)
	if _, err := Build(context.Background(), cfg); !errors.Is(err, file_service.ErrNotFound) {
		t.Errorf("Build() without root error = %v, want ErrNotFound", err)
	}
}
