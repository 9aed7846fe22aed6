package capfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AnishMulay/capfs/internal/capsule_service"
	grpccapsule "github.com/AnishMulay/capfs/internal/capsule_service/grpc"
	capsulemem "github.com/AnishMulay/capfs/internal/capsule_service/inmemory"
	capsuledisc "github.com/AnishMulay/capfs/internal/capsule_service/localdisc"
	"github.com/AnishMulay/capfs/internal/config"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/handle_table"
	logservice "github.com/AnishMulay/capfs/internal/log_service"
	locallog "github.com/AnishMulay/capfs/internal/log_service/localdisc"
	"github.com/AnishMulay/capfs/internal/log_service/zaplog"
	"github.com/AnishMulay/capfs/internal/name_service"
	nameetcd "github.com/AnishMulay/capfs/internal/name_service/etcd"
	namemem "github.com/AnishMulay/capfs/internal/name_service/inmemory"
	namedisc "github.com/AnishMulay/capfs/internal/name_service/localdisc"
	ps "github.com/AnishMulay/capfs/internal/posix_service"
)

const probeTimeout = 5 * time.Second

// Stack is every layer of a capfs client, built from one config.
type Stack struct {
	Log      logservice.LogService
	Capsules capsule_service.CapsuleService
	Files    *file_service.FileService
	Dirs     *ds.DirectoryService
	Posix    *ps.PosixService

	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func NewLogService(cfg *config.Config) (logservice.LogService, io.Closer, error) {
	switch cfg.Log.Backend {
	case config.LogBackendConsole:
		ls, err := zaplog.NewZapLogService(cfg.NodeID, cfg.Log.Level)
		if err != nil {
			return nil, nil, err
		}
		// Sync on stderr reports EINVAL on some platforms; nothing to flush.
		return ls, closerFunc(func() error { ls.Sync(); return nil }), nil
	default:
		ls, err := locallog.NewLocalDiscLogService(cfg.LogDir(), cfg.NodeID, cfg.Log.Level)
		if err != nil {
			return nil, nil, err
		}
		return ls, ls, nil
	}
}

func newNameService(cfg *config.Config, ls logservice.LogService) (name_service.NameService, io.Closer, error) {
	switch cfg.Names.Backend {
	case config.NameBackendMemory:
		return namemem.NewInMemoryNameService(), nil, nil
	case config.NameBackendEtcd:
		ns, err := nameetcd.NewEtcdNameService(cfg.Names.EtcdEndpoints, cfg.Names.EtcdPrefix, ls)
		if err != nil {
			return nil, nil, err
		}
		return ns, ns, nil
	default:
		ns, err := namedisc.NewLocalDiscNameService(cfg.NameDir(), ls)
		return ns, nil, err
	}
}

// NewCapsuleService builds the local capsule backend selected by cfg.
// The grpc backend is a client and has no local names.
func NewCapsuleService(cfg *config.Config, ls logservice.LogService) (capsule_service.CapsuleService, []io.Closer, error) {
	if cfg.Capsules.Backend == config.CapsuleBackendGRPC {
		client, err := grpccapsule.NewGRPCCapsuleService(cfg.Capsules.Address, ls)
		if err != nil {
			return nil, nil, err
		}
		return client, []io.Closer{client}, nil
	}

	names, namesCloser, err := newNameService(cfg, ls)
	if err != nil {
		return nil, nil, fmt.Errorf("name service: %w", err)
	}
	var closers []io.Closer
	if namesCloser != nil {
		closers = append(closers, namesCloser)
	}

	switch cfg.Capsules.Backend {
	case config.CapsuleBackendMemory:
		return capsulemem.NewInMemoryCapsuleService(names, ls), closers, nil
	default:
		tag, err := capsuledisc.ParseCompressionTag(cfg.Capsules.Compression)
		if err != nil {
			return nil, closers, err
		}
		svc, err := capsuledisc.NewLocalDiscCapsuleService(cfg.CapsuleDir(), tag, names, ls)
		if err != nil {
			return nil, closers, err
		}
		return svc, closers, nil
	}
}

// OpenStack wires the layers and checks that the backend answers. An
// unreachable backend is reported as file_service.ErrBackendUnavailable.
func OpenStack(ctx context.Context, cfg *config.Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. Logging
	ls, logCloser, err := NewLogService(cfg)
	if err != nil {
		return nil, fmt.Errorf("log service: %w", err)
	}
	s := &Stack{Log: ls, closers: []io.Closer{logCloser}}

	// 2. Capsule backend
	capsules, closers, err := NewCapsuleService(cfg, ls)
	s.closers = append(s.closers, closers...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %w", file_service.ErrBackendUnavailable, err)
	}
	s.Capsules = capsules

	// 3. Core
	s.Files = file_service.NewFileService(capsules, ls)
	s.Dirs = ds.NewDirectoryService(s.Files, ds.Options{
		NamePrefix:    cfg.Directory.NamePrefix,
		RetryAttempts: cfg.Directory.RetryAttempts,
		RetryBackoff:  cfg.Directory.RetryBackoff,
	}, ls)
	s.Posix = ps.NewPosixService(s.Dirs, handle_table.NewHandleTable(cfg.Mount.MaxHandles, ls), ls)

	// 4. Probe
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	root, err := s.Dirs.OpenRoot(probeCtx)
	switch {
	case err == nil:
		root.Close()
	case errors.Is(err, file_service.ErrBackendUnavailable), errors.Is(err, context.DeadlineExceeded):
		s.Close()
		return nil, fmt.Errorf("%w: %w", file_service.ErrBackendUnavailable, err)
	}

	ls.Info(logservice.LogEvent{
		Message: "capfs stack ready",
		Metadata: map[string]any{
			"capsules": cfg.Capsules.Backend,
			"names":    cfg.Names.Backend,
			"dataDir":  cfg.DataDir,
		},
	})
	return s, nil
}

// Close tears the stack down in reverse order of construction.
func (s *Stack) Close() error {
	var errs []error
	if s.Posix != nil {
		errs = append(errs, s.Posix.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}
