package logserver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	grpccapsule "github.com/AnishMulay/capfs/internal/capsule_service/grpc"
	"github.com/AnishMulay/capfs/internal/config"
	logservice "github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/servers/capfs"
)

type runnable interface {
	Run() error
}

type logServer struct {
	server  *grpccapsule.GRPCCapsuleServer
	ls      logservice.LogService
	closers []io.Closer
}

func (s *logServer) Run() error {
	defer s.close()
	if err := s.server.Start(); err != nil {
		return err
	}

	// Wait for termination signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	return s.server.Stop()
}

func (s *logServer) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}

// Build serves the capsules under cfg's data dir to remote mounts. A log
// server always stores locally; a grpc capsule backend in cfg means
// localdisc here.
func Build(cfg *config.Config) (runnable, error) {
	local := *cfg
	if local.Capsules.Backend == config.CapsuleBackendGRPC {
		local.Capsules.Backend = config.CapsuleBackendLocalDisc
	}
	if err := local.Validate(); err != nil {
		return nil, err
	}

	// 1. Logging
	ls, logCloser, err := capfs.NewLogService(&local)
	if err != nil {
		return nil, fmt.Errorf("log service: %w", err)
	}

	// 2. Storage
	svc, closers, err := capfs.NewCapsuleService(&local, ls)
	closers = append([]io.Closer{logCloser}, closers...)
	if err != nil {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i].Close())
		}
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	// 3. Transport
	srv := grpccapsule.NewGRPCCapsuleServer(local.Serve.ListenAddr, svc, ls)
	ls.Info(logservice.LogEvent{
		Message:  "Built capsule log server",
		Metadata: map[string]any{"listen": local.Serve.ListenAddr, "capsules": local.Capsules.Backend, "dataDir": local.DataDir},
	})
	return &logServer{server: srv, ls: ls, closers: closers}, nil
}
