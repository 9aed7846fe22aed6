package capfs

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/AnishMulay/capfs/internal/config"
	"github.com/AnishMulay/capfs/internal/fuse_server"
	logservice "github.com/AnishMulay/capfs/internal/log_service"
)

type runnable interface {
	Run() error
}

type mountServer struct {
	cfg   *config.Config
	stack *Stack
}

// Run mounts the file system and serves it until SIGINT or SIGTERM.
func (m *mountServer) Run() error {
	defer m.stack.Close()

	server, err := fuse_server.Mount(fuse_server.Options{
		Mountpoint: m.cfg.Mount.Mountpoint,
		Service:    m.stack.Posix,
		AllowOther: m.cfg.Mount.AllowOther,
		Debug:      m.cfg.Mount.Debug,
		LogService: m.stack.Log,
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	// Wait for termination signal or an external unmount
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
		m.stack.Log.Info(logservice.LogEvent{Message: "Unmounting capfs"})
		return unmount(server)
	case <-done:
		return nil
	}
}

func unmount(server *fuse.Server) error {
	if err := server.Unmount(); err != nil {
		return err
	}
	server.Wait()
	return nil
}

// Build opens the configured backend and prepares a mount. The backend must
// be reachable and the root must already exist.
func Build(ctx context.Context, cfg *config.Config) (runnable, error) {
	stack, err := OpenStack(ctx, cfg)
	if err != nil {
		return nil, err
	}
	root, err := stack.Dirs.OpenRoot(ctx)
	if err != nil {
		stack.Close()
		return nil, err
	}
	root.Close()
	return &mountServer{cfg: cfg, stack: stack}, nil
}
