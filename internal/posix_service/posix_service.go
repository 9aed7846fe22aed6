package posix_service

import (
	"context"
	"fmt"
	"strings"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	ds "github.com/AnishMulay/capfs/internal/directory_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/handle_table"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/path_resolver"
)

type Attr struct {
	IsDir  bool
	Length uint64
	Target cs.Name
}

type DirEntry struct {
	Name   string
	IsDir  bool
	Target cs.Name
}

// PosixService is the path and handle level entry point. Each method is one
// file system verb; handles come from its handle table.
type PosixService struct {
	dirs    *ds.DirectoryService
	paths   *path_resolver.PathResolver
	handles *handle_table.HandleTable
	ls      log_service.LogService
}

func NewPosixService(dirs *ds.DirectoryService, handles *handle_table.HandleTable, ls log_service.LogService) *PosixService {
	return &PosixService{
		dirs:    dirs,
		paths:   path_resolver.NewPathResolver(dirs),
		handles: handles,
		ls:      ls,
	}
}

func (s *PosixService) Directories() *ds.DirectoryService {
	return s.dirs
}

// Close releases every open handle.
func (s *PosixService) Close() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping POSIX service"})
	return s.handles.Close()
}

// share registers obj, reusing an open handle for the same identity.
func (s *PosixService) share(obj handle_table.Object) (uint64, error) {
	if id, ok := s.handles.Acquire(obj.Name()); ok {
		obj.Close()
		return id, nil
	}
	id, err := s.handles.Allocate(obj)
	if err != nil {
		obj.Close()
		return 0, err
	}
	return id, nil
}

// --- Attributes ---

func (s *PosixService) Stat(ctx context.Context, path string) (Attr, error) {
	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return Attr{}, err
	}
	defer parent.Close()

	if name == "" {
		n, err := parent.File().Length(ctx)
		if err != nil {
			return Attr{}, err
		}
		return Attr{IsDir: true, Length: n, Target: parent.Name()}, nil
	}

	e, err := s.dirs.Lookup(ctx, parent, name)
	if err != nil {
		return Attr{}, err
	}
	f, err := s.dirs.OpenTarget(ctx, e)
	if err != nil {
		return Attr{}, err
	}
	defer f.Close()
	n, err := f.Length(ctx)
	if err != nil {
		return Attr{}, err
	}
	return Attr{IsDir: e.IsDir, Length: n, Target: e.Target}, nil
}

// Access succeeds for any existing path. Permissions are not enforced.
func (s *PosixService) Access(ctx context.Context, path string, mask uint32) error {
	_, err := s.Stat(ctx, path)
	return err
}

// --- Files ---

func (s *PosixService) Create(ctx context.Context, path string) (uint64, error) {
	s.ls.Debug(log_service.LogEvent{Message: "Create Request", Metadata: map[string]any{"path": path}})

	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return 0, err
	}
	defer parent.Close()
	if name == "" {
		return 0, fmt.Errorf("%w: %q", file_service.ErrAlreadyExists, path)
	}

	f, err := s.dirs.MakeFile(ctx, parent, name)
	if err != nil {
		return 0, err
	}
	return s.share(f)
}

func (s *PosixService) Open(ctx context.Context, path string) (uint64, error) {
	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return 0, err
	}
	defer parent.Close()
	if name == "" {
		return 0, fmt.Errorf("%w: %q", ds.ErrIsADirectory, path)
	}

	e, err := s.dirs.Lookup(ctx, parent, name)
	if err != nil {
		return 0, err
	}
	if e.IsDir {
		return 0, fmt.Errorf("%w: %q", ds.ErrIsADirectory, path)
	}
	if id, ok := s.handles.Acquire(e.Target); ok {
		return id, nil
	}
	f, err := s.dirs.OpenTarget(ctx, e)
	if err != nil {
		return 0, err
	}
	return s.share(f)
}

// Read fills as much of buf as the file holds past offset and returns the
// count. Reading at or past the end returns zero.
func (s *PosixService) Read(ctx context.Context, fh uint64, buf []byte, offset uint64) (int, error) {
	f, err := s.handles.File(fh)
	if err != nil {
		return 0, err
	}
	length, err := f.Length(ctx)
	if err != nil {
		return 0, err
	}
	if offset >= length {
		return 0, nil
	}
	n := min(uint64(len(buf)), length-offset)
	if err := f.Read(ctx, buf[:n], offset); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PosixService) Write(ctx context.Context, fh uint64, data []byte, offset uint64) (int, error) {
	f, err := s.handles.File(fh)
	if err != nil {
		return 0, err
	}
	if err := f.Write(ctx, data, offset); err != nil {
		s.ls.Debug(log_service.LogEvent{
			Message:  "Write failed",
			Metadata: map[string]any{"fh": fh, "offset": offset, "size": len(data), "error": err.Error()},
		})
		return 0, err
	}
	return len(data), nil
}

func (s *PosixService) Truncate(ctx context.Context, path string, size uint64) error {
	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	if name == "" {
		return fmt.Errorf("%w: %q", ds.ErrIsADirectory, path)
	}
	f, err := s.dirs.OpenFile(ctx, parent, name)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(ctx, size)
}

func (s *PosixService) TruncateHandle(ctx context.Context, fh uint64, size uint64) error {
	f, err := s.handles.File(fh)
	if err != nil {
		return err
	}
	return f.Truncate(ctx, size)
}

func (s *PosixService) Release(fh uint64) error {
	if _, err := s.handles.File(fh); err != nil {
		return err
	}
	return s.handles.Release(fh)
}

func (s *PosixService) Unlink(ctx context.Context, path string) error {
	s.ls.Debug(log_service.LogEvent{Message: "Unlink Request", Metadata: map[string]any{"path": path}})

	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	if name == "" {
		return fmt.Errorf("%w: %q", ds.ErrIsADirectory, path)
	}
	return s.dirs.RemoveFile(ctx, parent, name)
}

// --- Directories ---

func (s *PosixService) Mkdir(ctx context.Context, path string) error {
	s.ls.Debug(log_service.LogEvent{Message: "Mkdir Request", Metadata: map[string]any{"path": path}})

	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	if name == "" {
		return fmt.Errorf("%w: %q", file_service.ErrAlreadyExists, path)
	}
	d, err := s.dirs.Mkdir(ctx, parent, name)
	if err != nil {
		return err
	}
	return d.Close()
}

func (s *PosixService) OpenDir(ctx context.Context, path string) (uint64, error) {
	d, err := s.paths.ResolveDir(ctx, path)
	if err != nil {
		return 0, err
	}
	return s.share(d)
}

func (s *PosixService) ReadDir(ctx context.Context, fh uint64) ([]DirEntry, error) {
	d, err := s.handles.Directory(fh)
	if err != nil {
		return nil, err
	}
	t, err := s.dirs.List(ctx, d)
	if err != nil {
		return nil, err
	}
	visible := t.Visible()
	out := make([]DirEntry, 0, len(visible))
	for _, e := range visible {
		out = append(out, DirEntry{Name: e.Name, IsDir: e.IsDir, Target: e.Target})
	}
	return out, nil
}

func (s *PosixService) ReleaseDir(fh uint64) error {
	if _, err := s.handles.Directory(fh); err != nil {
		return err
	}
	return s.handles.Release(fh)
}

func (s *PosixService) Rmdir(ctx context.Context, path string) error {
	s.ls.Debug(log_service.LogEvent{Message: "Rmdir Request", Metadata: map[string]any{"path": path}})

	parent, name, err := s.paths.ResolveParent(ctx, path)
	if err != nil {
		return err
	}
	defer parent.Close()
	if name == "" {
		return fmt.Errorf("%w: cannot remove the root", file_service.ErrInvalidArgument)
	}
	return s.dirs.Rmdir(ctx, parent, name)
}

// Rename moves a file or directory. A directory cannot be moved below itself.
func (s *PosixService) Rename(ctx context.Context, from, to string) error {
	s.ls.Debug(log_service.LogEvent{Message: "Rename Request", Metadata: map[string]any{"from": from, "to": to}})

	fromParts, err := path_resolver.SplitPath(from)
	if err != nil {
		return err
	}
	toParts, err := path_resolver.SplitPath(to)
	if err != nil {
		return err
	}
	if len(fromParts) == 0 || len(toParts) == 0 {
		return fmt.Errorf("%w: cannot rename the root", file_service.ErrInvalidArgument)
	}
	fromClean := "/" + strings.Join(fromParts, "/")
	toClean := "/" + strings.Join(toParts, "/")
	if strings.HasPrefix(toClean, fromClean+"/") {
		return fmt.Errorf("%w: %q is inside %q", file_service.ErrInvalidArgument, to, from)
	}

	src, fromName, err := s.paths.ResolveParent(ctx, fromClean)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, toName, err := s.paths.ResolveParent(ctx, toClean)
	if err != nil {
		return err
	}
	defer dst.Close()

	return s.dirs.Rename(ctx, src, dst, fromName, toName)
}
