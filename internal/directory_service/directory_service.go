package directory_service

import (
	"context"
	"errors"
	"fmt"
	"time"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/internal/log_service"
)

// DefaultNamePrefix namespaces the human names this file system binds.
const DefaultNamePrefix = "capfs.1."

type Options struct {
	NamePrefix    string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// HumanName is the human name under which path is bound.
func HumanName(prefix, path string) string {
	return prefix + path
}

// Directory is an open directory stream. It owns its file.
type Directory struct {
	file *file_service.File
}

func (d *Directory) Name() cs.Name {
	return d.file.Name()
}

func (d *Directory) File() *file_service.File {
	return d.file
}

func (d *Directory) Close() error {
	return d.file.Close()
}

// DirectoryService keeps directory tables in the first block of directory
// streams. It holds no tree state; every call reads the table it needs.
type DirectoryService struct {
	files *file_service.FileService
	ls    log_service.LogService
	root  string
	retry retryPolicy
}

func NewDirectoryService(files *file_service.FileService, opts Options, ls log_service.LogService) *DirectoryService {
	if opts.NamePrefix == "" {
		opts.NamePrefix = DefaultNamePrefix
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = DefaultRetryAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	return &DirectoryService{
		files: files,
		ls:    ls,
		root:  HumanName(opts.NamePrefix, "/"),
		retry: retryPolicy{attempts: opts.RetryAttempts, backoff: opts.RetryBackoff},
	}
}

// RootName is the human name the root directory is bound to.
func (s *DirectoryService) RootName() string {
	return s.root
}

func (s *DirectoryService) OpenRoot(ctx context.Context) (*Directory, error) {
	f, err := s.files.OpenNamed(ctx, s.root)
	if err != nil {
		return nil, fmt.Errorf("open root: %w", err)
	}
	isDir, err := f.IsDir(ctx)
	if err == nil && !isDir {
		err = fmt.Errorf("%w: root %s", ErrNotADirectory, f.Name())
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Directory{file: f}, nil
}

// MakeRoot creates and binds an empty root directory.
func (s *DirectoryService) MakeRoot(ctx context.Context) error {
	root, err := s.OpenRoot(ctx)
	if err == nil {
		root.Close()
		return fmt.Errorf("%w: root %q", file_service.ErrAlreadyExists, s.root)
	}
	if !errors.Is(err, file_service.ErrNotFound) {
		return err
	}

	f, err := s.files.Create(ctx, s.root, true)
	if err != nil {
		return fmt.Errorf("create root: %w", err)
	}
	defer f.Close()
	if err := f.Write(ctx, (&Table{}).Encode(), 0); err != nil {
		return fmt.Errorf("write root table: %w", err)
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Created root directory",
		Metadata: map[string]any{"humanName": s.root, "capsule": f.Name().String()},
	})
	return nil
}

func (s *DirectoryService) readTable(ctx context.Context, d *Directory) (*Table, file_service.Version, error) {
	raw := make([]byte, inode.BlockSize)
	v, err := d.file.ReadVersion(ctx, raw, 0)
	if errors.Is(err, file_service.ErrEndOfFile) {
		return nil, file_service.Version{}, fmt.Errorf("%w: directory %s shorter than one block", file_service.ErrCorrupt, d.Name())
	}
	if err != nil {
		return nil, file_service.Version{}, err
	}
	t, err := DecodeTable(raw)
	if err != nil {
		return nil, file_service.Version{}, fmt.Errorf("directory %s: %w", d.Name(), err)
	}
	return t, v, nil
}

func (s *DirectoryService) List(ctx context.Context, d *Directory) (*Table, error) {
	t, _, err := s.readTable(ctx, d)
	return t, err
}

// HasChild reports whether name is present with the given kind. A name
// present with the other kind counts as absent.
func (s *DirectoryService) HasChild(ctx context.Context, d *Directory, name string, isDir bool) (bool, error) {
	t, err := s.List(ctx, d)
	if err != nil {
		return false, err
	}
	i, ok := t.Find(name)
	return ok && t.Entries[i].IsDir == isDir, nil
}

func (s *DirectoryService) Lookup(ctx context.Context, d *Directory, name string) (Entry, error) {
	t, err := s.List(ctx, d)
	if err != nil {
		return Entry{}, err
	}
	i, ok := t.Find(name)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", file_service.ErrNotFound, name)
	}
	return t.Entries[i], nil
}

// mutate applies fn to a fresh copy of d's table and writes the result back
// conditioned on the version it read. A lost race re-reads and reapplies.
func (s *DirectoryService) mutate(ctx context.Context, d *Directory, op string, fn func(*Table) error) error {
	onRetry := func(attempt int, err error) {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Directory changed underneath mutation, retrying",
			Metadata: map[string]any{"op": op, "directory": d.Name().String(), "attempt": attempt, "error": err.Error()},
		})
	}
	return s.retry.do(ctx, onRetry, func() error {
		t, v, err := s.readTable(ctx, d)
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		_, err = d.file.WriteVersion(ctx, t.Encode(), 0, v)
		return err
	})
}

// createChild creates an unnamed stream. Directories start with an empty table.
func (s *DirectoryService) createChild(ctx context.Context, isDir bool) (*file_service.File, error) {
	f, err := s.files.Create(ctx, "", isDir)
	if err != nil {
		return nil, err
	}
	if isDir {
		if err := f.Write(ctx, (&Table{}).Encode(), 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("write empty table: %w", err)
		}
	}
	return f, nil
}

// make creates the child before the parent entry referencing it is written.
// A failure in between leaves an unreferenced capsule behind.
func (s *DirectoryService) make(ctx context.Context, d *Directory, name string, isDir bool) (*file_service.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var child *file_service.File
	err := s.mutate(ctx, d, "make", func(t *Table) error {
		if t.Full() {
			return fmt.Errorf("%w: %s", ErrDirectoryFull, d.Name())
		}
		if _, ok := t.Find(name); ok {
			return fmt.Errorf("%w: %q", file_service.ErrAlreadyExists, name)
		}
		if child == nil {
			var err error
			if child, err = s.createChild(ctx, isDir); err != nil {
				return err
			}
		}
		return t.Insert(Entry{IsDir: isDir, Name: name, Target: child.Name()})
	})
	if err != nil {
		if child != nil {
			child.Close()
		}
		return nil, err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Linked child",
		Metadata: map[string]any{"directory": d.Name().String(), "name": name, "isDir": isDir, "capsule": child.Name().String()},
	})
	return child, nil
}

func (s *DirectoryService) MakeFile(ctx context.Context, d *Directory, name string) (*file_service.File, error) {
	return s.make(ctx, d, name, false)
}

func (s *DirectoryService) Mkdir(ctx context.Context, d *Directory, name string) (*Directory, error) {
	f, err := s.make(ctx, d, name, true)
	if err != nil {
		return nil, err
	}
	return &Directory{file: f}, nil
}

func kindMismatch(name string, isDir bool) error {
	if isDir {
		return fmt.Errorf("%w: %q", ErrIsADirectory, name)
	}
	return fmt.Errorf("%w: %q", ErrNotADirectory, name)
}

func (s *DirectoryService) open(ctx context.Context, d *Directory, name string, isDir bool) (*file_service.File, error) {
	e, err := s.Lookup(ctx, d, name)
	if err != nil {
		return nil, err
	}
	if e.IsDir != isDir {
		return nil, kindMismatch(name, e.IsDir)
	}
	return s.files.Open(ctx, e.Target)
}

func (s *DirectoryService) OpenFile(ctx context.Context, d *Directory, name string) (*file_service.File, error) {
	return s.open(ctx, d, name, false)
}

func (s *DirectoryService) OpenDir(ctx context.Context, d *Directory, name string) (*Directory, error) {
	f, err := s.open(ctx, d, name, true)
	if err != nil {
		return nil, err
	}
	return &Directory{file: f}, nil
}

// OpenTarget opens an entry's stream by identity.
func (s *DirectoryService) OpenTarget(ctx context.Context, e Entry) (*file_service.File, error) {
	return s.files.Open(ctx, e.Target)
}

func (s *DirectoryService) isEmpty(ctx context.Context, target cs.Name) (bool, error) {
	f, err := s.files.Open(ctx, target)
	if err != nil {
		return false, err
	}
	dir := &Directory{file: f}
	defer dir.Close()
	t, err := s.List(ctx, dir)
	if err != nil {
		return false, err
	}
	return t.Length == 0, nil
}

// remove drops the entry only. The child's capsule is left as it is.
func (s *DirectoryService) remove(ctx context.Context, d *Directory, name string, isDir bool) error {
	op := "unlink"
	if isDir {
		op = "rmdir"
	}
	err := s.mutate(ctx, d, op, func(t *Table) error {
		i, ok := t.Find(name)
		if !ok {
			return fmt.Errorf("%w: %q", file_service.ErrNotFound, name)
		}
		if t.Entries[i].IsDir != isDir {
			return kindMismatch(name, t.Entries[i].IsDir)
		}
		if isDir {
			empty, err := s.isEmpty(ctx, t.Entries[i].Target)
			if err != nil {
				return err
			}
			if !empty {
				return fmt.Errorf("%w: %q", ErrDirectoryNotEmpty, name)
			}
		}
		t.RemoveAt(i)
		return nil
	})
	if err != nil {
		return err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Unlinked child",
		Metadata: map[string]any{"directory": d.Name().String(), "name": name, "isDir": isDir},
	})
	return nil
}

func (s *DirectoryService) RemoveFile(ctx context.Context, d *Directory, name string) error {
	return s.remove(ctx, d, name, false)
}

func (s *DirectoryService) Rmdir(ctx context.Context, d *Directory, name string) error {
	return s.remove(ctx, d, name, true)
}

// Rename moves fromName in from to toName in to. Across directories the
// destination entry is written before the source entry is removed, so a
// failure between the two leaves the child visible under both names.
func (s *DirectoryService) Rename(ctx context.Context, from, to *Directory, fromName, toName string) error {
	if err := ValidateName(toName); err != nil {
		return err
	}

	if from.Name() == to.Name() {
		return s.mutate(ctx, from, "rename", func(t *Table) error {
			i, ok := t.Find(fromName)
			if !ok {
				return fmt.Errorf("%w: %q", file_service.ErrNotFound, fromName)
			}
			if fromName == toName {
				return nil
			}
			if _, ok := t.Find(toName); ok {
				return fmt.Errorf("%w: %q", file_service.ErrAlreadyExists, toName)
			}
			t.Entries[i].Name = toName
			return nil
		})
	}

	// 1. Locate the source entry
	src, err := s.Lookup(ctx, from, fromName)
	if err != nil {
		return err
	}

	// 2. Link it into the destination
	err = s.mutate(ctx, to, "rename", func(t *Table) error {
		if _, ok := t.Find(toName); ok {
			return fmt.Errorf("%w: %q", file_service.ErrAlreadyExists, toName)
		}
		if t.Full() {
			return fmt.Errorf("%w: %s", ErrDirectoryFull, to.Name())
		}
		return t.Insert(Entry{IsDir: src.IsDir, Name: toName, Target: src.Target})
	})
	if err != nil {
		return err
	}

	// 3. Drop it from the source
	err = s.mutate(ctx, from, "rename", func(t *Table) error {
		i, ok := t.Find(fromName)
		if !ok || t.Entries[i].Target != src.Target {
			return fmt.Errorf("%w: %q changed during rename", file_service.ErrNotFound, fromName)
		}
		t.RemoveAt(i)
		return nil
	})
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Rename linked destination but could not unlink source",
			Metadata: map[string]any{"from": fromName, "to": toName, "capsule": src.Target.String(), "error": err.Error()},
		})
		return err
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Renamed child",
		Metadata: map[string]any{"from": fromName, "to": toName, "capsule": src.Target.String()},
	})
	return nil
}
