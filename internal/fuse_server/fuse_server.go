package fuse_server

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/internal/log_service"
	ps "github.com/AnishMulay/capfs/internal/posix_service"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

type Options struct {
	Mountpoint string
	Service    *ps.PosixService
	AllowOther bool
	Debug      bool
	LogService log_service.LogService
}

// Mount serves svc at the mountpoint until the returned server is unmounted.
func Mount(opts Options) (*fuse.Server, error) {
	if opts.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("posix service is required")
	}
	if opts.LogService == nil {
		opts.LogService = log_service.Nop{}
	}
	if err := os.MkdirAll(opts.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", opts.Mountpoint, err)
	}

	// Every record is visible to the next reader, so the kernel may not
	// cache attributes or entries for long.
	entryTimeout := 100 * time.Millisecond
	attrTimeout := 100 * time.Millisecond

	root := &node{svc: opts.Service, ls: opts.LogService}
	server, err := gofuse.Mount(opts.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "capfs",
			Name:       "capfs",
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			MaxWrite:   inode.BlockSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting capfs at %s: %w", opts.Mountpoint, err)
	}

	opts.LogService.Info(log_service.LogEvent{
		Message:  "Mounted capfs",
		Metadata: map[string]any{"mountpoint": opts.Mountpoint},
	})
	return server, nil
}

// node is one file or directory, addressed by its path in the mounted tree.
type node struct {
	gofuse.Inode
	svc *ps.PosixService
	ls  log_service.LogService
}

var (
	_ gofuse.InodeEmbedder = (*node)(nil)
	_ gofuse.NodeGetattrer = (*node)(nil)
	_ gofuse.NodeSetattrer = (*node)(nil)
	_ gofuse.NodeAccesser  = (*node)(nil)
	_ gofuse.NodeLookuper  = (*node)(nil)
	_ gofuse.NodeOpendirer = (*node)(nil)
	_ gofuse.NodeReaddirer = (*node)(nil)
	_ gofuse.NodeMkdirer   = (*node)(nil)
	_ gofuse.NodeCreater   = (*node)(nil)
	_ gofuse.NodeOpener    = (*node)(nil)
	_ gofuse.NodeUnlinker  = (*node)(nil)
	_ gofuse.NodeRmdirer   = (*node)(nil)
	_ gofuse.NodeRenamer   = (*node)(nil)
)

func (n *node) path() string {
	return "/" + n.Path(nil)
}

func (n *node) child(name string) string {
	return path.Join(n.path(), name)
}

// errno logs anything that is not an ordinary lookup miss.
func (n *node) errno(op, p string, err error) syscall.Errno {
	e := ps.Errno(err)
	if e != syscall.ENOENT {
		n.ls.Debug(log_service.LogEvent{
			Message:  "FUSE operation failed",
			Metadata: map[string]any{"op": op, "path": p, "errno": e.Error(), "error": err.Error()},
		})
	}
	return e
}

// ino derives a stable inode number from the capsule identity.
func ino(target cs.Name) uint64 {
	return binary.LittleEndian.Uint64(target[:8]) | 1<<63
}

func fillAttr(attr ps.Attr, out *fuse.Attr) {
	out.Ino = ino(attr.Target)
	out.Size = attr.Length
	out.Blocks = (attr.Length + 511) / 512
	out.Blksize = inode.BlockSize
	out.Nlink = 1
	if attr.IsDir {
		out.Mode = syscall.S_IFDIR | dirMode
		out.Nlink = 2
	} else {
		out.Mode = syscall.S_IFREG | fileMode
	}
}

func stableAttr(attr ps.Attr) gofuse.StableAttr {
	mode := uint32(syscall.S_IFREG)
	if attr.IsDir {
		mode = syscall.S_IFDIR
	}
	return gofuse.StableAttr{Mode: mode, Ino: ino(attr.Target)}
}

func (n *node) newChild(ctx context.Context, attr ps.Attr, out *fuse.EntryOut) *gofuse.Inode {
	fillAttr(attr, &out.Attr)
	return n.NewInode(ctx, &node{svc: n.svc, ls: n.ls}, stableAttr(attr))
}

func (n *node) Getattr(ctx context.Context, _ gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.svc.Stat(ctx, n.path())
	if err != nil {
		return n.errno("getattr", n.path(), err)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

// Setattr only honors size changes. Mode, owner and times are accepted
// and ignored.
func (n *node) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		var err error
		if h, isOurs := fh.(*fileHandle); isOurs {
			err = n.svc.TruncateHandle(ctx, h.fh, size)
		} else {
			err = n.svc.Truncate(ctx, n.path(), size)
		}
		if err != nil {
			return n.errno("truncate", n.path(), err)
		}
	}
	return n.Getattr(ctx, fh, out)
}

func (n *node) Access(ctx context.Context, mask uint32) syscall.Errno {
	if err := n.svc.Access(ctx, n.path(), mask); err != nil {
		return n.errno("access", n.path(), err)
	}
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.child(name)
	attr, err := n.svc.Stat(ctx, p)
	if err != nil {
		return nil, n.errno("lookup", p, err)
	}
	return n.newChild(ctx, attr, out), 0
}

func (n *node) Opendir(ctx context.Context) syscall.Errno {
	fh, err := n.svc.OpenDir(ctx, n.path())
	if err != nil {
		return n.errno("opendir", n.path(), err)
	}
	if err := n.svc.ReleaseDir(fh); err != nil {
		return n.errno("releasedir", n.path(), err)
	}
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	fh, err := n.svc.OpenDir(ctx, n.path())
	if err != nil {
		return nil, n.errno("opendir", n.path(), err)
	}
	defer n.svc.ReleaseDir(fh)

	entries, err := n.svc.ReadDir(ctx, fh)
	if err != nil {
		return nil, n.errno("readdir", n.path(), err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.IsDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode, Ino: ino(e.Target)})
	}
	return gofuse.NewListDirStream(out), 0
}

func (n *node) Mkdir(ctx context.Context, name string, _ uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	p := n.child(name)
	if err := n.svc.Mkdir(ctx, p); err != nil {
		return nil, n.errno("mkdir", p, err)
	}
	attr, err := n.svc.Stat(ctx, p)
	if err != nil {
		return nil, n.errno("mkdir", p, err)
	}
	return n.newChild(ctx, attr, out), 0
}

func (n *node) Create(ctx context.Context, name string, _ uint32, _ uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	p := n.child(name)
	fh, err := n.svc.Create(ctx, p)
	if err != nil {
		return nil, nil, 0, n.errno("create", p, err)
	}
	attr, err := n.svc.Stat(ctx, p)
	if err != nil {
		n.svc.Release(fh)
		return nil, nil, 0, n.errno("create", p, err)
	}
	return n.newChild(ctx, attr, out), &fileHandle{svc: n.svc, fh: fh}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	fh, err := n.svc.Open(ctx, n.path())
	if err != nil {
		return nil, 0, n.errno("open", n.path(), err)
	}
	if flags&syscall.O_TRUNC != 0 {
		if err := n.svc.TruncateHandle(ctx, fh, 0); err != nil {
			n.svc.Release(fh)
			return nil, 0, n.errno("open", n.path(), err)
		}
	}
	return &fileHandle{svc: n.svc, fh: fh}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	if err := n.svc.Unlink(ctx, p); err != nil {
		return n.errno("unlink", p, err)
	}
	return 0
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	if err := n.svc.Rmdir(ctx, p); err != nil {
		return n.errno("rmdir", p, err)
	}
	return 0
}

// Rename supports plain moves. Exchange and whiteout flags are refused.
func (n *node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	const renameNoReplace = 1
	if flags&^renameNoReplace != 0 {
		return syscall.EINVAL
	}
	dst, ok := newParent.(*node)
	if !ok {
		return syscall.EXDEV
	}
	from, to := n.child(name), dst.child(newName)
	if err := n.svc.Rename(ctx, from, to); err != nil {
		return n.errno("rename", from, err)
	}
	return 0
}

// fileHandle is an open file in the posix handle table.
type fileHandle struct {
	svc *ps.PosixService
	fh  uint64
}

var (
	_ gofuse.FileReader   = (*fileHandle)(nil)
	_ gofuse.FileWriter   = (*fileHandle)(nil)
	_ gofuse.FileReleaser = (*fileHandle)(nil)
	_ gofuse.FileFlusher  = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}
	n, err := h.svc.Read(ctx, h.fh, dest, uint64(off))
	if err != nil {
		return nil, ps.Errno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if off < 0 {
		return 0, syscall.EINVAL
	}
	n, err := h.svc.Write(ctx, h.fh, data, uint64(off))
	if err != nil {
		return 0, ps.Errno(err)
	}
	return uint32(n), 0
}

// Flush has nothing to do: every write is already a durable append.
func (h *fileHandle) Flush(context.Context) syscall.Errno {
	return 0
}

func (h *fileHandle) Release(context.Context) syscall.Errno {
	return ps.Errno(h.svc.Release(h.fh))
}
