package file_service

import (
	"context"
	"errors"
	"fmt"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/internal/log_service"
)

// FileService opens and creates byte streams stored in capsules.
type FileService struct {
	capsules cs.CapsuleService
	ls       log_service.LogService
}

func NewFileService(capsules cs.CapsuleService, ls log_service.LogService) *FileService {
	return &FileService{capsules: capsules, ls: ls}
}

// Create allocates a new capsule and appends the first data-bearing record:
// an empty stream at record number 1. humanName may be empty, in which case
// the stream is reachable only by identity.
func (s *FileService) Create(ctx context.Context, humanName string, isDir bool) (*File, error) {
	c, err := s.capsules.Create(ctx, humanName)
	if err != nil {
		return nil, fmt.Errorf("create capsule: %w", translate(err))
	}

	rec0, err := c.ReadLatest(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("read metadata record: %w", translate(err))
	}

	payload, err := inode.EncodeRecord(&inode.Record{Inode: inode.New(isDir)})
	if err != nil {
		c.Close()
		return nil, err
	}
	if _, err := c.Append(ctx, payload, rec0.Hash); err != nil {
		c.Close()
		return nil, fmt.Errorf("append initial record: %w", translate(err))
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Created file",
		Metadata: map[string]any{"capsule": c.Name().String(), "humanName": humanName, "isDir": isDir},
	})
	return &File{capsule: c, ls: s.ls}, nil
}

func (s *FileService) Open(ctx context.Context, name cs.Name) (*File, error) {
	c, err := s.capsules.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, translate(err))
	}
	return &File{capsule: c, ls: s.ls}, nil
}

func (s *FileService) OpenNamed(ctx context.Context, humanName string) (*File, error) {
	name, err := s.capsules.Resolve(ctx, humanName)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", humanName, translate(err))
	}
	return s.Open(ctx, name)
}

// translate maps backend sentinels onto this package's taxonomy while keeping
// the backend error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cs.ErrStaleLinkage):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	case errors.Is(err, cs.ErrCapsuleNotFound), errors.Is(err, cs.ErrNameNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, cs.ErrNameTaken):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, cs.ErrCorruptRecord), errors.Is(err, cs.ErrRecordNotFound), errors.Is(err, inode.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, cs.ErrCapsuleClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, cs.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	default:
		return err
	}
}
