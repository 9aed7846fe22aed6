package localdisc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/codec"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/name_service"
)

const recordSuffix = ".rec"

// envelope is the on-disk form of one record.
type envelope struct {
	Number      uint64         `cbor:"number"`
	Prev        cs.Hash        `cbor:"prev"`
	Hash        cs.Hash        `cbor:"hash"`
	Compression CompressionTag `cbor:"compression"`
	Size        int            `cbor:"size"`
	Data        []byte         `cbor:"data"`
}

// LocalDiscCapsuleService stores each capsule as a directory of record files
// named by zero-padded record number. A record file is published with a hard
// link, which fails if the number is already taken, so appends stay
// conditional across processes sharing baseDir.
type LocalDiscCapsuleService struct {
	baseDir     string
	names       name_service.NameService
	ls          log_service.LogService
	compression CompressionTag

	mu   sync.Mutex
	logs map[cs.Name]*diskLog
}

func NewLocalDiscCapsuleService(baseDir string, compression CompressionTag, names name_service.NameService, ls log_service.LogService) (*LocalDiscCapsuleService, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create capsule directory: %v", cs.ErrUnavailable, err)
	}
	return &LocalDiscCapsuleService{
		baseDir:     baseDir,
		names:       names,
		ls:          ls,
		compression: compression,
		logs:        make(map[cs.Name]*diskLog),
	}, nil
}

func (s *LocalDiscCapsuleService) capsuleDir(name cs.Name) string {
	hex := name.String()
	return filepath.Join(s.baseDir, hex[:2], hex)
}

func (s *LocalDiscCapsuleService) diskLog(name cs.Name) *diskLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[name]
	if !ok {
		l = &diskLog{svc: s, dir: s.capsuleDir(name)}
		s.logs[name] = l
	}
	return l
}

func (s *LocalDiscCapsuleService) Create(ctx context.Context, humanName string) (cs.Capsule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if humanName != "" {
		if _, err := s.names.Resolve(ctx, humanName); err == nil {
			return nil, fmt.Errorf("%w: %q", cs.ErrNameTaken, humanName)
		}
	}

	name, rec0, err := cs.NewMetadataRecord(humanName)
	if err != nil {
		return nil, err
	}

	l := s.diskLog(name)
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create capsule: %v", cs.ErrUnavailable, err)
	}
	l.mu.Lock()
	err = l.publish(rec0)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if humanName != "" {
		if err := s.names.Bind(ctx, humanName, name); err != nil {
			return nil, err
		}
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Created capsule",
		Metadata: map[string]any{"humanName": humanName, "capsule": name.String()},
	})
	return &capsule{name: name, log: l}, nil
}

func (s *LocalDiscCapsuleService) Open(ctx context.Context, name cs.Name) (cs.Capsule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := s.diskLog(name)
	if _, err := os.Stat(l.recordPath(0)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", cs.ErrCapsuleNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	return &capsule{name: name, log: l}, nil
}

func (s *LocalDiscCapsuleService) Resolve(ctx context.Context, humanName string) (cs.Name, error) {
	return s.names.Resolve(ctx, humanName)
}

type diskLog struct {
	svc *LocalDiscCapsuleService
	dir string

	mu  sync.Mutex
	tip *cs.Record
}

func (l *diskLog) recordPath(n uint64) string {
	return filepath.Join(l.dir, fmt.Sprintf("%016d%s", n, recordSuffix))
}

// refresh brings the cached tip up to date with what is on disk. Callers
// hold l.mu.
func (l *diskLog) refresh() error {
	n := uint64(0)
	if l.tip != nil {
		n = l.tip.Number
	} else {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return fmt.Errorf("%w: list records: %v", cs.ErrUnavailable, err)
		}
		for _, e := range entries {
			base, ok := strings.CutSuffix(e.Name(), recordSuffix)
			if !ok {
				continue
			}
			if v, err := strconv.ParseUint(base, 10, 64); err == nil && v > n {
				n = v
			}
		}
	}
	for {
		if _, err := os.Stat(l.recordPath(n + 1)); err != nil {
			break
		}
		n++
	}
	if l.tip != nil && l.tip.Number == n {
		return nil
	}
	rec, err := l.read(n)
	if err != nil {
		return err
	}
	l.tip = rec
	return nil
}

func (l *diskLog) read(n uint64) (*cs.Record, error) {
	data, err := os.ReadFile(l.recordPath(n))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: record %d", cs.ErrRecordNotFound, n)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read record %d: %v", cs.ErrUnavailable, n, err)
	}

	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: record %d envelope: %v", cs.ErrCorruptRecord, n, err)
	}
	payload, err := decompress(env.Data, env.Compression, env.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", cs.ErrCorruptRecord, n, err)
	}
	rec := &cs.Record{Number: env.Number, Prev: env.Prev, Hash: env.Hash, Payload: payload}
	if rec.Number != n {
		return nil, fmt.Errorf("%w: file for record %d holds record %d", cs.ErrCorruptRecord, n, rec.Number)
	}
	if err := rec.Verify(); err != nil {
		return nil, err
	}
	return rec, nil
}

// publish writes rec under its number. Returns ErrStaleLinkage when some
// other writer got there first. Callers hold l.mu.
func (l *diskLog) publish(rec *cs.Record) error {
	stored, tag, err := compress(rec.Payload, l.svc.compression)
	if err != nil {
		return err
	}
	data, err := codec.Marshal(envelope{
		Number:      rec.Number,
		Prev:        rec.Prev,
		Hash:        rec.Hash,
		Compression: tag,
		Size:        len(rec.Payload),
		Data:        stored,
	})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.dir, "pending-*")
	if err != nil {
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}

	if err := os.Link(tmp.Name(), l.recordPath(rec.Number)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			l.tip = nil
			return fmt.Errorf("%w: record %d already written", cs.ErrStaleLinkage, rec.Number)
		}
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	l.tip = rec
	return nil
}

type capsule struct {
	name cs.Name
	log  *diskLog

	mu     sync.Mutex
	closed bool
}

func (c *capsule) Name() cs.Name {
	return c.name
}

func (c *capsule) check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cs.ErrCapsuleClosed
	}
	return ctx.Err()
}

func (c *capsule) Append(ctx context.Context, payload []byte, prev cs.Hash) (*cs.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	if err := c.log.refresh(); err != nil {
		return nil, err
	}
	if c.log.tip.Hash != prev {
		return nil, fmt.Errorf("%w: capsule %s at record %d", cs.ErrStaleLinkage, c.name, c.log.tip.Number)
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	rec := cs.NextRecord(c.log.tip, data)
	if err := c.log.publish(rec); err != nil {
		return nil, err
	}
	out := *rec
	out.Payload = append([]byte(nil), data...)
	return &out, nil
}

func (c *capsule) Read(ctx context.Context, n uint64) (*cs.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	return c.log.read(n)
}

func (c *capsule) ReadLatest(ctx context.Context) (*cs.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.log.mu.Lock()
	defer c.log.mu.Unlock()

	if err := c.log.refresh(); err != nil {
		return nil, err
	}
	out := *c.log.tip
	out.Payload = append([]byte(nil), c.log.tip.Payload...)
	return &out, nil
}

func (c *capsule) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cs.ErrCapsuleClosed
	}
	c.closed = true
	return nil
}

var _ cs.CapsuleService = (*LocalDiscCapsuleService)(nil)
