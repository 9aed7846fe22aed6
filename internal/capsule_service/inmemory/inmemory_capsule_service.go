package inmemory

import (
	"context"
	"fmt"
	"sync"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/name_service"
)

// AppendHook runs before every data append, under the capsule lock. A
// non-nil return aborts the append with that error and leaves the log
// untouched. Tests use it to simulate a crash between two appends.
type AppendHook func(name cs.Name, number uint64) error

type capsuleLog struct {
	mu      sync.RWMutex
	records []*cs.Record
}

func (l *capsuleLog) tip() *cs.Record {
	return l.records[len(l.records)-1]
}

type InMemoryCapsuleService struct {
	names name_service.NameService
	ls    log_service.LogService

	mu       sync.RWMutex
	capsules map[cs.Name]*capsuleLog
	hook     AppendHook
}

func NewInMemoryCapsuleService(names name_service.NameService, ls log_service.LogService) *InMemoryCapsuleService {
	return &InMemoryCapsuleService{
		names:    names,
		ls:       ls,
		capsules: make(map[cs.Name]*capsuleLog),
	}
}

func (s *InMemoryCapsuleService) SetAppendHook(hook AppendHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

func (s *InMemoryCapsuleService) appendHook() AppendHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hook
}

func (s *InMemoryCapsuleService) Create(ctx context.Context, humanName string) (cs.Capsule, error) {
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

	s.mu.Lock()
	s.capsules[name] = &capsuleLog{records: []*cs.Record{rec0}}
	log := s.capsules[name]
	s.mu.Unlock()

	if humanName != "" {
		if err := s.names.Bind(ctx, humanName, name); err != nil {
			s.mu.Lock()
			delete(s.capsules, name)
			s.mu.Unlock()
			return nil, err
		}
	}

	s.ls.Debug(log_service.LogEvent{
		Message:  "Created capsule",
		Metadata: map[string]any{"humanName": humanName, "capsule": name.String()},
	})
	return &capsule{svc: s, name: name, log: log}, nil
}

func (s *InMemoryCapsuleService) Open(ctx context.Context, name cs.Name) (cs.Capsule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	log, ok := s.capsules[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", cs.ErrCapsuleNotFound, name)
	}
	return &capsule{svc: s, name: name, log: log}, nil
}

func (s *InMemoryCapsuleService) Resolve(ctx context.Context, humanName string) (cs.Name, error) {
	return s.names.Resolve(ctx, humanName)
}

// RecordCount reports how many records a capsule holds, metadata included.
func (s *InMemoryCapsuleService) RecordCount(name cs.Name) int {
	s.mu.RLock()
	log, ok := s.capsules[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	log.mu.RLock()
	defer log.mu.RUnlock()
	return len(log.records)
}

type capsule struct {
	svc  *InMemoryCapsuleService
	name cs.Name
	log  *capsuleLog

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

	tip := c.log.tip()
	if tip.Hash != prev {
		return nil, fmt.Errorf("%w: capsule %s at record %d", cs.ErrStaleLinkage, c.name, tip.Number)
	}
	if hook := c.svc.appendHook(); hook != nil {
		if err := hook(c.name, tip.Number+1); err != nil {
			return nil, err
		}
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	rec := cs.NextRecord(tip, data)
	c.log.records = append(c.log.records, rec)
	return copyRecord(rec), nil
}

func (c *capsule) Read(ctx context.Context, n uint64) (*cs.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.log.mu.RLock()
	defer c.log.mu.RUnlock()

	if n >= uint64(len(c.log.records)) {
		return nil, fmt.Errorf("%w: capsule %s record %d", cs.ErrRecordNotFound, c.name, n)
	}
	return copyRecord(c.log.records[n]), nil
}

func (c *capsule) ReadLatest(ctx context.Context) (*cs.Record, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.log.mu.RLock()
	defer c.log.mu.RUnlock()
	return copyRecord(c.log.tip()), nil
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

// Callers may scribble on payloads they get back.
func copyRecord(r *cs.Record) *cs.Record {
	out := *r
	out.Payload = make([]byte, len(r.Payload))
	copy(out.Payload, r.Payload)
	return &out
}

var _ cs.CapsuleService = (*InMemoryCapsuleService)(nil)
