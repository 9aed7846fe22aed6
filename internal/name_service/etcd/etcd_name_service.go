package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/log_service"
	"github.com/AnishMulay/capfs/internal/name_service"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	EtcdDialTimeout = 5 * time.Second
	DefaultPrefix   = "/capfs/names/"
)

// EtcdNameService stores bindings as <prefix><humanName> -> hex capsule name.
// Bind is a create-only transaction, so two mounts racing to create the same
// name cannot both win.
type EtcdNameService struct {
	client *clientv3.Client
	prefix string
	ls     log_service.LogService
}

func NewEtcdNameService(endpoints []string, prefix string, ls log_service.LogService) (*EtcdNameService, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: EtcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to etcd: %v", cs.ErrUnavailable, err)
	}
	return NewEtcdNameServiceFromClient(cli, prefix, ls), nil
}

func NewEtcdNameServiceFromClient(cli *clientv3.Client, prefix string, ls log_service.LogService) *EtcdNameService {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	ls.Info(log_service.LogEvent{
		Message:  "Using etcd name service",
		Metadata: map[string]any{"endpoints": cli.Endpoints(), "prefix": prefix},
	})
	return &EtcdNameService{client: cli, prefix: prefix, ls: ls}
}

func (s *EtcdNameService) key(humanName string) string {
	return s.prefix + strings.TrimPrefix(humanName, "/")
}

func (s *EtcdNameService) Bind(ctx context.Context, humanName string, name cs.Name) error {
	key := s.key(humanName)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, name.String())).
		Commit()
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "etcd bind failed",
			Metadata: map[string]any{"key": key, "error": err.Error()},
		})
		return fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if !resp.Succeeded {
		return fmt.Errorf("%w: %q", cs.ErrNameTaken, humanName)
	}
	return nil
}

func (s *EtcdNameService) Resolve(ctx context.Context, humanName string) (cs.Name, error) {
	key := s.key(humanName)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return cs.Name{}, fmt.Errorf("%w: %v", cs.ErrUnavailable, err)
	}
	if len(resp.Kvs) == 0 {
		return cs.Name{}, fmt.Errorf("%w: %q", cs.ErrNameNotFound, humanName)
	}
	return cs.ParseName(string(resp.Kvs[0].Value))
}

func (s *EtcdNameService) Close() error {
	return s.client.Close()
}

var _ name_service.NameService = (*EtcdNameService)(nil)
