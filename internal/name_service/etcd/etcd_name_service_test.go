package etcd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/log_service"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func TestEtcdNameService_Key(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		humanName string
		want      string
	}{
		{"root", DefaultPrefix, "capfs/", "/capfs/names/capfs/"},
		{"leading slash trimmed", DefaultPrefix, "/capfs/a", "/capfs/names/capfs/a"},
		{"custom prefix", "/tenant/", "capfs/b", "/tenant/capfs/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &EtcdNameService{prefix: tt.prefix}
			if got := s.key(tt.humanName); got != tt.want {
				t.Errorf("key(%q) = %q, want %q", tt.humanName, got, tt.want)
			}
		})
	}
}

// newTestService connects to the etcd named by CAPFS_ETCD_ENDPOINTS and
// skips when none is reachable. Keys live under a per-test prefix that is
// deleted afterwards.
func newTestService(t *testing.T) (*EtcdNameService, *clientv3.Client) {
	t.Helper()
	env := os.Getenv("CAPFS_ETCD_ENDPOINTS")
	if env == "" {
		t.Skip("CAPFS_ETCD_ENDPOINTS not set")
	}
	endpoints := strings.Split(env, ",")
	cli, err := clientv3.New(clientv3.Config{Endpoints: endpoints, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Skipf("etcd client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Status(ctx, endpoints[0]); err != nil {
		cli.Close()
		t.Skipf("etcd at %s unreachable: %v", endpoints[0], err)
	}

	prefix := fmt.Sprintf("/capfs-test/%s/%d/", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = cli.Delete(ctx, prefix, clientv3.WithPrefix())
		cli.Close()
	})
	return NewEtcdNameServiceFromClient(cli, prefix, log_service.Nop{}), cli
}

func TestEtcdNameService_BindResolve(t *testing.T) {
	s, cli := newTestService(t)
	ctx := context.Background()

	if _, err := s.Resolve(ctx, "capfs.1./"); !errors.Is(err, cs.ErrNameNotFound) {
		t.Fatalf("Resolve() before Bind error = %v, want ErrNameNotFound", err)
	}

	want := cs.Name{0xca, 0xfe}
	if err := s.Bind(ctx, "capfs.1./", want); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := s.Bind(ctx, "capfs.1./", cs.Name{1}); !errors.Is(err, cs.ErrNameTaken) {
		t.Errorf("second Bind() error = %v, want ErrNameTaken", err)
	}

	// A second service on the same prefix sees the binding and cannot steal it.
	other := NewEtcdNameServiceFromClient(cli, s.prefix, log_service.Nop{})
	got, err := other.Resolve(ctx, "capfs.1./")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != want {
		t.Errorf("Resolve() = %s, want %s", got, want)
	}
	if err := other.Bind(ctx, "capfs.1./", cs.Name{2}); !errors.Is(err, cs.ErrNameTaken) {
		t.Errorf("Bind() through second service error = %v, want ErrNameTaken", err)
	}
}
