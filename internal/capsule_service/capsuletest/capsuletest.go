// Package capsuletest holds behaviour checks shared by every
// capsule_service backend.
package capsuletest

import (
	"context"
	"errors"
	"testing"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
)

// Run exercises a backend returned by newService. Each subtest gets a fresh
// service.
func Run(t *testing.T, newService func(t *testing.T) cs.CapsuleService) {
	t.Run("CreateWritesMetadataRecord", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		c, err := svc.Create(ctx, "capfs/a")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer c.Close()

		rec, err := c.ReadLatest(ctx)
		if err != nil {
			t.Fatalf("ReadLatest() error = %v", err)
		}
		if rec.Number != 0 {
			t.Errorf("ReadLatest().Number = %d, want 0", rec.Number)
		}
		md, err := cs.DecodeMetadata(rec.Payload)
		if err != nil {
			t.Fatalf("DecodeMetadata() error = %v", err)
		}
		if md.HumanName != "capfs/a" {
			t.Errorf("HumanName = %q, want %q", md.HumanName, "capfs/a")
		}
		if got := cs.NameFromMetadata(rec.Payload); got != c.Name() {
			t.Errorf("Name() = %s, metadata derives %s", c.Name(), got)
		}
	})

	t.Run("ResolveAndNameTaken", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		c, err := svc.Create(ctx, "capfs/b")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer c.Close()

		got, err := svc.Resolve(ctx, "capfs/b")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got != c.Name() {
			t.Errorf("Resolve() = %s, want %s", got, c.Name())
		}
		if _, err := svc.Resolve(ctx, "capfs/missing"); !errors.Is(err, cs.ErrNameNotFound) {
			t.Errorf("Resolve() error = %v, want ErrNameNotFound", err)
		}
		if _, err := svc.Create(ctx, "capfs/b"); !errors.Is(err, cs.ErrNameTaken) {
			t.Errorf("Create() duplicate error = %v, want ErrNameTaken", err)
		}
	})

	t.Run("AppendChainsAndReads", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		c, err := svc.Create(ctx, "capfs/c")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer c.Close()

		tip, err := c.ReadLatest(ctx)
		if err != nil {
			t.Fatalf("ReadLatest() error = %v", err)
		}
		payloads := [][]byte{[]byte("one"), make([]byte, 48<<10), []byte("three")}
		for i, p := range payloads {
			rec, err := c.Append(ctx, p, tip.Hash)
			if err != nil {
				t.Fatalf("Append(%d) error = %v", i, err)
			}
			if rec.Number != uint64(i+1) {
				t.Errorf("Append(%d).Number = %d, want %d", i, rec.Number, i+1)
			}
			if rec.Prev != tip.Hash {
				t.Errorf("Append(%d).Prev = %s, want %s", i, rec.Prev, tip.Hash)
			}
			tip = rec
		}

		for i, want := range payloads {
			rec, err := c.Read(ctx, uint64(i+1))
			if err != nil {
				t.Fatalf("Read(%d) error = %v", i+1, err)
			}
			if string(rec.Payload) != string(want) {
				t.Errorf("Read(%d) payload length %d, want %d", i+1, len(rec.Payload), len(want))
			}
			if err := rec.Verify(); err != nil {
				t.Errorf("Read(%d).Verify() error = %v", i+1, err)
			}
		}
		latest, err := c.ReadLatest(ctx)
		if err != nil {
			t.Fatalf("ReadLatest() error = %v", err)
		}
		if latest.Number != 3 || latest.Hash != tip.Hash {
			t.Errorf("ReadLatest() = {%d %s}, want {3 %s}", latest.Number, latest.Hash, tip.Hash)
		}
		if _, err := c.Read(ctx, 4); !errors.Is(err, cs.ErrRecordNotFound) {
			t.Errorf("Read(4) error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("StaleLinkageRejected", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		c, err := svc.Create(ctx, "capfs/d")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer c.Close()
		other, err := svc.Open(ctx, c.Name())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer other.Close()

		rec0, err := c.ReadLatest(ctx)
		if err != nil {
			t.Fatalf("ReadLatest() error = %v", err)
		}
		if _, err := other.Append(ctx, []byte("winner"), rec0.Hash); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if _, err := c.Append(ctx, []byte("loser"), rec0.Hash); !errors.Is(err, cs.ErrStaleLinkage) {
			t.Fatalf("Append() stale error = %v, want ErrStaleLinkage", err)
		}
		latest, err := c.ReadLatest(ctx)
		if err != nil {
			t.Fatalf("ReadLatest() error = %v", err)
		}
		if string(latest.Payload) != "winner" {
			t.Errorf("ReadLatest() payload = %q, want %q", latest.Payload, "winner")
		}
	})

	t.Run("AnonymousCapsules", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		a, err := svc.Create(ctx, "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		defer a.Close()
		b, err := svc.Create(ctx, "")
		if err != nil {
			t.Fatalf("Create() second anonymous error = %v", err)
		}
		defer b.Close()
		if a.Name() == b.Name() {
			t.Errorf("anonymous capsules share identity %s", a.Name())
		}
		if _, err := svc.Open(ctx, a.Name()); err != nil {
			t.Errorf("Open() error = %v", err)
		}
	})

	t.Run("OpenUnknown", func(t *testing.T) {
		svc := newService(t)
		if _, err := svc.Open(context.Background(), cs.Name{0xff}); !errors.Is(err, cs.ErrCapsuleNotFound) {
			t.Errorf("Open() error = %v, want ErrCapsuleNotFound", err)
		}
	})

	t.Run("CloseTwice", func(t *testing.T) {
		ctx := context.Background()
		svc := newService(t)

		c, err := svc.Create(ctx, "capfs/e")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := c.Close(); !errors.Is(err, cs.ErrCapsuleClosed) {
			t.Errorf("Close() second error = %v, want ErrCapsuleClosed", err)
		}
		if _, err := c.ReadLatest(ctx); !errors.Is(err, cs.ErrCapsuleClosed) {
			t.Errorf("ReadLatest() after Close error = %v, want ErrCapsuleClosed", err)
		}
	})
}
