package inmemory

import (
	"context"
	"errors"
	"testing"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
)

func TestInMemoryNameService_BindResolve(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryNameService()
	a := cs.Name{1}
	b := cs.Name{2}

	if _, err := s.Resolve(ctx, "capfs/"); !errors.Is(err, cs.ErrNameNotFound) {
		t.Errorf("Resolve() error = %v, want ErrNameNotFound", err)
	}
	if err := s.Bind(ctx, "capfs/", a); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := s.Bind(ctx, "capfs/", b); !errors.Is(err, cs.ErrNameTaken) {
		t.Errorf("Bind() second error = %v, want ErrNameTaken", err)
	}
	got, err := s.Resolve(ctx, "capfs/")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != a {
		t.Errorf("Resolve() = %s, want %s", got, a)
	}
}
