package inmemory

import (
	"context"
	"fmt"
	"sync"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
	"github.com/AnishMulay/capfs/internal/name_service"
)

type InMemoryNameService struct {
	mu       sync.RWMutex
	bindings map[string]cs.Name
}

func NewInMemoryNameService() *InMemoryNameService {
	return &InMemoryNameService{bindings: make(map[string]cs.Name)}
}

func (s *InMemoryNameService) Bind(_ context.Context, humanName string, name cs.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bindings[humanName]; ok {
		return fmt.Errorf("%w: %q", cs.ErrNameTaken, humanName)
	}
	s.bindings[humanName] = name
	return nil
}

func (s *InMemoryNameService) Resolve(_ context.Context, humanName string) (cs.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.bindings[humanName]
	if !ok {
		return cs.Name{}, fmt.Errorf("%w: %q", cs.ErrNameNotFound, humanName)
	}
	return name, nil
}

var _ name_service.NameService = (*InMemoryNameService)(nil)
