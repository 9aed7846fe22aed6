package name_service

import (
	"context"

	cs "github.com/AnishMulay/capfs/internal/capsule_service"
)

// NameService binds human-readable names to capsule identities. Bindings are
// write-once: Bind on a bound name returns capsule_service.ErrNameTaken and
// Resolve on an unbound name returns capsule_service.ErrNameNotFound.
type NameService interface {
	Bind(ctx context.Context, humanName string, name cs.Name) error
	Resolve(ctx context.Context, humanName string) (cs.Name, error)
}
