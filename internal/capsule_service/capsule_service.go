package capsule_service

import "context"

// CapsuleService creates, opens and names capsules: append-only, hash-chained
// logs of immutable records.
type CapsuleService interface {
	// Create makes a new capsule, writes its metadata record (record 0) and
	// binds humanName to it. Returns ErrNameTaken if humanName is bound. An
	// empty humanName creates a capsule reachable only by its Name.
	Create(ctx context.Context, humanName string) (Capsule, error)

	// Open returns a handle to an existing capsule or ErrCapsuleNotFound.
	Open(ctx context.Context, name Name) (Capsule, error)

	// Resolve maps a human name to a capsule identity or ErrNameNotFound.
	Resolve(ctx context.Context, humanName string) (Name, error)
}

// Capsule is one open handle. Handles to the same capsule share the tip:
// an Append through one handle makes the prev hash cached by another stale.
type Capsule interface {
	Name() Name

	// Append adds payload as the next record. prev must be the hash of the
	// current last record; otherwise the append is rejected with
	// ErrStaleLinkage and nothing is written.
	Append(ctx context.Context, payload []byte, prev Hash) (*Record, error)

	// Read returns record number n or ErrRecordNotFound.
	Read(ctx context.Context, n uint64) (*Record, error)

	// ReadLatest returns the last record. A freshly created capsule returns
	// its metadata record.
	ReadLatest(ctx context.Context) (*Record, error)

	// Close releases the handle. A second Close returns ErrCapsuleClosed.
	Close() error
}
