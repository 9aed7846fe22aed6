package capsule_service

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AnishMulay/capfs/internal/codec"
	"github.com/google/uuid"
)

// Name is the 32-byte identity of a capsule, derived from its metadata record.
type Name [32]byte

func (n Name) String() string {
	return hex.EncodeToString(n[:])
}

func (n Name) IsZero() bool {
	return n == Name{}
}

func ParseName(s string) (Name, error) {
	var n Name
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(n) {
		return n, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}
	copy(n[:], raw)
	return n, nil
}

type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

type Record struct {
	Number  uint64 `cbor:"number"`
	Prev    Hash   `cbor:"prev"`
	Hash    Hash   `cbor:"hash"`
	Payload []byte `cbor:"payload"`
}

// Verify recomputes the chain hash over the record contents.
func (r *Record) Verify() error {
	if ChainHash(r.Prev, r.Number, r.Payload) != r.Hash {
		return fmt.Errorf("%w: record %d", ErrCorruptRecord, r.Number)
	}
	return nil
}

// Metadata is the payload of record 0.
type Metadata struct {
	HumanName string `cbor:"human_name"`
	CreatedAt int64  `cbor:"created_at"`
	Nonce     string `cbor:"nonce"`
}

func DecodeMetadata(payload []byte) (Metadata, error) {
	var md Metadata
	if err := codec.Unmarshal(payload, &md); err != nil {
		return md, fmt.Errorf("%w: metadata: %v", ErrCorruptRecord, err)
	}
	return md, nil
}

// NewMetadataRecord builds record 0 for a new capsule and the identity that
// follows from it. The nonce makes two capsules with the same human name
// distinct.
func NewMetadataRecord(humanName string) (Name, *Record, error) {
	md := Metadata{
		HumanName: humanName,
		CreatedAt: time.Now().UnixNano(),
		Nonce:     uuid.NewString(),
	}
	payload, err := codec.Marshal(md)
	if err != nil {
		return Name{}, nil, err
	}
	rec := &Record{
		Number:  0,
		Payload: payload,
		Hash:    ChainHash(Hash{}, 0, payload),
	}
	return NameFromMetadata(payload), rec, nil
}

// NextRecord links payload after tip.
func NextRecord(tip *Record, payload []byte) *Record {
	n := tip.Number + 1
	return &Record{
		Number:  n,
		Prev:    tip.Hash,
		Hash:    ChainHash(tip.Hash, n, payload),
		Payload: payload,
	}
}
