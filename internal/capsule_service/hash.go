package capsule_service

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

type domainKey [32]byte

// ASCII domain names, zero padded. Changing either invalidates every
// existing capsule.
var (
	recordDomainKey = domainKey{
		'c', 'a', 'p', 'f', 's', '.', 'c', 'a', 'p', 's', 'u', 'l', 'e', '.',
		'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	nameDomainKey = domainKey{
		'c', 'a', 'p', 'f', 's', '.', 'c', 'a', 'p', 's', 'u', 'l', 'e', '.',
		'n', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// ChainHash links a record to its predecessor: H(prev || number || payload).
func ChainHash(prev Hash, number uint64, payload []byte) Hash {
	h := newKeyed(recordDomainKey)
	h.Write(prev[:])
	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], number)
	h.Write(num[:])
	h.Write(payload)

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// NameFromMetadata derives a capsule identity from its record 0 payload.
func NameFromMetadata(payload []byte) Name {
	h := newKeyed(nameDomainKey)
	h.Write(payload)

	var out Name
	copy(out[:], h.Sum(nil))
	return out
}

func newKeyed(key domainKey) *blake3.Hasher {
	// NewKeyed only fails on a key that is not 32 bytes.
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("capsule_service: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return h
}
