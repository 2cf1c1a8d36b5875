package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// HashFunction computes the 32-bit hash the directory consults for a
// key. Deterministic and uniform is the caller's responsibility;
// DirIdx only ever looks at the low GlobalDepth bits of it.
type HashFunction[K any] func(key K) uint32

// Int32Hasher is the default HashFunction for int32 keys: xxHash over
// the key's little-endian bytes, downcast from 64 to 32 bits.
func Int32Hasher(key int32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(key))
	return uint32(xxhash.Sum64(buf[:]))
}

// Int64Hasher is the default HashFunction for int64 keys.
func Int64Hasher(key int64) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return uint32(xxhash.Sum64(buf[:]))
}

// GenericKeyHasher is the HashFunction for fixed-width GenericKey
// values, giving byte-buffer keys a distinct hash family from the
// int32/int64 instantiations' xxHash.
func GenericKeyHasher(key GenericKey) uint32 {
	return uint32(murmur3.Sum64(key.Bytes()))
}
