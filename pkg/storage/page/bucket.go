package page

import (
	"encoding/binary"

	"xhash/pkg/buffer"

	"github.com/bits-and-blooms/bitset"
)

// BucketPage is a fixed-capacity page storing up to Capacity() (key,
// value) entries, with occupied/readable bitmaps tracking, per slot,
// whether it was ever written (occupied) and whether it currently
// holds a live entry (readable). On-disk layout:
//
//	[occupied: bits x capacity][readable: bits x capacity][array: (K,V) x capacity]
//
// V must be comparable so Insert/Remove can detect duplicate/matching
// (key, value) pairs; K is compared only through the caller-supplied
// Comparator, since keys like GenericKey[N] aren't Go-comparable.
type BucketPage[K any, V comparable] struct {
	raw      *buffer.Page
	keyCodec Codec[K]
	valCodec Codec[V]

	capacity    int32
	entrySize   int32
	bitmapBytes int32

	occupied *bitset.BitSet
	readable *bitset.BitSet
}

// bitmapByteSize returns the number of bytes needed to store a
// `capacity`-bit bitmap as whole 8-byte words (so it can be converted
// to/from a []uint64 without partial-word handling).
func bitmapByteSize(capacity int32) int32 {
	words := (capacity + 63) / 64
	if words == 0 {
		words = 1
	}
	return words * 8
}

// ComputeBucketCapacity returns the largest number of (K,V) entries a
// bucket page can hold given the fixed on-disk size of K and V,
// accounting for the occupied/readable bitmaps' own space.
func ComputeBucketCapacity(keySize, valSize int32) int32 {
	entrySize := keySize + valSize
	capacity := buffer.PageSize / entrySize
	for capacity > 0 {
		total := 2*bitmapByteSize(capacity) + capacity*entrySize
		if total <= buffer.PageSize {
			return capacity
		}
		capacity--
	}
	return 0
}

func bucketLayout[K any, V comparable](keyCodec Codec[K], valCodec Codec[V]) (capacity, entrySize, bitmapBytes int32) {
	entrySize = keyCodec.Size() + valCodec.Size()
	capacity = ComputeBucketCapacity(keyCodec.Size(), valCodec.Size())
	bitmapBytes = bitmapByteSize(capacity)
	return
}

// WrapBucketPage views an already-fetched (and already-initialized)
// page as a BucketPage, loading its bitmaps from the page bytes.
func WrapBucketPage[K any, V comparable](raw *buffer.Page, keyCodec Codec[K], valCodec Codec[V]) *BucketPage[K, V] {
	capacity, entrySize, bitmapBytes := bucketLayout(keyCodec, valCodec)
	b := &BucketPage[K, V]{
		raw: raw, keyCodec: keyCodec, valCodec: valCodec,
		capacity: capacity, entrySize: entrySize, bitmapBytes: bitmapBytes,
	}
	b.occupied = bytesToBitset(b.raw.GetData()[b.occupiedOffset():b.readableOffset()], b.capacity)
	b.readable = bytesToBitset(b.raw.GetData()[b.readableOffset():b.entriesOffset()], b.capacity)
	return b
}

// InitBucketPage initializes a freshly allocated page as an empty
// bucket by clearing both bitmaps; the entry array is left as it is.
func InitBucketPage[K any, V comparable](raw *buffer.Page, keyCodec Codec[K], valCodec Codec[V]) *BucketPage[K, V] {
	capacity, entrySize, bitmapBytes := bucketLayout(keyCodec, valCodec)
	b := &BucketPage[K, V]{
		raw: raw, keyCodec: keyCodec, valCodec: valCodec,
		capacity: capacity, entrySize: entrySize, bitmapBytes: bitmapBytes,
	}
	b.occupied = bitset.New(uint(capacity))
	b.readable = bitset.New(uint(capacity))
	b.storeOccupied()
	b.storeReadable()
	return b
}

// Capacity returns B, the number of (K,V) slots this bucket page has.
func (b *BucketPage[K, V]) Capacity() int32 {
	return b.capacity
}

func (b *BucketPage[K, V]) occupiedOffset() int32 { return 0 }
func (b *BucketPage[K, V]) readableOffset() int32 { return b.bitmapBytes }
func (b *BucketPage[K, V]) entriesOffset() int32  { return 2 * b.bitmapBytes }

func (b *BucketPage[K, V]) entryOffset(i int32) int32 {
	return b.entriesOffset() + i*b.entrySize
}

func bytesToBitset(buf []byte, capacity int32) *bitset.BitSet {
	words := make([]uint64, len(buf)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return bitset.FromWithLength(uint(capacity), words)
}

func bitsetToBytes(bs *bitset.BitSet, buf []byte) {
	words := bs.Bytes()
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
}

func (b *BucketPage[K, V]) storeOccupied() {
	buf := make([]byte, b.bitmapBytes)
	bitsetToBytes(b.occupied, buf)
	b.raw.Update(buf, b.occupiedOffset(), b.bitmapBytes)
}

func (b *BucketPage[K, V]) storeReadable() {
	buf := make([]byte, b.bitmapBytes)
	bitsetToBytes(b.readable, buf)
	b.raw.Update(buf, b.readableOffset(), b.bitmapBytes)
}

// IsOccupied reports whether slot i has ever been written (B1 is
// `readable[i] => occupied[i]`).
func (b *BucketPage[K, V]) IsOccupied(i int32) bool {
	return b.occupied.Test(uint(i))
}

// IsReadable reports whether slot i currently holds a live entry.
func (b *BucketPage[K, V]) IsReadable(i int32) bool {
	return b.readable.Test(uint(i))
}

func (b *BucketPage[K, V]) setOccupied(i int32, v bool) {
	b.occupied.SetTo(uint(i), v)
	b.storeOccupied()
}

func (b *BucketPage[K, V]) setReadable(i int32, v bool) {
	b.readable.SetTo(uint(i), v)
	b.storeReadable()
}

// KeyAt returns the key stored at slot i.
func (b *BucketPage[K, V]) KeyAt(i int32) K {
	off := b.entryOffset(i)
	return b.keyCodec.Decode(b.raw.GetData()[off : off+b.keyCodec.Size()])
}

// ValueAt returns the value stored at slot i.
func (b *BucketPage[K, V]) ValueAt(i int32) V {
	off := b.entryOffset(i) + b.keyCodec.Size()
	return b.valCodec.Decode(b.raw.GetData()[off : off+b.valCodec.Size()])
}

// RemoveAt clears slot i's readable bit, tombstoning it without
// disturbing occupied (so B3's monotonicity is left for ReOrganize).
func (b *BucketPage[K, V]) RemoveAt(i int32) {
	b.setReadable(i, false)
}

func (b *BucketPage[K, V]) setEntryAt(i int32, key K, value V) {
	off := b.entryOffset(i)
	buf := make([]byte, b.entrySize)
	b.keyCodec.Encode(buf[:b.keyCodec.Size()], key)
	b.valCodec.Encode(buf[b.keyCodec.Size():], value)
	b.raw.Update(buf, off, b.entrySize)
}

// NumReadable returns the number of currently-live entries, computed
// with a bulk word-at-a-time popcount rather than a per-slot loop.
func (b *BucketPage[K, V]) NumReadable() int32 {
	return int32(b.readable.Count())
}

// IsFull reports whether every slot is readable.
func (b *BucketPage[K, V]) IsFull() bool {
	return b.readable.All()
}

// IsEmpty reports whether no slot is readable.
func (b *BucketPage[K, V]) IsEmpty() bool {
	return b.readable.None()
}

// GetValue appends every value associated with key to the result,
// scanning readable slots and stopping early at the first unoccupied
// slot (B3: occupied is monotone from slot 0).
func (b *BucketPage[K, V]) GetValue(key K, cmp Comparator[K]) ([]V, bool) {
	var result []V
	for i := int32(0); i < b.capacity; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && cmp(key, b.KeyAt(i)) == 0 {
			result = append(result, b.ValueAt(i))
		}
	}
	return result, len(result) > 0
}

// Insert adds (key, value), rejecting an exact (key, value) duplicate.
// It reclaims the lowest-indexed tombstone if one exists, otherwise
// the first unoccupied slot; if the trailing slot is occupied but the
// bucket isn't actually full, it compacts in place first (restoring
// B3) before giving up. Returns false if the bucket has no room.
func (b *BucketPage[K, V]) Insert(key K, value V, cmp Comparator[K]) bool {
	if b.IsOccupied(b.capacity - 1) {
		b.ReOrganize()
		if b.IsOccupied(b.capacity - 1) {
			return false
		}
	}
	insertAt := int32(-1)
	for i := int32(0); i < b.capacity; i++ {
		if !b.IsOccupied(i) {
			if insertAt == -1 {
				insertAt = i
			}
			break
		}
		if b.IsReadable(i) {
			if cmp(key, b.KeyAt(i)) == 0 && value == b.ValueAt(i) {
				return false
			}
		} else if insertAt == -1 {
			insertAt = i
		}
	}
	if insertAt == -1 {
		return false
	}
	b.setEntryAt(insertAt, key, value)
	b.setOccupied(insertAt, true)
	b.setReadable(insertAt, true)
	return true
}

// Remove tombstones the first slot holding the exact (key, value)
// pair. Returns false if no such slot exists.
func (b *BucketPage[K, V]) Remove(key K, value V, cmp Comparator[K]) bool {
	for i := int32(0); i < b.capacity; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) && cmp(key, b.KeyAt(i)) == 0 && value == b.ValueAt(i) {
			b.setReadable(i, false)
			return true
		}
	}
	return false
}

// ReOrganize compacts readable entries to the front of the array,
// restoring B3 (occupied monotone from slot 0). It only reorders
// readable entries in place, so it never changes any entry's
// identity; callers holding iterators over slot indices must not
// call this concurrently with their iteration.
func (b *BucketPage[K, V]) ReOrganize() {
	tail := int32(0)
	for i := int32(0); i < b.capacity; i++ {
		if !b.IsOccupied(i) {
			break
		}
		if b.IsReadable(i) {
			if i != tail {
				b.setEntryAt(tail, b.KeyAt(i), b.ValueAt(i))
			}
			tail++
		}
	}
	fresh := bitset.New(uint(b.capacity))
	for i := uint(0); i < uint(tail); i++ {
		fresh.Set(i)
	}
	b.occupied = fresh.Clone()
	b.readable = fresh.Clone()
	b.storeOccupied()
	b.storeReadable()
}

// Stats returns the number of occupied (ever-written) slots, how many
// of those are currently readable, and how many are tombstones, handy
// for a REPL diagnostic dump.
func (b *BucketPage[K, V]) Stats() (occupied, readable, tombstones int32) {
	for i := int32(0); i < b.capacity; i++ {
		if !b.IsOccupied(i) {
			break
		}
		occupied++
		if b.IsReadable(i) {
			readable++
		} else {
			tombstones++
		}
	}
	return
}
