// Package page implements the two on-disk page layouts the extendible
// hash index is built from: the directory page (this file) and the
// generic bucket page (bucket.go).
package page

import (
	"encoding/binary"

	"xhash/pkg/buffer"
	"xhash/pkg/config"
)

// Field offsets/sizes for the directory page's on-disk layout:
//
//	[lsn: u32][global_depth: u32][local_depths: u8 x DirectoryArraySize][bucket_page_ids: u32 x DirectoryArraySize]
//
// This ordering is part of the on-disk format and must not change.
const (
	lsnOffset         int32 = 0
	lsnSize           int32 = 4
	globalDepthOffset int32 = lsnOffset + lsnSize
	globalDepthSize   int32 = 4
	localDepthsOffset int32 = globalDepthOffset + globalDepthSize
	localDepthsSize   int32 = config.DirectoryArraySize
	bucketIDsOffset   int32 = localDepthsOffset + localDepthsSize
	bucketIDsSize     int32 = config.DirectoryArraySize * 4
	directoryPageSize int32 = bucketIDsOffset + bucketIDsSize
)

// MaxGlobalDepth is the largest global depth the directory's fixed
// arrays can hold: log2(DirectoryArraySize).
var MaxGlobalDepth = func() uint32 {
	depth := uint32(0)
	for size := 1; size < config.DirectoryArraySize; size *= 2 {
		depth++
	}
	return depth
}()

func init() {
	if directoryPageSize > buffer.PageSize {
		panic("directory page layout exceeds page size")
	}
}

// DirectoryPage is a thin view over a buffer-pool page holding the
// extendible hash table's directory: the global depth and, for each
// active slot, a (bucket page id, local depth) pair.
//
// All reads/writes go straight through to the underlying page bytes;
// DirectoryPage caches nothing, so it's always safe to wrap a fetched
// page in one of these without worrying about staleness.
type DirectoryPage struct {
	raw *buffer.Page
}

// WrapDirectoryPage views an already-fetched page as a DirectoryPage.
func WrapDirectoryPage(raw *buffer.Page) *DirectoryPage {
	return &DirectoryPage{raw: raw}
}

// InitDirectoryPage initializes a freshly allocated page as an empty
// directory (global depth 0, slot 0 pointing at bucketPageID). The
// page's other bytes are left as they are.
func InitDirectoryPage(raw *buffer.Page, bucketPageID int32) *DirectoryPage {
	dir := &DirectoryPage{raw: raw}
	dir.SetGlobalDepth(0)
	dir.SetBucketPageID(0, bucketPageID)
	dir.SetLocalDepth(0, 0)
	return dir
}

// GetGlobalDepth returns the number of hash bits currently consulted.
func (d *DirectoryPage) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.raw.GetData()[globalDepthOffset:])
}

// SetGlobalDepth overwrites the global depth directly. Most callers
// should use IncrGlobalDepth/DecrGlobalDepth instead.
func (d *DirectoryPage) SetGlobalDepth(depth uint32) {
	buf := make([]byte, globalDepthSize)
	binary.LittleEndian.PutUint32(buf, depth)
	d.raw.Update(buf, globalDepthOffset, globalDepthSize)
}

// Size returns 2^global_depth: the number of active directory slots.
func (d *DirectoryPage) Size() uint32 {
	return uint32(1) << d.GetGlobalDepth()
}

// GetGlobalDepthMask returns (1 << global_depth) - 1.
func (d *DirectoryPage) GetGlobalDepthMask() uint32 {
	return d.Size() - 1
}

// GetLocalDepthMask returns (1 << local_depths[slot]) - 1.
func (d *DirectoryPage) GetLocalDepthMask(slot uint32) uint32 {
	return (uint32(1) << d.GetLocalDepth(slot)) - 1
}

// GetLocalDepth returns the local depth of the bucket at the given slot.
func (d *DirectoryPage) GetLocalDepth(slot uint32) uint32 {
	return uint32(d.raw.GetData()[localDepthsOffset+int32(slot)])
}

// SetLocalDepth sets the local depth of the bucket at the given slot.
func (d *DirectoryPage) SetLocalDepth(slot uint32, depth uint32) {
	d.raw.Update([]byte{byte(depth)}, localDepthsOffset+int32(slot), 1)
}

// IncrLocalDepth increments the local depth at the given slot by one.
func (d *DirectoryPage) IncrLocalDepth(slot uint32) {
	d.SetLocalDepth(slot, d.GetLocalDepth(slot)+1)
}

// DecrLocalDepth decrements the local depth at the given slot by one.
func (d *DirectoryPage) DecrLocalDepth(slot uint32) {
	d.SetLocalDepth(slot, d.GetLocalDepth(slot)-1)
}

// GetBucketPageID returns the page id of the bucket the given slot
// points to.
func (d *DirectoryPage) GetBucketPageID(slot uint32) int32 {
	return int32(binary.LittleEndian.Uint32(d.raw.GetData()[bucketIDsOffset+int32(slot)*4:]))
}

// SetBucketPageID points the given slot at bucketPageID.
func (d *DirectoryPage) SetBucketPageID(slot uint32, bucketPageID int32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(bucketPageID))
	d.raw.Update(buf, bucketIDsOffset+int32(slot)*4, 4)
}

// IncrGlobalDepth doubles the directory: every existing slot i is
// copied to slot i+size, so slots i and i+size share a bucket page id
// and local depth, then global depth is incremented. This preserves
// D1-D4: every bucket that had k pointers now has 2k.
func (d *DirectoryPage) IncrGlobalDepth() {
	size := d.Size()
	for i := uint32(0); i < size; i++ {
		d.SetBucketPageID(i+size, d.GetBucketPageID(i))
		d.SetLocalDepth(i+size, d.GetLocalDepth(i))
	}
	d.SetGlobalDepth(d.GetGlobalDepth() + 1)
}

// DecrGlobalDepth halves the directory by decrementing global depth.
// Callers must have already verified CanShrink.
func (d *DirectoryPage) DecrGlobalDepth() {
	d.SetGlobalDepth(d.GetGlobalDepth() - 1)
}

// CanShrink reports whether every active slot's local depth is
// strictly less than the global depth, i.e. whether DecrGlobalDepth
// can be applied at least once without losing any distinct bucket.
func (d *DirectoryPage) CanShrink() bool {
	globalDepth := d.GetGlobalDepth()
	for i := uint32(0); i < d.Size(); i++ {
		if d.GetLocalDepth(i) >= globalDepth {
			return false
		}
	}
	return true
}

// MaxLocalDepth returns the largest local depth among all active slots.
func (d *DirectoryPage) MaxLocalDepth() uint32 {
	max := uint32(0)
	for i := uint32(0); i < d.Size(); i++ {
		if ld := d.GetLocalDepth(i); ld > max {
			max = ld
		}
	}
	return max
}

// VerifyIntegrity checks invariants D1-D4, returning the first
// violation found (or nil if none). Used only by tests/diagnostics.
func (d *DirectoryPage) VerifyIntegrity() error {
	globalDepth := d.GetGlobalDepth()
	size := d.Size()
	// D1: every active slot's local depth is <= global depth.
	for i := uint32(0); i < size; i++ {
		if d.GetLocalDepth(i) > globalDepth {
			return directoryIntegrityError("slot %d has local depth %d exceeding global depth %d", i, d.GetLocalDepth(i), globalDepth)
		}
	}
	// D2/D3: slots sharing a bucket page id must share a local depth,
	// agree on the low localDepth bits, and there must be exactly
	// 2^(globalDepth-localDepth) of them.
	counts := make(map[int32]uint32)
	depths := make(map[int32]uint32)
	firsts := make(map[int32]uint32)
	for i := uint32(0); i < size; i++ {
		bucketID := d.GetBucketPageID(i)
		localDepth := d.GetLocalDepth(i)
		if prevDepth, ok := depths[bucketID]; ok && prevDepth != localDepth {
			return directoryIntegrityError("bucket %d referenced with mismatched local depths %d and %d", bucketID, prevDepth, localDepth)
		}
		if first, ok := firsts[bucketID]; ok {
			if (first^i)&d.GetLocalDepthMask(i) != 0 {
				return directoryIntegrityError("slots %d and %d share bucket %d but differ in their low %d bits", first, i, bucketID, localDepth)
			}
		} else {
			firsts[bucketID] = i
		}
		depths[bucketID] = localDepth
		counts[bucketID]++
	}
	for bucketID, count := range counts {
		expected := uint32(1) << (globalDepth - depths[bucketID])
		if count != expected {
			return directoryIntegrityError("bucket %d has %d pointers, expected %d for local depth %d", bucketID, count, expected, depths[bucketID])
		}
	}
	return nil
}
