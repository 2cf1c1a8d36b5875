// Package hash implements the extendible hash table itself: directory
// and bucket pages wired together with hashing, key encoding, and
// two-level latching. See pkg/storage/page for the on-disk layouts
// this package drives.
package hash

import (
	"sync"

	"xhash/pkg/buffer"
	"xhash/pkg/concurrency"
	"xhash/pkg/config"
	"xhash/pkg/storage/page"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ExtendibleHashTable is a persistent, concurrent extendible hash
// index over a buffer-pool-resident directory page and bucket pages.
// It is generic over the key type K (compared through the caller's
// Comparator, since GenericKey isn't Go-comparable) and the value
// type V (which must support ==, used to detect duplicate (k, v)
// pairs and matching removals).
type ExtendibleHashTable[K any, V comparable] struct {
	name   string
	pool   *buffer.BufferPool
	keyCdc page.Codec[K]
	valCdc page.Codec[V]
	cmp    page.Comparator[K]
	hashFn HashFunction[K]

	directoryPageID int32

	// [CONCURRENCY] Table-level latch: shared for GetValue and the
	// fast path of Insert, exclusive for SplitInsert and Remove.
	mu  sync.RWMutex
	log *logrus.Entry
}

// Pair is a materialized (key, value) entry, returned by Select.
type Pair[K any, V any] struct {
	Key   K
	Value V
}

// New constructs an ExtendibleHashTable named name over pool. If pool
// has no pages yet, a fresh empty directory (global depth 0, one
// bucket) is bootstrapped; otherwise the existing directory at page 0
// is reused, matching how the buffer pool preserves page contents
// across process restarts.
func New[K any, V comparable](
	name string,
	pool *buffer.BufferPool,
	keyCdc page.Codec[K],
	valCdc page.Codec[V],
	cmp page.Comparator[K],
	hashFn HashFunction[K],
) (*ExtendibleHashTable[K, V], error) {
	t := &ExtendibleHashTable[K, V]{
		name:   name,
		pool:   pool,
		keyCdc: keyCdc,
		valCdc: valCdc,
		cmp:    cmp,
		hashFn: hashFn,
		log:    logrus.WithFields(logrus.Fields{"component": "hash", "table": name}),
	}
	if pool.GetNumPages() == 0 {
		if err := t.bootstrap(); err != nil {
			return nil, err
		}
	} else {
		t.directoryPageID = 0
	}
	return t, nil
}

// bootstrap allocates the directory page and its first bucket page,
// leaving the directory at global depth 0 with one slot.
func (t *ExtendibleHashTable[K, V]) bootstrap() error {
	dirSP, err := newScoped(t.pool)
	if err != nil {
		return errors.Wrap(err, "allocating directory page")
	}
	t.directoryPageID = dirSP.id

	bucketSP, err := newScoped(t.pool)
	if err != nil {
		t.directoryPageID = buffer.InvalidPageID
		_ = dirSP.Release()
		return errors.Wrap(err, "allocating initial bucket page")
	}
	page.InitBucketPage[K, V](bucketSP.raw, t.keyCdc, t.valCdc)
	page.InitDirectoryPage(dirSP.raw, bucketSP.id)

	if err := bucketSP.Release(); err != nil {
		return err
	}
	if err := dirSP.Release(); err != nil {
		return err
	}
	t.log.WithField("directory_page", t.directoryPageID).Info("bootstrapped empty hash table")
	return nil
}

// GetDirectoryPageID returns the root directory page's id.
func (t *ExtendibleHashTable[K, V]) GetDirectoryPageID() int32 {
	return t.directoryPageID
}

func (t *ExtendibleHashTable[K, V]) fetchDirectory() (*scopedPage, *page.DirectoryPage, error) {
	sp, err := fetchScoped(t.pool, t.directoryPageID)
	if err != nil {
		return nil, nil, err
	}
	return sp, page.WrapDirectoryPage(sp.raw), nil
}

func (t *ExtendibleHashTable[K, V]) fetchBucket(bucketPageID int32) (*scopedPage, *page.BucketPage[K, V], error) {
	sp, err := fetchScoped(t.pool, bucketPageID)
	if err != nil {
		return nil, nil, err
	}
	return sp, page.WrapBucketPage[K, V](sp.raw, t.keyCdc, t.valCdc), nil
}

// dirIdx computes DirIdx(key) = Hash(key) & GlobalDepthMask().
func (t *ExtendibleHashTable[K, V]) dirIdx(dir *page.DirectoryPage, key K) uint32 {
	return t.hashFn(key) & dir.GetGlobalDepthMask()
}

// splitImageIdx computes i ^ (1 << (depth - 1)), the directory slot
// that differs from i only in bit (depth-1).
func splitImageIdx(i, depth uint32) uint32 {
	return i ^ (uint32(1) << (depth - 1))
}

// GetGlobalDepth reads the directory's global depth under a shared
// table latch, rather than exposing the field lock-free.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() (uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return 0, err
	}
	defer dirSP.Release()
	return dir.GetGlobalDepth(), nil
}

// GetValue returns every value associated with key. tx is threaded
// through but not interpreted by the index.
func (t *ExtendibleHashTable[K, V]) GetValue(tx *concurrency.Transaction, key K) ([]V, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	idx := t.dirIdx(dir, key)
	bucketPageID := dir.GetBucketPageID(idx)
	if err := dirSP.Release(); err != nil {
		return nil, err
	}

	bucketSP, err := fetchScoped(t.pool, bucketPageID)
	if err != nil {
		return nil, err
	}
	// The bucket's bitmaps are loaded when it is wrapped, so it is only
	// wrapped once the page latch is held.
	bucketSP.raw.RLock()
	bucket := page.WrapBucketPage[K, V](bucketSP.raw, t.keyCdc, t.valCdc)
	values, _ := bucket.GetValue(key, t.cmp)
	bucketSP.raw.RUnlock()
	if err := bucketSP.Release(); err != nil {
		return nil, err
	}
	return values, nil
}

// Insert adds (key, value), returning false if it's a duplicate or
// the directory is saturated.
func (t *ExtendibleHashTable[K, V]) Insert(tx *concurrency.Transaction, key K, value V) (bool, error) {
	t.mu.RLock()

	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		t.mu.RUnlock()
		return false, err
	}
	idx := t.dirIdx(dir, key)
	bucketPageID := dir.GetBucketPageID(idx)
	if err := dirSP.Release(); err != nil {
		t.mu.RUnlock()
		return false, err
	}

	bucketSP, err := fetchScoped(t.pool, bucketPageID)
	if err != nil {
		t.mu.RUnlock()
		return false, err
	}
	// Wrap under the page latch so the bitmaps reflect any insert another
	// fast-path writer made to this bucket.
	bucketSP.raw.WLock()
	bucket := page.WrapBucketPage[K, V](bucketSP.raw, t.keyCdc, t.valCdc)
	inserted := bucket.Insert(key, value, t.cmp)
	full := !inserted && bucket.IsFull()
	bucketSP.raw.WUnlock()
	bucketSP.SetDirty(inserted)
	if err := bucketSP.Release(); err != nil {
		t.mu.RUnlock()
		return false, err
	}
	t.mu.RUnlock()

	if inserted {
		return true, nil
	}
	if !full {
		// Duplicate (key, value) pair.
		return false, nil
	}
	return t.splitInsert(tx, key, value)
}

// splitInsert handles the case where the fast path found the target
// bucket full. It re-resolves the directory on every iteration under
// the held exclusive table latch, never trusting a depth read from
// before the shared-to-exclusive upgrade, growing the directory and/or
// splitting the bucket until the insert succeeds or the directory
// would exceed config.DirectoryArraySize (saturated).
func (t *ExtendibleHashTable[K, V]) splitInsert(tx *concurrency.Transaction, key K, value V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		dirSP, dir, err := t.fetchDirectory()
		if err != nil {
			return false, err
		}
		idx := t.dirIdx(dir, key)
		bucketPageID := dir.GetBucketPageID(idx)

		bucketSP, bucket, err := t.fetchBucket(bucketPageID)
		if err != nil {
			_ = dirSP.Release()
			return false, err
		}

		bucketSP.raw.WLock()
		inserted := bucket.Insert(key, value, t.cmp)
		bucketSP.raw.WUnlock()
		if inserted {
			bucketSP.SetDirty(true)
			_ = bucketSP.Release()
			_ = dirSP.Release()
			return true, nil
		}

		globalDepth := dir.GetGlobalDepth()
		localDepth := dir.GetLocalDepth(idx)
		if localDepth == globalDepth {
			if dir.Size()*2 > uint32(config.DirectoryArraySize) {
				_ = bucketSP.Release()
				_ = dirSP.Release()
				t.log.WithField("global_depth", globalDepth).Warn("directory saturated, refusing split")
				return false, nil
			}
			dir.IncrGlobalDepth()
			dirSP.SetDirty(true)
		}

		bucketSP.raw.WLock()
		ok, err := t.incrLocalDepth(dir, idx, bucket)
		bucketSP.raw.WUnlock()
		if err != nil {
			_ = bucketSP.Release()
			_ = dirSP.Release()
			return false, err
		}
		if !ok {
			_ = bucketSP.Release()
			_ = dirSP.Release()
			return false, nil
		}
		dirSP.SetDirty(true)

		// The old bucket must be unpinned before it's deleted, and it
		// was only read from above, never mutated in place, so it's
		// released clean.
		if err := bucketSP.Release(); err != nil {
			_ = dirSP.Release()
			return false, err
		}
		if err := t.pool.DeletePage(bucketPageID); err != nil {
			_ = dirSP.Release()
			return false, errors.Wrap(err, "deleting split bucket page")
		}
		if err := dirSP.Release(); err != nil {
			return false, err
		}
		// Loop: re-resolve the bucket for key and retry the insert.
	}
}

// incrLocalDepth splits the bucket at slot idx into two freshly
// allocated bucket pages, redistributes oldBucket's readable entries
// between them by the newly-significant hash bit, and repoints every
// directory slot sharing idx's pre-split low bits to whichever new
// page it belongs to, incrementing each touched slot's local depth.
//
// Returns true on success, the corrected true-on-success convention
// rather than an inverted false-on-success one. On a second NewPage
// failure, the first already-allocated daughter page is unpinned and
// deleted before returning so no half-finished split leaves an
// orphaned page pinned.
func (t *ExtendibleHashTable[K, V]) incrLocalDepth(dir *page.DirectoryPage, idx uint32, oldBucket *page.BucketPage[K, V]) (bool, error) {
	oldLocalDepth := dir.GetLocalDepth(idx)
	oldMask := dir.GetLocalDepthMask(idx)
	lowBits := idx & oldMask

	zeroSP, err := newScoped(t.pool)
	if err != nil {
		return false, errors.Wrap(err, "allocating first split bucket")
	}
	oneSP, err := newScoped(t.pool)
	if err != nil {
		_ = zeroSP.Release()
		if derr := t.pool.DeletePage(zeroSP.id); derr != nil {
			return false, derr
		}
		return false, errors.Wrap(err, "allocating second split bucket")
	}

	zeroBucket := page.InitBucketPage[K, V](zeroSP.raw, t.keyCdc, t.valCdc)
	oneBucket := page.InitBucketPage[K, V](oneSP.raw, t.keyCdc, t.valCdc)

	zeroSP.raw.WLock()
	oneSP.raw.WLock()
	capacity := oldBucket.Capacity()
	for i := int32(0); i < capacity; i++ {
		if !oldBucket.IsOccupied(i) {
			break
		}
		if !oldBucket.IsReadable(i) {
			continue
		}
		k := oldBucket.KeyAt(i)
		v := oldBucket.ValueAt(i)
		if (t.hashFn(k)>>oldLocalDepth)&1 == 0 {
			zeroBucket.Insert(k, v, t.cmp)
		} else {
			oneBucket.Insert(k, v, t.cmp)
		}
	}
	oneSP.raw.WUnlock()
	zeroSP.raw.WUnlock()

	zeroID, oneID := zeroSP.id, oneSP.id
	for i := uint32(0); i < dir.Size(); i++ {
		if i&oldMask != lowBits {
			continue
		}
		if (i>>oldLocalDepth)&1 == 0 {
			dir.SetBucketPageID(i, zeroID)
		} else {
			dir.SetBucketPageID(i, oneID)
		}
		dir.IncrLocalDepth(i)
	}

	if err := zeroSP.Release(); err != nil {
		return false, err
	}
	if err := oneSP.Release(); err != nil {
		return false, err
	}
	t.log.WithFields(logrus.Fields{
		"zero_bucket": zeroID, "one_bucket": oneID, "local_depth": oldLocalDepth + 1,
	}).Info("split bucket")
	return true, nil
}

// Remove deletes the (key, value) pair, returning false if no such
// pair exists. If the bucket becomes empty it repeatedly merges with
// its split image and shrinks the directory for as long as doing so
// stays legal.
func (t *ExtendibleHashTable[K, V]) Remove(tx *concurrency.Transaction, key K, value V) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return false, err
	}
	defer dirSP.Release()

	idx := t.dirIdx(dir, key)
	bucketPageID := dir.GetBucketPageID(idx)
	bucketSP, bucket, err := t.fetchBucket(bucketPageID)
	if err != nil {
		return false, err
	}

	if !bucket.Remove(key, value, t.cmp) {
		_ = bucketSP.Release()
		return false, nil
	}
	bucketSP.SetDirty(true)

	for bucket.IsEmpty() {
		if err := bucketSP.Release(); err != nil {
			return false, err
		}
		merged, err := t.merge(dir, key)
		if err != nil {
			return false, err
		}
		if !merged {
			return true, nil
		}
		dirSP.SetDirty(true)
		if dir.CanShrink() {
			t.shrink(dir)
		}
		idx = t.dirIdx(dir, key)
		bucketPageID = dir.GetBucketPageID(idx)
		bucketSP, bucket, err = t.fetchBucket(bucketPageID)
		if err != nil {
			return false, err
		}
	}
	if err := bucketSP.Release(); err != nil {
		return false, err
	}
	return true, nil
}

// merge coalesces the bucket named by key's directory slot with its
// split image, if their local depths still match.
// Returns false (not an error) when a merge isn't legal: local depth
// 0 (single bucket, nothing to merge with) or an asymmetric split
// history (the split image was itself re-split since).
func (t *ExtendibleHashTable[K, V]) merge(dir *page.DirectoryPage, key K) (bool, error) {
	idx := t.dirIdx(dir, key)
	localDepth := dir.GetLocalDepth(idx)
	if localDepth == 0 {
		return false, nil
	}
	splitIdx := splitImageIdx(idx, localDepth)
	if dir.GetLocalDepth(splitIdx) != localDepth {
		return false, nil
	}

	emptyBucketID := dir.GetBucketPageID(idx)
	survivorID := dir.GetBucketPageID(splitIdx)

	newMask := (uint32(1) << (localDepth - 1)) - 1
	lowBits := idx & newMask
	for k := uint32(0); k < dir.Size(); k++ {
		if k&newMask != lowBits {
			continue
		}
		dir.SetBucketPageID(k, survivorID)
		dir.DecrLocalDepth(k)
	}

	if err := t.pool.DeletePage(emptyBucketID); err != nil {
		return false, errors.Wrap(err, "deleting merged bucket page")
	}
	t.log.WithFields(logrus.Fields{
		"deleted_bucket": emptyBucketID, "survivor_bucket": survivorID, "local_depth": localDepth - 1,
	}).Info("merged buckets")
	return true, nil
}

// shrink halves the directory for as long as every active slot's
// local depth is strictly less than the global depth.
func (t *ExtendibleHashTable[K, V]) shrink(dir *page.DirectoryPage) {
	for dir.GetGlobalDepth() > dir.MaxLocalDepth() {
		dir.DecrGlobalDepth()
	}
}

// VerifyIntegrity asserts the directory's D1-D4 invariants, surfacing
// the first violation found as an error. Intended for tests and
// diagnostics, under a shared latch.
func (t *ExtendibleHashTable[K, V]) VerifyIntegrity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return err
	}
	defer dirSP.Release()
	if err := dir.VerifyIntegrity(); err != nil {
		t.log.WithError(err).Error("directory integrity check failed")
		return err
	}
	return nil
}

// Select returns every live (key, value) pair in the table, in no
// particular order (the index supports no ordered iteration). It
// walks the directory's distinct bucket page ids rather than every
// page number in file order, since a deleted bucket's page id stays
// in the file with whatever bytes were last written to it.
func (t *ExtendibleHashTable[K, V]) Select() ([]Pair[K, V], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return nil, err
	}
	seen := make(map[int32]bool)
	var bucketIDs []int32
	for i := uint32(0); i < dir.Size(); i++ {
		id := dir.GetBucketPageID(i)
		if !seen[id] {
			seen[id] = true
			bucketIDs = append(bucketIDs, id)
		}
	}
	if err := dirSP.Release(); err != nil {
		return nil, err
	}

	var result []Pair[K, V]
	for _, bucketPageID := range bucketIDs {
		bucketSP, bucket, err := t.fetchBucket(bucketPageID)
		if err != nil {
			return nil, err
		}
		capacity := bucket.Capacity()
		for i := int32(0); i < capacity; i++ {
			if !bucket.IsOccupied(i) {
				break
			}
			if bucket.IsReadable(i) {
				result = append(result, Pair[K, V]{Key: bucket.KeyAt(i), Value: bucket.ValueAt(i)})
			}
		}
		if err := bucketSP.Release(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// BucketStats reports occupied/readable/tombstone counts for the
// bucket the given directory slot currently names, for the REPL's
// `.bucket` diagnostic command.
func (t *ExtendibleHashTable[K, V]) BucketStats(slot uint32) (occupied, readable, tombstones int32, localDepth uint32, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dirSP, dir, err := t.fetchDirectory()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if slot >= dir.Size() {
		_ = dirSP.Release()
		return 0, 0, 0, 0, errors.Errorf("slot %d out of range [0, %d)", slot, dir.Size())
	}
	bucketPageID := dir.GetBucketPageID(slot)
	localDepth = dir.GetLocalDepth(slot)
	if err := dirSP.Release(); err != nil {
		return 0, 0, 0, 0, err
	}
	bucketSP, bucket, err := t.fetchBucket(bucketPageID)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	occupied, readable, tombstones = bucket.Stats()
	if err := bucketSP.Release(); err != nil {
		return 0, 0, 0, 0, err
	}
	return occupied, readable, tombstones, localDepth, nil
}
