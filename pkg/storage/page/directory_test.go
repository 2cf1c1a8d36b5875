package page

import "testing"

func newTestDirectory(t *testing.T) *DirectoryPage {
	t.Helper()
	pool := newTestPool(t)
	raw, err := pool.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pool.UnpinPage(raw.GetPageID(), false) })
	return InitDirectoryPage(raw, 7)
}

func TestDirectoryInitialState(t *testing.T) {
	d := newTestDirectory(t)
	if d.GetGlobalDepth() != 0 {
		t.Fatalf("GetGlobalDepth() = %d, want 0", d.GetGlobalDepth())
	}
	if d.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", d.Size())
	}
	if d.GetBucketPageID(0) != 7 {
		t.Fatalf("GetBucketPageID(0) = %d, want 7", d.GetBucketPageID(0))
	}
	if err := d.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

func TestDirectoryIncrGlobalDepthPreservesMapping(t *testing.T) {
	d := newTestDirectory(t)
	d.SetLocalDepth(0, 0)
	d.IncrGlobalDepth()

	if d.GetGlobalDepth() != 1 {
		t.Fatalf("GetGlobalDepth() = %d, want 1", d.GetGlobalDepth())
	}
	if d.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", d.Size())
	}
	if d.GetBucketPageID(0) != d.GetBucketPageID(1) {
		t.Fatalf("expected slots 0 and 1 to share bucket page id after doubling, got %d and %d",
			d.GetBucketPageID(0), d.GetBucketPageID(1))
	}
	if err := d.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

func TestDirectorySplitTwoSlotsAndShrink(t *testing.T) {
	d := newTestDirectory(t)
	d.IncrGlobalDepth() // size 2, both slots -> bucket 7, local depth 0

	// Split slot 0's bucket: slot 0 keeps bucket 7, slot 1 (its split
	// image) moves to a fresh bucket, both gaining local depth 1.
	d.SetBucketPageID(1, 9)
	d.SetLocalDepth(0, 1)
	d.SetLocalDepth(1, 1)

	if err := d.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
	if d.CanShrink() {
		t.Fatal("CanShrink() should be false: both slots have local depth == global depth")
	}

	// Merge back: slot 1 rejoins slot 0's bucket at local depth 0.
	d.SetBucketPageID(1, 7)
	d.SetLocalDepth(0, 0)
	d.SetLocalDepth(1, 0)

	if !d.CanShrink() {
		t.Fatal("CanShrink() should be true once every slot's local depth is below global depth")
	}
	d.DecrGlobalDepth()
	if d.GetGlobalDepth() != 0 {
		t.Fatalf("GetGlobalDepth() = %d after shrink, want 0", d.GetGlobalDepth())
	}
	if err := d.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

func TestDirectoryVerifyIntegrityCatchesMismatchedLocalDepths(t *testing.T) {
	d := newTestDirectory(t)
	d.IncrGlobalDepth()
	d.SetBucketPageID(1, d.GetBucketPageID(0)) // same bucket, slot 1
	d.SetLocalDepth(0, 1)
	d.SetLocalDepth(1, 0) // mismatched: same bucket, different local depth

	if err := d.VerifyIntegrity(); err == nil {
		t.Fatal("expected VerifyIntegrity to catch mismatched local depths for a shared bucket")
	}
}

func TestDirectoryVerifyIntegrityCatchesBadPointerCount(t *testing.T) {
	d := newTestDirectory(t)
	d.IncrGlobalDepth()
	d.IncrGlobalDepth() // size 4, all four slots -> bucket 7, local depth 0

	// Point slots 1 and 3 at a second bucket without raising any local
	// depth: buckets 7 and 9 now have 2 pointers each, while local
	// depth 0 at global depth 2 implies 4.
	d.SetBucketPageID(1, 9)
	d.SetBucketPageID(3, 9)

	if err := d.VerifyIntegrity(); err == nil {
		t.Fatal("expected VerifyIntegrity to catch a bucket with the wrong pointer count")
	}
}

func TestDirectoryMaxLocalDepth(t *testing.T) {
	d := newTestDirectory(t)
	d.IncrGlobalDepth()
	d.IncrGlobalDepth()
	d.SetLocalDepth(0, 2)
	d.SetLocalDepth(1, 1)
	if got := d.MaxLocalDepth(); got != 2 {
		t.Fatalf("MaxLocalDepth() = %d, want 2", got)
	}
}
