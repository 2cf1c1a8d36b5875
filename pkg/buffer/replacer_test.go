package buffer

import "testing"

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(2)
	r.Unpin(0)
	r.Unpin(1)

	if got := r.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	for _, want := range []FrameID{2, 0, 1} {
		got, ok := r.Victim()
		if !ok {
			t.Fatalf("Victim() returned ok=false, wanted frame %d", want)
		}
		if got != want {
			t.Fatalf("Victim() = %d, want %d", got, want)
		}
	}

	if _, ok := r.Victim(); ok {
		t.Fatal("Victim() on an empty replacer unexpectedly returned ok=true")
	}
}

func TestLRUReplacerPinRemovesFromConsideration(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(0)
	r.Unpin(1)
	r.Pin(0)

	if got := r.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1", got)
	}
	got, ok := r.Victim()
	if !ok || got != 1 {
		t.Fatalf("Victim() = %d, %v; want 1, true", got, ok)
	}
}

func TestLRUReplacerDoubleUnpinIsNoop(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(0)
	r.Unpin(0)
	if got := r.Size(); got != 1 {
		t.Fatalf("Size() = %d, want 1 after redundant Unpin", got)
	}
}

func TestLRUReplacerPinUntrackedIsNoop(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Pin(3) // never unpinned; must not panic or affect size
	if got := r.Size(); got != 0 {
		t.Fatalf("Size() = %d, want 0", got)
	}
}
