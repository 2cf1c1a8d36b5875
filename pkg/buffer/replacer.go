package buffer

import (
	"sync"

	"xhash/pkg/list"
)

// FrameID indexes into the buffer pool's fixed frame array. Unlike a
// PageID it is never persisted; it only has meaning within one running
// buffer pool.
type FrameID int32

// LRUReplacer tracks which frames are currently unpinned and picks an
// eviction victim among them: the frame that was unpinned longest ago.
//
// [CONCURRENCY] One mutex guards all state; every operation does O(1)
// work under the lock.
type LRUReplacer struct {
	mu    sync.Mutex
	queue *list.List[FrameID]
	links []*list.Link[FrameID] // frameID -> its link in queue, nil if not tracked
	size  int
}

// NewLRUReplacer constructs a replacer capable of tracking numFrames
// distinct frame ids (0..numFrames-1).
func NewLRUReplacer(numFrames int) *LRUReplacer {
	return &LRUReplacer{
		queue: list.NewList[FrameID](),
		links: make([]*list.Link[FrameID], numFrames),
	}
}

// Victim removes and returns the least-recently-unpinned tracked frame.
// Returns false if no frame is currently trackable (the pool is fully pinned).
func (r *LRUReplacer) Victim() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	head := r.queue.PeekHead()
	if head == nil {
		return 0, false
	}
	frameID := head.GetValue()
	head.PopSelf()
	r.links[frameID] = nil
	r.size--
	return frameID, true
}

// Pin marks frameID as in-use, removing it from eviction consideration.
// A no-op if frameID isn't currently tracked.
func (r *LRUReplacer) Pin(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	link := r.links[frameID]
	if link == nil {
		return
	}
	link.PopSelf()
	r.links[frameID] = nil
	r.size--
}

// Unpin marks frameID as evictable, appending it to the tail of the
// eviction queue. A no-op if frameID is already tracked.
func (r *LRUReplacer) Unpin(frameID FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[frameID] != nil {
		return
	}
	r.links[frameID] = r.queue.PushTail(frameID)
	r.size++
}

// Size returns the number of frames currently tracked (evictable).
func (r *LRUReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
