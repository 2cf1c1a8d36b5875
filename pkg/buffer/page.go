package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"
)

// PageSize is the size, in bytes, of a single page. Matches the block
// size directio requires for aligned, unbuffered I/O.
const PageSize int32 = int32(directio.BlockSize)

// InvalidPageID is the reserved sentinel for "no page".
const InvalidPageID int32 = -1

// Page caches one page's worth of data from disk plus the bookkeeping
// the buffer pool needs to manage it.
type Page struct {
	pool     *BufferPool
	pageID   int32
	frameID  FrameID
	pinCount atomic.Int32
	dirty    bool
	rwlock   sync.RWMutex
	data     []byte
}

// GetPageID returns the page's id.
func (p *Page) GetPageID() int32 {
	return p.pageID
}

// GetData returns the byte slice holding the page's contents.
func (p *Page) GetData() []byte {
	return p.data
}

// IsDirty reports whether the page has been modified since it was last
// flushed.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirty marks (or clears) the page's dirty flag directly.
func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// Update copies size bytes from data into the page at the given offset
// and marks the page dirty.
func (p *Page) Update(data []byte, offset int32, size int32) {
	p.dirty = true
	copy(p.data[offset:offset+size], data)
}

// PinCount returns the page's current pin count, for diagnostics/tests.
func (p *Page) PinCount() int32 {
	return p.pinCount.Load()
}

// [CONCURRENCY] Grab a writer's latch on the page.
func (p *Page) WLock() {
	p.rwlock.Lock()
}

// [CONCURRENCY] Release a writer's latch on the page.
func (p *Page) WUnlock() {
	p.rwlock.Unlock()
}

// [CONCURRENCY] Grab a reader's latch on the page.
func (p *Page) RLock() {
	p.rwlock.RLock()
}

// [CONCURRENCY] Release a reader's latch on the page.
func (p *Page) RUnlock() {
	p.rwlock.RUnlock()
}
