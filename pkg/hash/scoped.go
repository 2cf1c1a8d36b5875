package hash

import "xhash/pkg/buffer"

// scopedPage is a move-only handle on one pinned buffer-pool page: it
// is constructed by fetching/allocating the page and released by
// unpinning it with whatever dirty flag the caller accumulated via
// SetDirty, on every exit path. Go has no destructors, so callers use
// defer to guarantee the unpin instead.
type scopedPage struct {
	pool  *buffer.BufferPool
	id    int32
	raw   *buffer.Page
	dirty bool
}

// fetchScoped pins pageID via pool.FetchPage and wraps it.
func fetchScoped(pool *buffer.BufferPool, pageID int32) (*scopedPage, error) {
	raw, err := pool.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &scopedPage{pool: pool, id: pageID, raw: raw}, nil
}

// newScoped allocates a fresh page via pool.NewPage and wraps it,
// already dirty (a brand-new page always needs to be written out).
func newScoped(pool *buffer.BufferPool) (*scopedPage, error) {
	raw, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	return &scopedPage{pool: pool, id: raw.GetPageID(), raw: raw, dirty: true}, nil
}

// SetDirty ORs dirty into the handle's pending dirty flag; it is
// never cleared once set, matching the buffer pool's own UnpinPage
// semantics.
func (s *scopedPage) SetDirty(dirty bool) {
	s.dirty = s.dirty || dirty
}

// Release unpins the page exactly once with the accumulated dirty
// flag. Safe to call multiple times; only the first call has effect,
// so a deferred Release alongside an earlier explicit one is a no-op.
func (s *scopedPage) Release() error {
	if s.raw == nil {
		return nil
	}
	err := s.pool.UnpinPage(s.id, s.dirty)
	s.raw = nil
	return err
}
