// Package buffer implements the page-oriented buffer pool the hash
// index is built on: a fixed set of in-memory frames backing a
// directio-aligned database file, with an LRUReplacer choosing which
// unpinned frame to evict when every frame is in use.
package buffer

import (
	"io"
	"os"
	"strings"
	"sync"

	"xhash/pkg/config"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRanOutOfPages is returned when every frame is pinned and so no
// frame is available to hold a newly requested or newly created page.
var ErrRanOutOfPages = errors.New("no available pages")

// BufferPool manages a fixed-size pool of page frames backed by a
// single database file.
type BufferPool struct {
	file     *os.File
	numPages int32

	frames    []Page
	freeList  []FrameID
	pageTable map[int32]FrameID
	replacer  *LRUReplacer

	mtx sync.Mutex
	log *logrus.Entry
}

// New constructs a new BufferPool, backing it with a database file at
// the specified path. See [*BufferPool.Open] for details on how the
// file is (re)opened.
func New(filePath string) (*BufferPool, error) {
	pool := &BufferPool{
		pageTable: make(map[int32]FrameID),
		replacer:  NewLRUReplacer(config.MaxPagesInBuffer),
		log:       logrus.WithField("component", "buffer"),
	}
	pool.frames = make([]Page, config.MaxPagesInBuffer)
	backing := directio.AlignedBlock(int(PageSize) * config.MaxPagesInBuffer)
	for i := range pool.frames {
		frame := backing[i*int(PageSize) : (i+1)*int(PageSize)]
		pool.frames[i] = Page{pool: pool, pageID: InvalidPageID, frameID: FrameID(i), data: frame}
		pool.freeList = append(pool.freeList, FrameID(i))
	}
	if err := pool.Open(filePath); err != nil {
		return nil, err
	}
	return pool, nil
}

// GetFileName returns the path of the file backing this pool.
func (pool *BufferPool) GetFileName() string {
	return pool.file.Name()
}

// GetNumPages returns the number of pages ever allocated from this pool.
func (pool *BufferPool) GetNumPages() int32 {
	return pool.numPages
}

// Open (re-)initializes the pool with a database file at filePath,
// creating it (and any missing parent directories) if it didn't exist.
func (pool *BufferPool) Open(filePath string) (err error) {
	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		if err = os.MkdirAll(filePath[:idx], 0775); err != nil {
			return errors.Wrap(err, "creating parent directories")
		}
	}
	pool.file, err = directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return errors.Wrap(err, "opening backing file")
	}
	info, err := pool.file.Stat()
	if err != nil {
		return errors.Wrap(err, "statting backing file")
	}
	if info.Size()%int64(PageSize) != 0 {
		return errors.New("database file size is not page-aligned: corrupted")
	}
	pool.numPages = int32(info.Size() / int64(PageSize))
	return nil
}

// Close flushes every dirty frame to disk and closes the backing file.
// Returns an error if any page is still pinned.
func (pool *BufferPool) Close() error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	for pageID, frameID := range pool.pageTable {
		if pool.frames[frameID].pinCount.Load() > 0 {
			return errors.Errorf("page %d is still pinned on close", pageID)
		}
	}
	if err := pool.flushAllLocked(); err != nil {
		return err
	}
	return pool.file.Close()
}

func (pool *BufferPool) fillFromDisk(page *Page) error {
	if _, err := pool.file.Seek(int64(page.pageID)*int64(PageSize), io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking to page")
	}
	if _, err := pool.file.Read(page.data); err != nil && err != io.EOF {
		return errors.Wrap(err, "reading page from disk")
	}
	return nil
}

// acquireFrame returns a frame ready to host pageID, evicting via the
// LRUReplacer if no frame is free. pool.mtx must be held.
func (pool *BufferPool) acquireFrame(pageID int32) (*Page, error) {
	var frameID FrameID
	if n := len(pool.freeList); n > 0 {
		frameID = pool.freeList[n-1]
		pool.freeList = pool.freeList[:n-1]
	} else if victim, ok := pool.replacer.Victim(); ok {
		frameID = victim
		victimPage := &pool.frames[frameID]
		if victimPage.dirty {
			pool.flushLocked(victimPage)
		}
		delete(pool.pageTable, victimPage.pageID)
		pool.log.WithField("evicted_page", victimPage.pageID).Debug("evicting frame for new page")
	} else {
		pool.log.Warn("every frame is pinned, no frame to evict")
		return nil, ErrRanOutOfPages
	}
	page := &pool.frames[frameID]
	page.pageID = pageID
	page.dirty = false
	page.pinCount.Store(1)
	pool.pageTable[pageID] = frameID
	pool.replacer.Pin(frameID)
	return page, nil
}

// NewPage allocates and pins a fresh page with the next available id.
func (pool *BufferPool) NewPage() (*Page, error) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	page, err := pool.acquireFrame(pool.numPages)
	if err != nil {
		return nil, err
	}
	page.dirty = true
	pool.numPages++
	return page, nil
}

// FetchPage pins and returns the page with the given id, reading it in
// from disk if it isn't already buffered.
func (pool *BufferPool) FetchPage(pageID int32) (*Page, error) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	if pageID < 0 || pageID >= pool.numPages {
		return nil, errors.Errorf("invalid page id %d", pageID)
	}
	if frameID, ok := pool.pageTable[pageID]; ok {
		page := &pool.frames[frameID]
		if page.pinCount.Add(1) == 1 {
			pool.replacer.Pin(frameID)
		}
		return page, nil
	}
	page, err := pool.acquireFrame(pageID)
	if err != nil {
		return nil, err
	}
	if err := pool.fillFromDisk(page); err != nil {
		delete(pool.pageTable, pageID)
		pool.freeList = append(pool.freeList, page.frameID)
		return nil, err
	}
	return page, nil
}

// UnpinPage decrements page's pin count, marking it dirty if isDirty is
// true (the dirty flag is only ever OR'd in, never cleared here).
// Once the pin count reaches zero the frame becomes eligible for
// eviction.
func (pool *BufferPool) UnpinPage(pageID int32, isDirty bool) error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	frameID, ok := pool.pageTable[pageID]
	if !ok {
		return errors.Errorf("page %d is not buffered", pageID)
	}
	page := &pool.frames[frameID]
	if isDirty {
		page.dirty = true
	}
	remaining := page.pinCount.Add(-1)
	if remaining < 0 {
		return errors.Errorf("pin count for page %d is negative", pageID)
	}
	if remaining == 0 {
		pool.replacer.Unpin(frameID)
	}
	return nil
}

// DeletePage releases pageID's frame back to the pool. The page must
// have a pin count of zero.
func (pool *BufferPool) DeletePage(pageID int32) error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	frameID, ok := pool.pageTable[pageID]
	if !ok {
		return nil
	}
	page := &pool.frames[frameID]
	if page.pinCount.Load() != 0 {
		return errors.Errorf("cannot delete pinned page %d", pageID)
	}
	pool.replacer.Pin(frameID) // remove from eviction queue, if present
	delete(pool.pageTable, pageID)
	page.pageID = InvalidPageID
	page.dirty = false
	pool.freeList = append(pool.freeList, frameID)
	return nil
}

func (pool *BufferPool) flushLocked(page *Page) {
	if !page.dirty {
		return
	}
	if _, err := pool.file.WriteAt(page.data, int64(page.pageID)*int64(PageSize)); err != nil {
		pool.log.WithError(err).WithField("page", page.pageID).Error("failed to flush page")
		return
	}
	page.dirty = false
}

// FlushPage flushes a single page's data to disk if dirty.
func (pool *BufferPool) FlushPage(pageID int32) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	if frameID, ok := pool.pageTable[pageID]; ok {
		pool.flushLocked(&pool.frames[frameID])
	}
}

// flushAllLocked flushes every buffered dirty page. pool.mtx must be held.
func (pool *BufferPool) flushAllLocked() error {
	var grp errgroup.Group
	for _, frameID := range pool.pageTable {
		page := &pool.frames[frameID]
		grp.Go(func() error {
			pool.flushLocked(page)
			return nil
		})
	}
	return grp.Wait()
}

// FlushAllPages concurrently flushes every dirty buffered page to disk.
func (pool *BufferPool) FlushAllPages() error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	return pool.flushAllLocked()
}
