package buffer

import (
	"errors"
	"fmt"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/locker"
	"heapdb/transaction"
	log "log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNoEvictablePage is returned when a page has to be brought into a pool whose every frame holds a dirty page.
var ErrNoEvictablePage = &common.StorageError{Kind: common.StateError, Op: "get page", Err: errors.New("every frame holds a dirty page")}

// DbFile is a file the pool reads pages from and writes dirty pages back to.
type DbFile interface {
	ReadPage(pid common.PageID) (pages.IPage, error)
	WritePage(page pages.IPage) error
	Sync() error
	InsertTuple(txn transaction.TxnID, t *catalog.Tuple) ([]pages.IPage, error)
	DeleteTuple(txn transaction.TxnID, t *catalog.Tuple) ([]pages.IPage, error)
}

// FileResolver finds the file of a table.
type FileResolver interface {
	GetDbFile(tableID int32) (DbFile, error)
}

type frame struct {
	page pages.IPage
}

// BufferPool caches a bounded number of pages and hands out at most one instance per page id. Every page is
// returned with a lock of the lock manager held by the requesting transaction: shared for read only access and
// exclusive for read write access. Locks are kept until the transaction completes.
//
// Dirty pages are never evicted, they stay in the pool until their transaction commits and they are written to
// disk, or aborts and they are replaced by their before images. Clean pages are evicted by the replacer.
type BufferPool struct {
	poolSize    int
	frames      []*frame
	pageMap     map[common.PageID]int // page id => frame index which keeps that page
	emptyFrames []int                 // list of indexes that points to empty frames in the pool
	Replacer    IReplacer

	// SyncOnCommit makes commits wait until the written pages are on stable storage.
	SyncOnCommit bool

	files       FileResolver
	locks       *locker.LockManager
	loads       singleflight.Group
	lock        sync.Mutex
}

// NewBufferPool creates a pool of poolSize frames using a clock replacer.
func NewBufferPool(poolSize int, files FileResolver, locks *locker.LockManager) *BufferPool {
	return NewBufferPoolWithReplacer(poolSize, files, locks, NewClockReplacer(poolSize))
}

// NewBufferPoolWithReplacer creates a pool of poolSize frames. replacer must track poolSize frames, all pinned.
func NewBufferPoolWithReplacer(poolSize int, files FileResolver, locks *locker.LockManager, replacer IReplacer) *BufferPool {
	emptyFrames := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		emptyFrames[i] = i
	}

	return &BufferPool{
		poolSize:    poolSize,
		frames:      make([]*frame, poolSize),
		pageMap:     map[common.PageID]int{},
		emptyFrames: emptyFrames,
		Replacer:    replacer,
		files:       files,
		locks:       locks,
	}
}

// GetPage returns page pid after acquiring the lock perm requires for txn. A page that is not cached is read
// from its table's file, evicting a clean page if the pool is full. Concurrent misses of the same page share
// one read.
//
// Asking for a page at or after the end of its file makes the file grow by one page, and the page is cached
// under the id of the page that was appended.
func (b *BufferPool) GetPage(txn transaction.TxnID, pid common.PageID, perm transaction.Permissions) (pages.IPage, error) {
	mode := locker.SharedLock
	if perm == transaction.ReadWrite {
		mode = locker.ExclusiveLock
	}

	if err := b.locks.AcquireLock(pid, txn, mode); err != nil {
		if errors.Is(err, locker.ErrDeadLock) {
			return nil, fmt.Errorf("%w: %w", transaction.ErrAborted, err)
		}
		return nil, err
	}

	b.lock.Lock()
	if frameIdx, ok := b.pageMap[pid]; ok {
		b.Replacer.Touch(frameIdx)
		p := b.frames[frameIdx].page
		b.lock.Unlock()
		return p, nil
	}
	b.lock.Unlock()

	p, err, _ := b.loads.Do(pid.String(), func() (interface{}, error) {
		return b.load(pid)
	})
	if err != nil {
		return nil, err
	}
	return p.(pages.IPage), nil
}

// load reads pid into a free or evicted frame. The frame is pinned while the read is in progress.
func (b *BufferPool) load(pid common.PageID) (pages.IPage, error) {
	b.lock.Lock()
	// another load may have completed since the caller missed
	if frameIdx, ok := b.pageMap[pid]; ok {
		p := b.frames[frameIdx].page
		b.lock.Unlock()
		return p, nil
	}

	frameIdx, err := b.reserveFrame()
	b.lock.Unlock()
	if err != nil {
		return nil, err
	}

	p, err := b.readPage(pid)

	b.lock.Lock()
	defer b.lock.Unlock()

	if err != nil {
		b.emptyFrames = append(b.emptyFrames, frameIdx)
		return nil, err
	}

	// a grown file returns a page under another id, which may have been loaded meanwhile
	if existing, ok := b.pageMap[p.GetPageId()]; ok {
		b.emptyFrames = append(b.emptyFrames, frameIdx)
		return b.frames[existing].page, nil
	}

	b.frames[frameIdx] = &frame{page: p}
	b.pageMap[p.GetPageId()] = frameIdx
	b.Replacer.Unpin(frameIdx)
	return p, nil
}

func (b *BufferPool) readPage(pid common.PageID) (pages.IPage, error) {
	file, err := b.files.GetDbFile(pid.TableID)
	if err != nil {
		return nil, err
	}
	return file.ReadPage(pid)
}

// reserveFrame returns a pinned frame that holds no page, evicting a clean page if there is no empty frame.
// It must be called with the pool lock held.
func (b *BufferPool) reserveFrame() (int, error) {
	if len(b.emptyFrames) > 0 {
		emptyFrameIdx := b.emptyFrames[0]
		b.emptyFrames = b.emptyFrames[1:]
		return emptyFrameIdx, nil
	}

	victimFrameIdx, err := b.Replacer.ChooseVictim()
	if err != nil {
		return 0, ErrNoEvictablePage
	}

	victim := b.frames[victimFrameIdx]
	if _, dirty := victim.page.IsDirty(); dirty {
		panic(fmt.Sprintf("a dirty page is chosen as victim, page_id: %v", victim.page.GetPageId()))
	}

	// pin evicting frame to avoid replacer to pick it up again before io completes.
	b.Replacer.Pin(victimFrameIdx)
	delete(b.pageMap, victim.page.GetPageId())
	b.frames[victimFrameIdx] = nil

	log.Debug("page evicted", "page", victim.page.GetPageId().String(), "frame", victimFrameIdx)
	return victimFrameIdx, nil
}

// ReleasePage gives up txn's lock on pid before the transaction completes. It does nothing if txn does not
// hold a lock on pid.
func (b *BufferPool) ReleasePage(txn transaction.TxnID, pid common.PageID) {
	if b.locks.HoldsLock(pid, txn) {
		b.locks.ReleaseLock(pid, txn)
	}
}

// HoldsLock reports whether txn holds a lock on pid.
func (b *BufferPool) HoldsLock(txn transaction.TxnID, pid common.PageID) bool {
	return b.locks.HoldsLock(pid, txn)
}

// InsertTuple adds t to the table on behalf of txn. The pages the table modifies are marked dirty by txn and
// kept in the pool.
func (b *BufferPool) InsertTuple(txn transaction.TxnID, tableID int32, t *catalog.Tuple) error {
	file, err := b.files.GetDbFile(tableID)
	if err != nil {
		return err
	}

	dirtied, err := file.InsertTuple(txn, t)
	if err != nil {
		return err
	}
	return b.markDirty(txn, dirtied)
}

// DeleteTuple removes t, located by its record id, from its table on behalf of txn.
func (b *BufferPool) DeleteTuple(txn transaction.TxnID, t *catalog.Tuple) error {
	rid := t.RecordID()
	if rid == nil {
		return common.Errorf(common.StateError, "delete tuple", "tuple has no record id")
	}

	file, err := b.files.GetDbFile(rid.TableID)
	if err != nil {
		return err
	}

	dirtied, err := file.DeleteTuple(txn, t)
	if err != nil {
		return err
	}
	return b.markDirty(txn, dirtied)
}

func (b *BufferPool) markDirty(txn transaction.TxnID, dirtied []pages.IPage) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, p := range dirtied {
		p.SetDirty(txn)

		frameIdx, ok := b.pageMap[p.GetPageId()]
		if !ok {
			var err error
			if frameIdx, err = b.reserveFrame(); err != nil {
				return err
			}
			b.pageMap[p.GetPageId()] = frameIdx
			b.frames[frameIdx] = &frame{}
		}

		b.frames[frameIdx].page = p
		b.Replacer.Pin(frameIdx)
	}
	return nil
}

// FlushPage writes pid to disk if it is cached and dirty and marks it clean. Flushing a page of a running
// transaction lets its changes reach the disk before it commits.
func (b *BufferPool) FlushPage(pid common.PageID) error {
	b.lock.Lock()
	frameIdx, ok := b.pageMap[pid]
	if !ok {
		b.lock.Unlock()
		return nil
	}

	// dirty frames are pinned, so the frame keeps the page during io
	p := b.frames[frameIdx].page
	b.lock.Unlock()

	if _, dirty := p.IsDirty(); !dirty {
		return nil
	}

	file, err := b.files.GetDbFile(pid.TableID)
	if err != nil {
		return err
	}
	if err := file.WritePage(p); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	// the page may have been discarded or restored during io
	if f := b.frames[frameIdx]; f != nil && f.page == p {
		if _, dirty := p.IsDirty(); dirty {
			p.SetClean()
			b.Replacer.Unpin(frameIdx)
		}
	}

	log.Debug("page flushed", "page", pid.String())
	return nil
}

// FlushPages writes every page dirtied by txn to disk.
func (b *BufferPool) FlushPages(txn transaction.TxnID) error {
	for _, pid := range b.dirtiedBy(txn) {
		if err := b.FlushPage(pid); err != nil {
			return err
		}
	}
	return nil
}

// FlushAllPages writes every dirty page to disk. Pages of running transactions are written as well.
func (b *BufferPool) FlushAllPages() error {
	b.lock.Lock()
	pooledPages := make([]common.PageID, 0, len(b.pageMap))
	for pid := range b.pageMap {
		pooledPages = append(pooledPages, pid)
	}
	b.lock.Unlock()

	for _, pid := range pooledPages {
		if err := b.FlushPage(pid); err != nil {
			return err
		}
	}
	return nil
}

// DiscardPage drops pid from the pool without writing it.
func (b *BufferPool) DiscardPage(pid common.PageID) {
	b.lock.Lock()
	defer b.lock.Unlock()

	frameIdx, ok := b.pageMap[pid]
	if !ok {
		return
	}

	// empty frames stay pinned until a page is loaded into them
	b.Replacer.Pin(frameIdx)
	delete(b.pageMap, pid)
	b.frames[frameIdx] = nil
	b.emptyFrames = append(b.emptyFrames, frameIdx)
}

// TransactionComplete ends txn. On commit the pages it dirtied are written to disk and become the before images
// of later transactions. On abort they are replaced by their before images. In both cases every lock of txn is
// released, even if flushing fails.
func (b *BufferPool) TransactionComplete(txn transaction.TxnID, commit bool) error {
	defer b.locks.ReleaseLocks(txn)

	if commit {
		written := map[int32]bool{}
		for _, pid := range b.dirtiedBy(txn) {
			p, ok := b.cached(pid)
			if !ok {
				continue
			}
			if err := b.FlushPage(pid); err != nil {
				return err
			}
			if err := p.SetBeforeImage(); err != nil {
				return err
			}
			written[pid.TableID] = true
		}

		if b.SyncOnCommit {
			for tableID := range written {
				file, err := b.files.GetDbFile(tableID)
				if err != nil {
					return err
				}
				if err := file.Sync(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, pid := range b.dirtiedBy(txn) {
		if err := b.restore(txn, pid); err != nil {
			return err
		}
	}
	return nil
}

func (b *BufferPool) restore(txn transaction.TxnID, pid common.PageID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	frameIdx, ok := b.pageMap[pid]
	if !ok {
		return nil
	}

	p := b.frames[frameIdx].page
	if dirtier, dirty := p.IsDirty(); !dirty || dirtier != txn {
		return nil
	}

	before, err := p.GetBeforeImage()
	if err != nil {
		return err
	}

	b.frames[frameIdx].page = before
	b.Replacer.Unpin(frameIdx)
	return nil
}

func (b *BufferPool) cached(pid common.PageID) (pages.IPage, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()

	frameIdx, ok := b.pageMap[pid]
	if !ok {
		return nil, false
	}
	return b.frames[frameIdx].page, true
}

func (b *BufferPool) dirtiedBy(txn transaction.TxnID) []common.PageID {
	b.lock.Lock()
	defer b.lock.Unlock()

	res := make([]common.PageID, 0)
	for pid, frameIdx := range b.pageMap {
		if dirtier, dirty := b.frames[frameIdx].page.IsDirty(); dirty && dirtier == txn {
			res = append(res, pid)
		}
	}
	return res
}

// NumCachedPages returns how many pages are in the pool.
func (b *BufferPool) NumCachedPages() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.pageMap)
}

// EmptyFrameSize returns the number of frames which do not hold any page.
func (b *BufferPool) EmptyFrameSize() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.emptyFrames)
}
