package structures

import (
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
	log "log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// HeapFile stores the tuples of one table, unordered, in consecutive pages of a flat file. Page n occupies bytes
// [n*PageSize, (n+1)*PageSize) and there is nothing else in the file.
type HeapFile struct {
	path    string
	file    *os.File
	schema  *catalog.Schema
	tableID int32
	cache   PageCache

	// serializes appends so that two growing reads cannot pick the same page number
	lock sync.Mutex
}

// OpenHeapFile opens the file at path, creating it empty if it does not exist. Pages are fetched through cache
// whenever tuples are inserted, deleted or scanned.
func OpenHeapFile(path string, schema *catalog.Schema, cache PageCache) (*HeapFile, error) {
	if pages.NumSlots(schema.Size(), common.PageSize()) == 0 {
		return nil, common.Errorf(common.SchemaMismatchError, "open heap file", "tuples of %d bytes do not fit in a page of %d bytes", schema.Size(), common.PageSize())
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, common.NewError(common.IOError, "open heap file", errors.Wrapf(err, "open %s", path))
	}

	canonical, err := CanonicalPath(path)
	if err != nil {
		_ = f.Close()
		return nil, common.NewError(common.IOError, "open heap file", errors.Wrapf(err, "resolve %s", path))
	}

	return &HeapFile{
		path:    canonical,
		file:    f,
		schema:  schema,
		tableID: stringHash(canonical) % common.TableIDModulus,
		cache:   cache,
	}, nil
}

func (f *HeapFile) TableID() int32 {
	return f.tableID
}

func (f *HeapFile) Schema() *catalog.Schema {
	return f.schema
}

// Path returns the canonical absolute path of the backing file.
func (f *HeapFile) Path() string {
	return f.path
}

// PageCount returns the number of whole pages currently in the file. It is computed from the file size on every
// call.
func (f *HeapFile) PageCount() (int, error) {
	stat, err := f.file.Stat()
	if err != nil {
		return 0, common.NewError(common.IOError, "page count", errors.Wrapf(err, "stat %s", f.path))
	}
	return int(stat.Size() / int64(common.PageSize())), nil
}

// ReadPage reads page pid from disk. Requesting a page at or after the end of the file appends one empty page
// and returns it, so the returned page's number is the old page count rather than pid.PageNo in that case.
func (f *HeapFile) ReadPage(pid common.PageID) (pages.IPage, error) {
	if err := f.checkPageID(pid, "read page"); err != nil {
		return nil, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	count, err := f.PageCount()
	if err != nil {
		return nil, err
	}

	pageSize := common.PageSize()
	if pid.PageNo >= count {
		newPid := common.NewPageID(f.tableID, count)
		data := pages.CreateEmptyPageData()
		if _, err := f.file.WriteAt(data, int64(count)*int64(pageSize)); err != nil {
			return nil, common.NewError(common.IOError, "read page", errors.Wrapf(err, "append page %v to %s", newPid, f.path))
		}

		log.Debug("heap file grown", "path", f.path, "requested", pid.PageNo, "page", count)
		return pages.NewEmptyHeapPage(newPid, f.schema), nil
	}

	data := make([]byte, pageSize)
	if _, err := f.file.ReadAt(data, int64(pid.PageNo)*int64(pageSize)); err != nil {
		return nil, common.NewError(common.IOError, "read page", errors.Wrapf(err, "read page %v of %s", pid, f.path))
	}

	return pages.NewHeapPage(pid, data, f.schema)
}

// WritePage writes the page's bytes at its position in the file. Writing the same page twice leaves the file as
// writing it once.
func (f *HeapFile) WritePage(page pages.IPage) error {
	pid := page.GetPageId()
	if err := f.checkPageID(pid, "write page"); err != nil {
		return err
	}

	data, err := page.GetData()
	if err != nil {
		return err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if _, err := f.file.WriteAt(data, int64(pid.PageNo)*int64(common.PageSize())); err != nil {
		return common.NewError(common.IOError, "write page", errors.Wrapf(err, "write page %v of %s", pid, f.path))
	}
	return nil
}

// InsertTuple puts t into the first page with an empty slot, appending a page if every page is full, and sets
// t's record id. It returns the pages it modified. Pages are only read through the cache, nothing is written to
// disk except the appended empty page.
func (f *HeapFile) InsertTuple(txn transaction.TxnID, t *catalog.Tuple) ([]pages.IPage, error) {
	if !f.schema.Equals(t.Schema()) {
		return nil, common.Errorf(common.SchemaMismatchError, "insert tuple", "tuple schema %v does not match table schema %v", t.Schema(), f.schema)
	}

	count, err := f.PageCount()
	if err != nil {
		return nil, err
	}

	releaser, canRelease := f.cache.(pageReleaser)
	for i := 0; i < count; i++ {
		pid := common.NewPageID(f.tableID, i)
		heldBefore := canRelease && releaser.HoldsLock(txn, pid)

		hp, err := f.fetch(txn, pid, transaction.ReadOnly)
		if err != nil {
			return nil, err
		}

		if hp.NumEmptySlots() > 0 {
			if hp, err = f.fetch(txn, pid, transaction.ReadWrite); err != nil {
				return nil, err
			}

			err := hp.InsertTuple(t)
			if err == nil {
				return []pages.IPage{hp}, nil
			}
			if !errors.Is(err, pages.ErrPageFull) {
				return nil, err
			}
			// filled up while the lock was being upgraded, the exclusive lock is kept until the end
			continue
		}

		if canRelease && !heldBefore {
			releaser.ReleasePage(txn, pid)
		}
	}

	hp, err := f.fetch(txn, common.NewPageID(f.tableID, count), transaction.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := hp.InsertTuple(t); err != nil {
		return nil, err
	}
	return []pages.IPage{hp}, nil
}

// DeleteTuple empties the slot of t's record id and returns the modified page.
func (f *HeapFile) DeleteTuple(txn transaction.TxnID, t *catalog.Tuple) ([]pages.IPage, error) {
	if !f.schema.Equals(t.Schema()) {
		return nil, common.Errorf(common.SchemaMismatchError, "delete tuple", "tuple schema %v does not match table schema %v", t.Schema(), f.schema)
	}

	rid := t.RecordID()
	if rid == nil {
		return nil, common.Errorf(common.StateError, "delete tuple", "tuple has no record id")
	}
	if rid.TableID != f.tableID {
		return nil, common.Errorf(common.SchemaMismatchError, "delete tuple", "tuple belongs to table %d, not %d", rid.TableID, f.tableID)
	}

	count, err := f.PageCount()
	if err != nil {
		return nil, err
	}
	if rid.PageNo < 0 || rid.PageNo >= count {
		return nil, common.Errorf(common.StateError, "delete tuple", "page %v does not exist", rid.PageID)
	}

	hp, err := f.fetch(txn, rid.PageID, transaction.ReadWrite)
	if err != nil {
		return nil, err
	}
	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []pages.IPage{hp}, nil
}

// Sync commits the file's written pages to stable storage.
func (f *HeapFile) Sync() error {
	if err := f.file.Sync(); err != nil {
		return common.NewError(common.IOError, "sync heap file", errors.Wrapf(err, "sync %s", f.path))
	}
	return nil
}

// Iterator returns a closed iterator over every tuple of the file on behalf of txn.
func (f *HeapFile) Iterator(txn transaction.TxnID) *HeapFileIterator {
	return newHeapFileIterator(f, txn)
}

// Close closes the backing file. Cached pages of the file are not affected.
func (f *HeapFile) Close() error {
	if err := f.file.Close(); err != nil {
		return common.NewError(common.IOError, "close heap file", errors.Wrapf(err, "close %s", f.path))
	}
	return nil
}

func (f *HeapFile) fetch(txn transaction.TxnID, pid common.PageID, perm transaction.Permissions) (*pages.HeapPage, error) {
	page, err := f.cache.GetPage(txn, pid, perm)
	if err != nil {
		return nil, err
	}

	hp, ok := page.(*pages.HeapPage)
	if !ok {
		return nil, common.Errorf(common.StateError, "fetch page", "page %v is not a heap page", pid)
	}
	return hp, nil
}

func (f *HeapFile) checkPageID(pid common.PageID, op string) error {
	if pid.TableID != f.tableID {
		return common.Errorf(common.StateError, op, "page %v belongs to table %d, not %d", pid, pid.TableID, f.tableID)
	}
	if pid.PageNo < 0 {
		return common.Errorf(common.StateError, op, "negative page number in %v", pid)
	}
	return nil
}
