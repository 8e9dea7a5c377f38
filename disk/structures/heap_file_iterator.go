package structures

import (
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

type iteratorState int

const (
	iteratorClosed iteratorState = iota
	iteratorOpen
	iteratorExhausted
)

func (s iteratorState) String() string {
	switch s {
	case iteratorClosed:
		return "closed"
	case iteratorOpen:
		return "open"
	case iteratorExhausted:
		return "exhausted"
	}
	return "unknown"
}

// HeapFileIterator walks every tuple of a heap file, page by page in page number order and slot by slot within
// a page. Pages are fetched read-only through the file's cache one at a time, when the previous page runs out.
// It is not safe for concurrent use.
type HeapFileIterator struct {
	file  *HeapFile
	txn   transaction.TxnID
	state iteratorState

	// number of the next page to fetch
	nextPage int
	tuples   *pages.TupleIterator
}

func newHeapFileIterator(file *HeapFile, txn transaction.TxnID) *HeapFileIterator {
	return &HeapFileIterator{
		file:  file,
		txn:   txn,
		state: iteratorClosed,
	}
}

// Open positions the iterator before the first tuple and fetches page 0 read-only. A fetch failure is returned
// and leaves the iterator closed.
func (it *HeapFileIterator) Open() error {
	if it.state != iteratorClosed {
		return common.Errorf(common.StateError, "open", "iterator is already %v", it.state)
	}

	hp, err := it.file.fetch(it.txn, common.NewPageID(it.file.tableID, 0), transaction.ReadOnly)
	if err != nil {
		it.Close()
		return err
	}

	it.state = iteratorOpen
	it.tuples = hp.Iterator()
	it.nextPage = 1
	return nil
}

// HasNext reports whether Next would return a tuple, fetching following pages as needed. It returns false
// when the iterator is not open.
func (it *HeapFileIterator) HasNext() (bool, error) {
	if it.state != iteratorOpen {
		return false, nil
	}

	for it.tuples == nil || !it.tuples.HasNext() {
		count, err := it.file.PageCount()
		if err != nil {
			return false, err
		}
		if it.nextPage >= count {
			it.state = iteratorExhausted
			it.tuples = nil
			return false, nil
		}

		hp, err := it.file.fetch(it.txn, common.NewPageID(it.file.tableID, it.nextPage), transaction.ReadOnly)
		if err != nil {
			return false, err
		}
		it.tuples = hp.Iterator()
		it.nextPage++
	}

	return true, nil
}

// Next returns the next tuple or common.ErrNoSuchElement when there is none left or the iterator is not open.
func (it *HeapFileIterator) Next() (*catalog.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNoSuchElement
	}
	return it.tuples.Next()
}

// Rewind starts the iteration over from the first page.
func (it *HeapFileIterator) Rewind() error {
	it.Close()
	return it.Open()
}

// Close releases the iterator's position. Closing a closed iterator does nothing.
func (it *HeapFileIterator) Close() {
	it.state = iteratorClosed
	it.tuples = nil
	it.nextPage = 0
}
