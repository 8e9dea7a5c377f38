package pages

import (
	"errors"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/transaction"
	"sync"
)

/**
 * Heap page format:
 *  --------------------------------------------------------------
 *  | HEADER | SLOT_0 | SLOT_1 | ... | SLOT_(n-1) | UNUSED ZEROS |
 *  --------------------------------------------------------------
 *
 *  HEADER is a bitmap of ceil(n/8) bytes, bit i (least significant first in each byte) is set iff slot i holds a
 *  tuple. Every slot is schema.Size() bytes and holds the tuple's fields back to back. n is the largest slot count
 *  such that header and slots fit in a page, n = floor(8*PageSize / (8*tupleSize + 1)).
 */

var ErrPageFull = &common.StorageError{Kind: common.StateError, Op: "insert tuple", Err: errors.New("no empty slot on page")}

// NumSlots returns how many tuples of tupleSize bytes fit on a page of pageSize bytes together with one header bit
// per tuple.
func NumSlots(tupleSize, pageSize int) int {
	return (pageSize * 8) / (tupleSize*8 + 1)
}

// HeaderSize returns the number of bitmap bytes needed for numSlots slots.
func HeaderSize(numSlots int) int {
	return (numSlots + 7) / 8
}

var _ IPage = &HeapPage{}

// HeapPage is the decoded form of one page of a heap file. Tuples are kept decoded, one per occupied slot.
type HeapPage struct {
	pid      common.PageID
	schema   *catalog.Schema
	header   []byte
	tuples   []*catalog.Tuple
	numSlots int

	dirtier     transaction.TxnID
	dirty       bool
	beforeImage []byte

	rwLatch sync.RWMutex
}

// NewHeapPage decodes data, which must be exactly common.PageSize() bytes, as the page pid of a file with the given
// schema.
func NewHeapPage(pid common.PageID, data []byte, schema *catalog.Schema) (*HeapPage, error) {
	pageSize := common.PageSize()
	if len(data) != pageSize {
		return nil, common.Errorf(common.FormatError, "decode page", "page %v has %d bytes, page size is %d", pid, len(data), pageSize)
	}

	numSlots := NumSlots(schema.Size(), pageSize)
	headerSize := HeaderSize(numSlots)
	hp := &HeapPage{
		pid:      pid,
		schema:   schema,
		header:   append([]byte(nil), data[:headerSize]...),
		tuples:   make([]*catalog.Tuple, numSlots),
		numSlots: numSlots,
	}

	// bits after the last slot must be clear, otherwise the bitmap is corrupt
	for i := numSlots; i < headerSize*8; i++ {
		if hp.isSlotUsed(i) {
			return nil, common.Errorf(common.FormatError, "decode page", "page %v has header bit %d set but only %d slots", pid, i, numSlots)
		}
	}

	tupleSize := schema.Size()
	for i := 0; i < numSlots; i++ {
		if !hp.isSlotUsed(i) {
			continue
		}

		offset := headerSize + i*tupleSize
		t, err := catalog.DeserializeTuple(schema, data[offset:offset+tupleSize])
		if err != nil {
			return nil, common.Errorf(common.FormatError, "decode page", "page %v slot %d: %v", pid, i, err)
		}
		rid := common.NewRecordID(pid, i)
		t.SetRecordID(&rid)
		hp.tuples[i] = t
	}

	hp.beforeImage = append([]byte(nil), data...)
	return hp, nil
}

// NewEmptyHeapPage returns a page without any tuples.
func NewEmptyHeapPage(pid common.PageID, schema *catalog.Schema) *HeapPage {
	hp, err := NewHeapPage(pid, CreateEmptyPageData(), schema)
	// an all zero page of the right size always decodes
	common.PanicIfErr(err)
	return hp
}

func (hp *HeapPage) GetPageId() common.PageID {
	return hp.pid
}

func (hp *HeapPage) Schema() *catalog.Schema {
	return hp.schema
}

func (hp *HeapPage) NumSlots() int {
	return hp.numSlots
}

func (hp *HeapPage) GetData() ([]byte, error) {
	hp.rwLatch.RLock()
	defer hp.rwLatch.RUnlock()

	return hp.encode()
}

func (hp *HeapPage) encode() ([]byte, error) {
	data := CreateEmptyPageData()
	headerSize := copy(data, hp.header)
	tupleSize := hp.schema.Size()

	for i, t := range hp.tuples {
		if t == nil {
			continue
		}

		offset := headerSize + i*tupleSize
		if err := t.Serialize(data[offset : offset+tupleSize]); err != nil {
			return nil, err
		}
	}

	return data, nil
}

func (hp *HeapPage) IsSlotUsed(i int) bool {
	hp.rwLatch.RLock()
	defer hp.rwLatch.RUnlock()

	return i >= 0 && i < hp.numSlots && hp.isSlotUsed(i)
}

func (hp *HeapPage) NumEmptySlots() int {
	hp.rwLatch.RLock()
	defer hp.rwLatch.RUnlock()

	n := 0
	for i := 0; i < hp.numSlots; i++ {
		if !hp.isSlotUsed(i) {
			n++
		}
	}
	return n
}

// InsertTuple places t in the first empty slot and sets t's record id accordingly. The page keeps its own copy
// of t.
func (hp *HeapPage) InsertTuple(t *catalog.Tuple) error {
	if !hp.schema.Equals(t.Schema()) {
		return common.Errorf(common.SchemaMismatchError, "insert tuple", "tuple schema %v does not match page schema %v", t.Schema(), hp.schema)
	}

	hp.rwLatch.Lock()
	defer hp.rwLatch.Unlock()

	for i := 0; i < hp.numSlots; i++ {
		if hp.isSlotUsed(i) {
			continue
		}

		// serialize once to make sure every field is set before the slot is taken
		if err := t.Serialize(make([]byte, hp.schema.Size())); err != nil {
			return err
		}

		rid := common.NewRecordID(hp.pid, i)
		t.SetRecordID(&rid)
		hp.tuples[i] = t.Clone()
		hp.setSlot(i, true)
		return nil
	}

	return ErrPageFull
}

// DeleteTuple empties the slot t's record id points to.
func (hp *HeapPage) DeleteTuple(t *catalog.Tuple) error {
	if !hp.schema.Equals(t.Schema()) {
		return common.Errorf(common.SchemaMismatchError, "delete tuple", "tuple schema %v does not match page schema %v", t.Schema(), hp.schema)
	}

	rid := t.RecordID()
	if rid == nil {
		return common.Errorf(common.StateError, "delete tuple", "tuple has no record id")
	}
	if rid.PageID != hp.pid {
		return common.Errorf(common.SchemaMismatchError, "delete tuple", "tuple is on page %v, not on %v", rid.PageID, hp.pid)
	}

	hp.rwLatch.Lock()
	defer hp.rwLatch.Unlock()

	if rid.SlotNo < 0 || rid.SlotNo >= hp.numSlots || !hp.isSlotUsed(rid.SlotNo) {
		return common.Errorf(common.StateError, "delete tuple", "slot %d of page %v is empty", rid.SlotNo, hp.pid)
	}

	hp.tuples[rid.SlotNo] = nil
	hp.setSlot(rid.SlotNo, false)
	return nil
}

// Iterator returns the occupied tuples of the page in slot order. The iterator works on copies taken at the time
// of the call, so it stays valid after the page is evicted or modified.
func (hp *HeapPage) Iterator() *TupleIterator {
	hp.rwLatch.RLock()
	defer hp.rwLatch.RUnlock()

	res := make([]*catalog.Tuple, 0, len(hp.tuples))
	for _, t := range hp.tuples {
		if t != nil {
			res = append(res, t.Clone())
		}
	}
	return &TupleIterator{tuples: res}
}

func (hp *HeapPage) IsDirty() (transaction.TxnID, bool) {
	hp.rwLatch.RLock()
	defer hp.rwLatch.RUnlock()

	return hp.dirtier, hp.dirty
}

func (hp *HeapPage) SetDirty(txn transaction.TxnID) {
	hp.rwLatch.Lock()
	defer hp.rwLatch.Unlock()

	hp.dirty = true
	hp.dirtier = txn
}

func (hp *HeapPage) SetClean() {
	hp.rwLatch.Lock()
	defer hp.rwLatch.Unlock()

	hp.dirty = false
	hp.dirtier = transaction.NullTxnID
}

func (hp *HeapPage) GetBeforeImage() (IPage, error) {
	hp.rwLatch.RLock()
	data := hp.beforeImage
	hp.rwLatch.RUnlock()

	before, err := NewHeapPage(hp.pid, data, hp.schema)
	if err != nil {
		return nil, err
	}
	return before, nil
}

func (hp *HeapPage) SetBeforeImage() error {
	hp.rwLatch.Lock()
	defer hp.rwLatch.Unlock()

	data, err := hp.encode()
	if err != nil {
		return err
	}
	hp.beforeImage = data
	return nil
}

func (hp *HeapPage) isSlotUsed(i int) bool {
	return hp.header[i/8]&(1<<(i%8)) != 0
}

func (hp *HeapPage) setSlot(i int, used bool) {
	if used {
		hp.header[i/8] |= 1 << (i % 8)
	} else {
		hp.header[i/8] &^= 1 << (i % 8)
	}
}

// TupleIterator is a forward only sequence over the tuples of one page.
type TupleIterator struct {
	tuples []*catalog.Tuple
	pos    int
}

func (it *TupleIterator) HasNext() bool {
	return it.pos < len(it.tuples)
}

func (it *TupleIterator) Next() (*catalog.Tuple, error) {
	if !it.HasNext() {
		return nil, common.ErrNoSuchElement
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}
