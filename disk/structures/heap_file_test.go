package structures

import (
	"errors"
	"fmt"
	"heapdb/catalog"
	"heapdb/catalog/db_types"
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCache keeps every page it ever read, it never evicts nor locks anything.
type memoryCache struct {
	file    *HeapFile
	pages   map[common.PageID]pages.IPage
	fetches int
	err     error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{pages: map[common.PageID]pages.IPage{}}
}

func (c *memoryCache) GetPage(_ transaction.TxnID, pid common.PageID, _ transaction.Permissions) (pages.IPage, error) {
	if c.err != nil {
		return nil, c.err
	}

	c.fetches++
	if p, ok := c.pages[pid]; ok {
		return p, nil
	}

	p, err := c.file.ReadPage(pid)
	if err != nil {
		return nil, err
	}
	c.pages[p.GetPageId()] = p
	return p, nil
}

func (c *memoryCache) flush(t *testing.T) {
	for _, p := range c.pages {
		require.NoError(t, c.file.WritePage(p))
	}
}

func testSchema() *catalog.Schema {
	return catalog.MustSchema([]db_types.Type{db_types.IntType, db_types.CharType(20)}, []string{"id", "name"})
}

func testTuple(t *testing.T, schema *catalog.Schema, i int) *catalog.Tuple {
	tuple, err := catalog.NewTupleWithValues(schema, db_types.IntField(int32(i)), db_types.NewCharField(fmt.Sprintf("tuple_%v", i), 20))
	require.NoError(t, err)
	return tuple
}

func tempFile(t *testing.T) string {
	id, _ := uuid.NewUUID()
	return filepath.Join(t.TempDir(), id.String())
}

func openTestFile(t *testing.T, path string) (*HeapFile, *memoryCache) {
	cache := newMemoryCache()
	f, err := OpenHeapFile(path, testSchema(), cache)
	require.NoError(t, err)
	cache.file = f
	return f, cache
}

func scanAll(t *testing.T, it *HeapFileIterator) []*catalog.Tuple {
	res := make([]*catalog.Tuple, 0)
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return res
		}

		tuple, err := it.Next()
		require.NoError(t, err)
		res = append(res, tuple)
	}
}

func TestStringHash_Matches_Java_String_HashCode(t *testing.T) {
	assert.Equal(t, int32(0), stringHash(""))
	assert.Equal(t, int32(99162322), stringHash("hello"))
	assert.Equal(t, int32(-2147483648), stringHash("polygenelubricants"))
	// hashed as a surrogate pair
	assert.Equal(t, int32(1772899), stringHash("\U0001F600"))

	assert.Equal(t, int32(62322), stringHash("hello")%common.TableIDModulus)
	assert.Equal(t, int32(-83648), stringHash("polygenelubricants")%common.TableIDModulus)
}

func TestHeapFile_Table_ID_Is_Derived_From_Canonical_Path(t *testing.T) {
	path := tempFile(t)
	f, _ := openTestFile(t, path)
	defer f.Close()

	id, err := TableIDOf(path)
	require.NoError(t, err)
	assert.Equal(t, id, f.TableID())
	assert.Less(t, f.TableID(), int32(common.TableIDModulus))
	assert.Greater(t, f.TableID(), int32(-common.TableIDModulus))

	// a relative spelling of the same file gets the same id
	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, path)
	require.NoError(t, err)
	relID, err := TableIDOf(rel)
	require.NoError(t, err)
	assert.Equal(t, id, relID)
	assert.True(t, filepath.IsAbs(f.Path()))
}

func TestOpenHeapFile_Rejects_Schema_Larger_Than_A_Page(t *testing.T) {
	common.SetPageSize(512)
	defer common.ResetPageSize()

	schema := catalog.MustSchema([]db_types.Type{db_types.CharType(600)}, nil)
	_, err := OpenHeapFile(tempFile(t), schema, newMemoryCache())
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestHeapFile_Page_Count_Ignores_Partial_Page(t *testing.T) {
	path := tempFile(t)
	require.NoError(t, os.WriteFile(path, make([]byte, common.PageSize()*2+100), 0644))

	f, _ := openTestFile(t, path)
	defer f.Close()

	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestHeapFile_Read_Past_End_Appends_One_Empty_Page(t *testing.T) {
	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()

	p, err := f.ReadPage(common.NewPageID(f.TableID(), 5))
	require.NoError(t, err)
	assert.Equal(t, common.NewPageID(f.TableID(), 0), p.GetPageId())
	assert.Equal(t, p.(*pages.HeapPage).NumSlots(), p.(*pages.HeapPage).NumEmptySlots())

	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// now the page exists and is read back as it is
	p, err = f.ReadPage(common.NewPageID(f.TableID(), 0))
	require.NoError(t, err)
	assert.Equal(t, 0, p.GetPageId().PageNo)
	count, err = f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	p, err = f.ReadPage(common.NewPageID(f.TableID(), 1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.GetPageId().PageNo)
}

func TestHeapFile_Rejects_Foreign_Page_Ids(t *testing.T) {
	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()

	_, err := f.ReadPage(common.NewPageID(f.TableID()+1, 0))
	assert.ErrorIs(t, err, common.ErrState)

	_, err = f.ReadPage(common.NewPageID(f.TableID(), -1))
	assert.ErrorIs(t, err, common.ErrState)

	err = f.WritePage(pages.NewEmptyHeapPage(common.NewPageID(f.TableID()+1, 0), testSchema()))
	assert.ErrorIs(t, err, common.ErrState)
}

func TestHeapFile_Write_Page_Is_Idempotent(t *testing.T) {
	path := tempFile(t)
	f, _ := openTestFile(t, path)
	defer f.Close()

	hp := pages.NewEmptyHeapPage(common.NewPageID(f.TableID(), 1), testSchema())
	require.NoError(t, hp.InsertTuple(testTuple(t, testSchema(), 1)))

	require.NoError(t, f.WritePage(hp))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, f.WritePage(hp))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 2*common.PageSize())

	read, err := f.ReadPage(hp.GetPageId())
	require.NoError(t, err)
	data, err := hp.GetData()
	require.NoError(t, err)
	readData, err := read.GetData()
	require.NoError(t, err)
	assert.Equal(t, data, readData)
}

func TestHeapFile_Insert_And_Scan_Survive_Reopen(t *testing.T) {
	path := tempFile(t)
	f, cache := openTestFile(t, path)
	schema := testSchema()
	txn := transaction.NewTxnID()

	inserted := make([]*catalog.Tuple, 0)
	for i := 0; i < 50; i++ {
		tuple := testTuple(t, schema, i)
		dirtied, err := f.InsertTuple(txn, tuple)
		require.NoError(t, err)
		require.Len(t, dirtied, 1)
		assert.Equal(t, common.NewRecordID(common.NewPageID(f.TableID(), 0), i), *tuple.RecordID())
		inserted = append(inserted, tuple)
	}

	// 145 tuples of 28 bytes fit in a 4096 byte page
	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	cache.flush(t)
	require.NoError(t, f.Close())

	f, _ = openTestFile(t, path)
	defer f.Close()

	it := f.Iterator(txn)
	require.NoError(t, it.Open())
	found := scanAll(t, it)
	require.Len(t, found, 50)
	for i, tuple := range found {
		assert.True(t, inserted[i].Equals(tuple))
		assert.Equal(t, *inserted[i].RecordID(), *tuple.RecordID())
	}
	it.Close()

	// closing and reopening the iterator scans everything again
	require.NoError(t, it.Open())
	assert.Len(t, scanAll(t, it), 50)
}

func TestHeapFile_Scan_Spans_Pages_In_Order(t *testing.T) {
	common.SetPageSize(512)
	defer common.ResetPageSize()

	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()
	schema := testSchema()
	txn := transaction.NewTxnID()

	slots := pages.NumSlots(schema.Size(), 512)
	require.Equal(t, 18, slots)

	n := slots*5 + 7
	for i := 0; i < n; i++ {
		_, err := f.InsertTuple(txn, testTuple(t, schema, i))
		require.NoError(t, err)
	}

	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	it := f.Iterator(txn)
	require.NoError(t, it.Open())
	found := scanAll(t, it)
	require.Len(t, found, n)

	seen := map[int32]bool{}
	for i, tuple := range found {
		field, err := tuple.Field(0)
		require.NoError(t, err)
		seen[field.(db_types.IntField).Value()] = true

		if i > 0 {
			assert.True(t, found[i-1].RecordID().Less(*tuple.RecordID()))
		}
	}
	assert.Len(t, seen, n)
}

func TestHeapFile_Delete_Frees_Slot_For_Next_Insert(t *testing.T) {
	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()
	schema := testSchema()
	txn := transaction.NewTxnID()

	inserted := make([]*catalog.Tuple, 0)
	for i := 0; i < 20; i++ {
		tuple := testTuple(t, schema, i)
		_, err := f.InsertTuple(txn, tuple)
		require.NoError(t, err)
		inserted = append(inserted, tuple)
	}

	dirtied, err := f.DeleteTuple(txn, inserted[7])
	require.NoError(t, err)
	require.Len(t, dirtied, 1)
	assert.Equal(t, inserted[7].RecordID().PageID, dirtied[0].GetPageId())

	it := f.Iterator(txn)
	require.NoError(t, it.Open())
	assert.Len(t, scanAll(t, it), 19)

	_, err = f.DeleteTuple(txn, inserted[7])
	assert.ErrorIs(t, err, common.ErrState)

	tuple := testTuple(t, schema, 100)
	_, err = f.InsertTuple(txn, tuple)
	require.NoError(t, err)
	assert.Equal(t, 7, tuple.RecordID().SlotNo)
}

func TestHeapFile_Insert_And_Delete_Reject_Foreign_Tuples(t *testing.T) {
	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()
	txn := transaction.NewTxnID()

	other := catalog.MustSchema([]db_types.Type{db_types.IntType}, nil)
	tuple, err := catalog.NewTupleWithValues(other, db_types.IntField(1))
	require.NoError(t, err)
	_, err = f.InsertTuple(txn, tuple)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = f.DeleteTuple(txn, testTuple(t, testSchema(), 1))
	assert.ErrorIs(t, err, common.ErrState)

	foreign := testTuple(t, testSchema(), 1)
	rid := common.NewRecordID(common.NewPageID(f.TableID()+1, 0), 0)
	foreign.SetRecordID(&rid)
	_, err = f.DeleteTuple(txn, foreign)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	live := testTuple(t, testSchema(), 2)
	_, err = f.InsertTuple(txn, live)
	require.NoError(t, err)
	impostor, err := catalog.NewTupleWithValues(other, db_types.IntField(2))
	require.NoError(t, err)
	impostor.SetRecordID(live.RecordID())
	_, err = f.DeleteTuple(txn, impostor)
	assert.ErrorIs(t, err, common.ErrSchemaMismatch)

	it := f.Iterator(txn)
	require.NoError(t, it.Open())
	assert.Len(t, scanAll(t, it), 1)
}

func TestHeapFileIterator_States(t *testing.T) {
	f, cache := openTestFile(t, tempFile(t))
	defer f.Close()
	txn := transaction.NewTxnID()
	for i := 0; i < 3; i++ {
		_, err := f.InsertTuple(txn, testTuple(t, testSchema(), i))
		require.NoError(t, err)
	}

	it := f.Iterator(txn)

	t.Run("closed iterator has nothing", func(t *testing.T) {
		ok, err := it.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = it.Next()
		assert.ErrorIs(t, err, common.ErrNoSuchElement)
	})

	t.Run("open fetches the first page", func(t *testing.T) {
		before := cache.fetches
		require.NoError(t, it.Open())
		assert.Equal(t, before+1, cache.fetches)
		assert.ErrorIs(t, it.Open(), common.ErrState)
	})

	t.Run("exhausted iterator has nothing", func(t *testing.T) {
		assert.Len(t, scanAll(t, it), 3)
		_, err := it.Next()
		assert.ErrorIs(t, err, common.ErrNoSuchElement)
		assert.ErrorIs(t, it.Open(), common.ErrState)
	})

	t.Run("rewind is idempotent", func(t *testing.T) {
		require.NoError(t, it.Rewind())
		first := scanAll(t, it)
		require.NoError(t, it.Rewind())
		require.NoError(t, it.Rewind())
		second := scanAll(t, it)

		require.Len(t, second, len(first))
		for i := range first {
			assert.True(t, first[i].Equals(second[i]))
			require.NotNil(t, second[i].RecordID())
			assert.Equal(t, *first[i].RecordID(), *second[i].RecordID())
		}
	})

	t.Run("close is idempotent", func(t *testing.T) {
		it.Close()
		it.Close()
		ok, err := it.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestHeapFileIterator_Open_On_Empty_File_Reads_One_Empty_Page(t *testing.T) {
	f, _ := openTestFile(t, tempFile(t))
	defer f.Close()

	it := f.Iterator(transaction.NewTxnID())
	require.NoError(t, it.Open())
	assert.Empty(t, scanAll(t, it))

	count, err := f.PageCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHeapFileIterator_Propagates_Fetch_Errors(t *testing.T) {
	f, cache := openTestFile(t, tempFile(t))
	defer f.Close()
	txn := transaction.NewTxnID()

	perPage := pages.NumSlots(testSchema().Size(), common.PageSize())
	for i := 0; i <= perPage; i++ {
		_, err := f.InsertTuple(txn, testTuple(t, testSchema(), i))
		require.NoError(t, err)
	}
	count, err := f.PageCount()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	fetchErr := errors.New("fetch failed")

	t.Run("open returns the error of the first page", func(t *testing.T) {
		cache.err = fetchErr
		defer func() { cache.err = nil }()

		it := f.Iterator(txn)
		assert.ErrorIs(t, it.Open(), fetchErr)
		ok, err := it.HasNext()
		require.NoError(t, err)
		assert.False(t, ok)

		it.Close()
		cache.err = nil
		require.NoError(t, it.Open())
		assert.Len(t, scanAll(t, it), perPage+1)
	})

	t.Run("has next returns the error of a following page", func(t *testing.T) {
		it := f.Iterator(txn)
		require.NoError(t, it.Open())
		for i := 0; i < perPage; i++ {
			_, err := it.Next()
			require.NoError(t, err)
		}

		cache.err = fetchErr
		defer func() { cache.err = nil }()
		_, err := it.HasNext()
		assert.ErrorIs(t, err, fetchErr)
		_, err = it.Next()
		assert.ErrorIs(t, err, fetchErr)
		it.Close()
	})
}
