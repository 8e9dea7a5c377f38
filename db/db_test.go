package db

import (
	"fmt"
	"heapdb/catalog"
	"heapdb/catalog/db_types"
	"heapdb/common"
	"heapdb/config"
	"heapdb/disk/structures"
	"heapdb/transaction"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testOptions() config.Options {
	opts := config.Default()
	opts.PageSize = 512
	opts.PoolPages = 8
	opts.DeadlockCheckInterval = 50 * time.Millisecond
	opts.LogLevel = "ERROR"
	return opts
}

func openTestDB(t *testing.T) *Database {
	return openTestDBWith(t, testOptions())
}

func openTestDBWith(t *testing.T, opts config.Options) *Database {
	d, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = d.Close()
		common.ResetPageSize()
	})
	return d
}

func testSchema() *catalog.Schema {
	return catalog.MustSchema([]db_types.Type{db_types.IntType, db_types.CharType(20)}, []string{"id", "name"})
}

func testTuple(t *testing.T, i int) *catalog.Tuple {
	tuple, err := catalog.NewTupleWithValues(testSchema(), db_types.IntField(int32(i)), db_types.NewCharField(fmt.Sprintf("tuple_%v", i), 20))
	require.NoError(t, err)
	return tuple
}

func tempFile(t *testing.T) string {
	id, _ := uuid.NewUUID()
	return filepath.Join(t.TempDir(), id.String())
}

func countTuples(t *testing.T, it *structures.HeapFileIterator) int {
	defer it.Close()

	n := 0
	for {
		ok, err := it.HasNext()
		require.NoError(t, err)
		if !ok {
			return n
		}
		_, err = it.Next()
		require.NoError(t, err)
		n++
	}
}

func TestOpen_Applies_Page_Size(t *testing.T) {
	openTestDB(t)
	assert.Equal(t, 512, common.PageSize())

	opts := testOptions()
	opts.PoolPages = 0
	_, err := Open(opts)
	assert.Error(t, err)
}

func TestDatabase_Committed_Tuples_Survive_Reopen(t *testing.T) {
	path := tempFile(t)

	opts := testOptions()
	opts.Fsync = true
	d := openTestDBWith(t, opts)
	f, err := d.OpenTable(path, "people", testSchema())
	require.NoError(t, err)

	txn, err := d.Begin()
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		require.NoError(t, txn.Insert(f.TableID(), testTuple(t, i)))
	}
	require.NoError(t, txn.Commit())

	aborted, err := d.Begin()
	require.NoError(t, err)
	for i := 100; i < 120; i++ {
		require.NoError(t, aborted.Insert(f.TableID(), testTuple(t, i)))
	}
	require.NoError(t, aborted.Abort())
	require.NoError(t, d.Close())

	d = openTestDB(t)
	f, err = d.OpenTable(path, "people", testSchema())
	require.NoError(t, err)

	txn, err = d.Begin()
	require.NoError(t, err)
	it, err := txn.Scan(f.TableID())
	require.NoError(t, err)
	assert.Equal(t, 100, countTuples(t, it))
	require.NoError(t, txn.Commit())
}

func TestDatabase_Delete(t *testing.T) {
	d := openTestDB(t)
	f, err := d.OpenTable(tempFile(t), "", testSchema())
	require.NoError(t, err)

	txn, err := d.Begin()
	require.NoError(t, err)
	tuples := make([]*catalog.Tuple, 0)
	for i := 0; i < 30; i++ {
		tuple := testTuple(t, i)
		require.NoError(t, txn.Insert(f.TableID(), tuple))
		tuples = append(tuples, tuple)
	}
	for _, tuple := range tuples[:10] {
		require.NoError(t, txn.Delete(tuple))
	}
	require.NoError(t, txn.Commit())

	txn, err = d.Begin()
	require.NoError(t, err)
	it, err := txn.Scan(f.TableID())
	require.NoError(t, err)
	assert.Equal(t, 20, countTuples(t, it))
	require.NoError(t, txn.Abort())
}

func TestTransaction_Cannot_Be_Used_After_Completion(t *testing.T) {
	d := openTestDB(t)
	f, err := d.OpenTable(tempFile(t), "t", testSchema())
	require.NoError(t, err)

	txn, err := d.Begin()
	require.NoError(t, err)
	assert.Equal(t, []transaction.TxnID{txn.ID()}, d.ActiveTransactions())
	require.NoError(t, txn.Commit())
	assert.Empty(t, d.ActiveTransactions())

	assert.ErrorIs(t, txn.Commit(), common.ErrState)
	assert.ErrorIs(t, txn.Abort(), common.ErrState)
	assert.ErrorIs(t, txn.Insert(f.TableID(), testTuple(t, 1)), common.ErrState)
	_, err = txn.Scan(f.TableID())
	assert.ErrorIs(t, err, common.ErrState)
}

func TestDatabase_Close_Aborts_Running_Transactions(t *testing.T) {
	d := openTestDB(t)
	f, err := d.OpenTable(tempFile(t), "t", testSchema())
	require.NoError(t, err)

	txn, err := d.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Insert(f.TableID(), testTuple(t, 1)))

	require.NoError(t, d.Close())
	assert.Empty(t, d.ActiveTransactions())
	assert.ErrorIs(t, txn.Commit(), common.ErrState)
	assert.Empty(t, d.Catalog().TableIDs())

	_, err = d.Begin()
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, d.Close())
}

func TestDatabase_Concurrent_Transactions_On_Separate_Tables(t *testing.T) {
	// every running transaction may pin two dirty pages
	opts := testOptions()
	opts.PoolPages = 32
	d := openTestDBWith(t, opts)

	tables := make([]*structures.HeapFile, 4)
	for i := range tables {
		f, err := d.OpenTable(tempFile(t), fmt.Sprintf("t%d", i), testSchema())
		require.NoError(t, err)
		tables[i] = f
	}

	g := errgroup.Group{}
	for _, f := range tables {
		f := f
		g.Go(func() error {
			for i := 0; i < 50; i += 5 {
				txn, err := d.Begin()
				if err != nil {
					return err
				}
				for j := i; j < i+5; j++ {
					tuple, err := catalog.NewTupleWithValues(testSchema(), db_types.IntField(int32(j)), db_types.NewCharField("concurrent", 20))
					if err != nil {
						return err
					}
					if err := txn.Insert(f.TableID(), tuple); err != nil {
						return err
					}
				}
				if err := txn.Commit(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	txn, err := d.Begin()
	require.NoError(t, err)
	for _, f := range tables {
		it, err := txn.Scan(f.TableID())
		require.NoError(t, err)
		assert.Equal(t, 50, countTuples(t, it))
	}
	require.NoError(t, txn.Commit())
}
