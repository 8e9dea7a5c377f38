package db

import (
	"fmt"
	"heapdb/catalog"
	"heapdb/catalog/db_types"
	"heapdb/disk/structures"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFile(t *testing.T, path string, schema *catalog.Schema) *structures.HeapFile {
	f, err := structures.OpenHeapFile(path, schema, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestCatalog_Add_And_Lookup(t *testing.T) {
	c := NewCatalog()
	f := openFile(t, tempFile(t), testSchema())

	name, err := c.AddTable(f, "people")
	require.NoError(t, err)
	assert.Equal(t, "people", name)

	id, err := c.TableID("people")
	require.NoError(t, err)
	assert.Equal(t, f.TableID(), id)

	file, err := c.DbFile(id)
	require.NoError(t, err)
	assert.Same(t, f, file)

	schema, err := c.Schema(id)
	require.NoError(t, err)
	assert.True(t, schema.Equals(testSchema()))

	tableName, err := c.TableName(id)
	require.NoError(t, err)
	assert.Equal(t, "people", tableName)
	assert.Equal(t, []int32{id}, c.TableIDs())

	byPath, err := c.TableIDForPath(f.Path())
	require.NoError(t, err)
	assert.Equal(t, id, byPath)
	_, err = c.TableIDForPath(tempFile(t))
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = c.TableID("nobody")
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, err = c.DbFile(id + 1)
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, err = c.GetDbFile(id + 1)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCatalog_Unnamed_Tables_Get_Random_Names(t *testing.T) {
	c := NewCatalog()
	first, err := c.AddTable(openFile(t, tempFile(t), testSchema()), "")
	require.NoError(t, err)
	second, err := c.AddTable(openFile(t, tempFile(t), testSchema()), "")
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
	assert.Len(t, c.TableIDs(), 2)
}

func TestCatalog_Re_Adding_Replaces(t *testing.T) {
	c := NewCatalog()
	path := tempFile(t)
	f := openFile(t, path, testSchema())

	_, err := c.AddTable(f, "old")
	require.NoError(t, err)

	// same file under a new name
	again := openFile(t, path, testSchema())
	_, err = c.AddTable(again, "new")
	require.NoError(t, err)
	_, err = c.TableID("old")
	assert.ErrorIs(t, err, ErrTableNotFound)
	file, err := c.DbFile(f.TableID())
	require.NoError(t, err)
	assert.Same(t, again, file)

	// another file under the same name
	other := openFile(t, tempFile(t), testSchema())
	_, err = c.AddTable(other, "new")
	require.NoError(t, err)
	id, err := c.TableID("new")
	require.NoError(t, err)
	assert.Equal(t, other.TableID(), id)
	assert.Equal(t, []int32{other.TableID()}, c.TableIDs())
	_, err = c.TableIDForPath(path)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCatalog_Rejects_Colliding_Table_IDs(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	// ids are reduced to 100000 values, a collision shows up after a few hundred names
	seen := map[int32]string{}
	var first, second string
	for i := 0; first == ""; i++ {
		path := filepath.Join(dir, fmt.Sprintf("table_%d", i))
		id, err := structures.TableIDOf(path)
		require.NoError(t, err)

		if prev, ok := seen[id]; ok {
			first, second = prev, path
		}
		seen[id] = path
	}

	c := NewCatalog()
	schema := catalog.MustSchema([]db_types.Type{db_types.IntType}, nil)
	f1 := openFile(t, first, schema)
	f2 := openFile(t, second, schema)
	require.Equal(t, f1.TableID(), f2.TableID())

	_, err = c.AddTable(f1, "first")
	require.NoError(t, err)
	_, err = c.AddTable(f2, "second")
	assert.ErrorIs(t, err, ErrDuplicateTableID)

	name, err := c.TableName(f1.TableID())
	require.NoError(t, err)
	assert.Equal(t, "first", name)
}

func TestCatalog_Clear(t *testing.T) {
	c := NewCatalog()
	f := openFile(t, tempFile(t), testSchema())
	_, err := c.AddTable(f, "t")
	require.NoError(t, err)

	files := c.Clear()
	assert.Equal(t, []*structures.HeapFile{f}, files)
	assert.Empty(t, c.TableIDs())
}
