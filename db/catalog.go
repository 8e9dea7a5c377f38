package db

import (
	"errors"
	"fmt"
	"heapdb/buffer"
	"heapdb/catalog"
	"heapdb/disk/structures"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var ErrTableNotFound = errors.New("table not found")
var ErrDuplicateTableID = errors.New("table id is already used by another file")

type tableInfo struct {
	file *structures.HeapFile
	name string
}

var _ buffer.FileResolver = &Catalog{}

// Catalog keeps track of the tables of a database, by id, by name and by file path. It lives in memory only.
type Catalog struct {
	mut    sync.RWMutex
	byID   map[int32]*tableInfo
	byName map[string]int32
	byPath map[string]int32
}

func NewCatalog() *Catalog {
	return &Catalog{
		byID:   map[int32]*tableInfo{},
		byName: map[string]int32{},
		byPath: map[string]int32{},
	}
}

// AddTable registers file under name. An empty name is replaced by a random one. A table registered earlier
// under the same name or from the same file is replaced. Adding a different file whose id collides with a
// registered table fails with ErrDuplicateTableID.
func (c *Catalog) AddTable(file *structures.HeapFile, name string) (string, error) {
	if name == "" {
		name = uuid.New().String()
	}

	c.mut.Lock()
	defer c.mut.Unlock()

	id := file.TableID()
	if existing, ok := c.byID[id]; ok {
		if existing.file.Path() != file.Path() {
			return "", fmt.Errorf("%w: %d is the id of %s and %s", ErrDuplicateTableID, id, existing.file.Path(), file.Path())
		}
		delete(c.byName, existing.name)
	}

	if oldID, ok := c.byName[name]; ok {
		if old, ok := c.byID[oldID]; ok {
			delete(c.byPath, old.file.Path())
		}
		delete(c.byID, oldID)
	}

	c.byID[id] = &tableInfo{file: file, name: name}
	c.byName[name] = id
	c.byPath[file.Path()] = id
	return name, nil
}

// TableIDForPath returns the id of the table stored in the file at path.
func (c *Catalog) TableIDForPath(path string) (int32, error) {
	canonical, err := structures.CanonicalPath(path)
	if err != nil {
		return 0, err
	}

	c.mut.RLock()
	defer c.mut.RUnlock()

	id, ok := c.byPath[canonical]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, path)
	}
	return id, nil
}

func (c *Catalog) TableID(name string) (int32, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()

	id, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return id, nil
}

func (c *Catalog) DbFile(tableID int32) (*structures.HeapFile, error) {
	info, err := c.table(tableID)
	if err != nil {
		return nil, err
	}
	return info.file, nil
}

// GetDbFile is DbFile for the buffer pool.
func (c *Catalog) GetDbFile(tableID int32) (buffer.DbFile, error) {
	f, err := c.DbFile(tableID)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Catalog) Schema(tableID int32) (*catalog.Schema, error) {
	info, err := c.table(tableID)
	if err != nil {
		return nil, err
	}
	return info.file.Schema(), nil
}

func (c *Catalog) TableName(tableID int32) (string, error) {
	info, err := c.table(tableID)
	if err != nil {
		return "", err
	}
	return info.name, nil
}

// TableIDs returns the ids of all tables in increasing order.
func (c *Catalog) TableIDs() []int32 {
	c.mut.RLock()
	defer c.mut.RUnlock()

	res := make([]int32, 0, len(c.byID))
	for id := range c.byID {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Clear forgets every table and returns their files.
func (c *Catalog) Clear() []*structures.HeapFile {
	c.mut.Lock()
	defer c.mut.Unlock()

	files := make([]*structures.HeapFile, 0, len(c.byID))
	for _, info := range c.byID {
		files = append(files, info.file)
	}
	c.byID = map[int32]*tableInfo{}
	c.byName = map[string]int32{}
	c.byPath = map[string]int32{}
	return files
}

func (c *Catalog) table(tableID int32) (*tableInfo, error) {
	c.mut.RLock()
	defer c.mut.RUnlock()

	info, ok := c.byID[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTableNotFound, tableID)
	}
	return info, nil
}
