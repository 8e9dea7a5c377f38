package db

import (
	"errors"
	"heapdb/buffer"
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/config"
	"heapdb/disk/structures"
	"heapdb/locker"
	"heapdb/transaction"
	log "log/slog"
	"sort"
	"sync"
)

var ErrClosed = errors.New("database is closed")

// Database bundles the catalog, the buffer pool and the lock manager of one process.
type Database struct {
	opts    config.Options
	catalog *Catalog
	locks   *locker.LockManager
	pool    *buffer.BufferPool

	mut     sync.Mutex
	actives map[transaction.TxnID]*Transaction
	closed  bool
}

// Open creates a database with opts. The page size of opts becomes the process wide page size.
func Open(opts config.Options) (*Database, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := config.ConfigureLogging(opts.LogLevel); err != nil {
		return nil, err
	}

	replacer, err := buffer.NewReplacer(opts.Replacer, opts.PoolPages)
	if err != nil {
		return nil, err
	}

	common.SetPageSize(opts.PageSize)
	ctl := NewCatalog()
	locks := locker.NewLockManager(opts.DeadlockCheckInterval)

	pool := buffer.NewBufferPoolWithReplacer(opts.PoolPages, ctl, locks, replacer)
	pool.SyncOnCommit = opts.Fsync

	log.Info("database opened", "page_size", opts.PageSize, "pool_pages", opts.PoolPages, "replacer", opts.Replacer, "fsync", opts.Fsync)
	return &Database{
		opts:    opts,
		catalog: ctl,
		locks:   locks,
		pool:    pool,
		actives: map[transaction.TxnID]*Transaction{},
	}, nil
}

func (d *Database) Catalog() *Catalog {
	return d.catalog
}

func (d *Database) BufferPool() *buffer.BufferPool {
	return d.pool
}

func (d *Database) Options() config.Options {
	return d.opts
}

// OpenTable opens the heap file at path with schema and registers it under name.
func (d *Database) OpenTable(path, name string, schema *catalog.Schema) (*structures.HeapFile, error) {
	f, err := structures.OpenHeapFile(path, schema, d.pool)
	if err != nil {
		return nil, err
	}

	name, err = d.catalog.AddTable(f, name)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	log.Debug("table opened", "name", name, "id", f.TableID(), "path", f.Path())
	return f, nil
}

// Begin starts a transaction.
func (d *Database) Begin() (*Transaction, error) {
	d.mut.Lock()
	defer d.mut.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	txn := &Transaction{id: transaction.NewTxnID(), db: d}
	d.actives[txn.id] = txn
	return txn, nil
}

// ActiveTransactions returns the ids of transactions that are neither committed nor aborted.
func (d *Database) ActiveTransactions() []transaction.TxnID {
	d.mut.Lock()
	defer d.mut.Unlock()

	res := make([]transaction.TxnID, 0, len(d.actives))
	for id := range d.actives {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (d *Database) complete(txn *Transaction, commit bool) error {
	d.mut.Lock()
	delete(d.actives, txn.id)
	d.mut.Unlock()

	return d.pool.TransactionComplete(txn.id, commit)
}

// Close aborts running transactions, closes every table file and stops the lock manager. It does nothing if
// the database is already closed.
func (d *Database) Close() error {
	d.mut.Lock()
	if d.closed {
		d.mut.Unlock()
		return nil
	}
	d.closed = true

	running := make([]*Transaction, 0, len(d.actives))
	for _, txn := range d.actives {
		running = append(running, txn)
	}
	d.mut.Unlock()

	var errs []error
	for _, txn := range running {
		log.Warn("aborting running transaction on close", "txn", txn.id.String())
		errs = append(errs, txn.Abort())
	}

	for _, f := range d.catalog.Clear() {
		errs = append(errs, f.Close())
	}
	d.locks.Stop()

	log.Info("database closed")
	return errors.Join(errs...)
}
