package db

import (
	"heapdb/catalog"
	"heapdb/common"
	"heapdb/disk/structures"
	"heapdb/transaction"
)

// Transaction is a unit of work on the tables of a database. It must end with exactly one Commit or Abort.
// Operations failing with transaction.ErrAborted leave the transaction unusable until it is aborted.
type Transaction struct {
	id   transaction.TxnID
	db   *Database
	done bool
}

func (t *Transaction) ID() transaction.TxnID {
	return t.id
}

// Insert adds tuple to the table and sets its record id.
func (t *Transaction) Insert(tableID int32, tuple *catalog.Tuple) error {
	if err := t.checkRunning("insert"); err != nil {
		return err
	}
	return t.db.pool.InsertTuple(t.id, tableID, tuple)
}

// Delete removes tuple from the table its record id points to.
func (t *Transaction) Delete(tuple *catalog.Tuple) error {
	if err := t.checkRunning("delete"); err != nil {
		return err
	}
	return t.db.pool.DeleteTuple(t.id, tuple)
}

// Scan returns an opened iterator over the tuples of the table.
func (t *Transaction) Scan(tableID int32) (*structures.HeapFileIterator, error) {
	if err := t.checkRunning("scan"); err != nil {
		return nil, err
	}

	f, err := t.db.catalog.DbFile(tableID)
	if err != nil {
		return nil, err
	}

	it := f.Iterator(t.id)
	if err := it.Open(); err != nil {
		return nil, err
	}
	return it, nil
}

// Commit writes the pages the transaction modified to disk and releases its locks.
func (t *Transaction) Commit() error {
	if err := t.checkRunning("commit"); err != nil {
		return err
	}
	t.done = true
	return t.db.complete(t, true)
}

// Abort discards the changes of the transaction and releases its locks.
func (t *Transaction) Abort() error {
	if err := t.checkRunning("abort"); err != nil {
		return err
	}
	t.done = true
	return t.db.complete(t, false)
}

func (t *Transaction) checkRunning(op string) error {
	if t.done {
		return common.Errorf(common.StateError, op, "%v is already completed", t.id)
	}
	return nil
}
