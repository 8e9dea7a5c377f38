package pages

import (
	"heapdb/common"
	"heapdb/transaction"
)

// IPage is a page as the buffer pool sees it: something identified by a PageID that can be encoded back to its
// on-disk bytes and that remembers which transaction dirtied it.
type IPage interface {
	// GetPageId returns the id of the page.
	GetPageId() common.PageID

	// GetData encodes the page to exactly common.PageSize() bytes.
	GetData() ([]byte, error)

	// IsDirty returns the transaction that dirtied the page last and true, or NullTxnID and false if the page
	// is clean.
	IsDirty() (transaction.TxnID, bool)
	SetDirty(txn transaction.TxnID)
	SetClean()

	// GetBeforeImage returns the page as it was when SetBeforeImage was last called, or when it was read from
	// disk if it was never called.
	GetBeforeImage() (IPage, error)
	SetBeforeImage() error
}

// CreateEmptyPageData returns the bytes of a page with no occupied slots.
func CreateEmptyPageData() []byte {
	return make([]byte, common.PageSize())
}
