package structures

import (
	"heapdb/common"
	"heapdb/disk/pages"
	"heapdb/transaction"
)

// PageCache is where heap files and their iterators fetch pages from. Implementations must hand out a single
// live instance per page id and return it with the requested permission granted to txn.
type PageCache interface {
	GetPage(txn transaction.TxnID, pid common.PageID, perm transaction.Permissions) (pages.IPage, error)
}

// pageReleaser is implemented by caches that can give a page lock back before the transaction ends.
type pageReleaser interface {
	HoldsLock(txn transaction.TxnID, pid common.PageID) bool
	ReleasePage(txn transaction.TxnID, pid common.PageID)
}
