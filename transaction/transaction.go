package transaction

import (
	"errors"
	"strconv"
	"sync/atomic"
)

// ErrAborted is returned by operations that cannot continue because the transaction has to be aborted, e.g. it
// was chosen as a deadlock victim. The caller is expected to abort the transaction.
var ErrAborted = errors.New("transaction aborted")

type TxnID uint64

// NullTxnID is never handed out by NewTxnID. It marks clean pages and the absence of a transaction.
const NullTxnID TxnID = 0

var txnCounter atomic.Uint64

// NewTxnID returns a process wide unique, increasing transaction id.
func NewTxnID() TxnID {
	return TxnID(txnCounter.Add(1))
}

func (id TxnID) String() string {
	return "txn-" + strconv.FormatUint(uint64(id), 10)
}

// Permissions is the access mode a page is requested with.
type Permissions int

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}
