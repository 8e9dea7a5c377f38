package locker

import (
	"errors"
	"heapdb/common"
	"heapdb/transaction"
	log "log/slog"
	"sort"
	"sync"
	"time"
)

var ErrDeadLock = errors.New("deadlock detected")

const DefaultDetectInterval = 2 * time.Second

type LockMode int

const (
	SharedLock LockMode = iota
	ExclusiveLock
)

func (m LockMode) String() string {
	if m == ExclusiveLock {
		return "X"
	}
	return "S"
}

type LockRequest struct {
	TxID     transaction.TxnID
	Mode     LockMode
	Response chan error
}

type lockState struct {
	sync.Mutex
	owners         map[transaction.TxnID]LockMode
	waitQueue      []LockRequest
	waitingWriters uint
}

// LockManager grants page level shared and exclusive locks to transactions. Requests that conflict wait in a
// fifo queue per page. A background routine looks for cycles among waiting transactions and fails the request
// of the oldest transaction in a cycle with ErrDeadLock.
type LockManager struct {
	locks    common.SyncMap[common.PageID, *lockState]
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewLockManager starts a lock manager whose deadlock detector runs every interval. A non positive interval
// means DefaultDetectInterval.
func NewLockManager(interval time.Duration) *LockManager {
	if interval <= 0 {
		interval = DefaultDetectInterval
	}

	lm := &LockManager{
		locks:    common.SyncMap[common.PageID, *lockState]{},
		stopChan: make(chan struct{}),
	}
	go lm.deadlockDetectorRoutine(interval)
	return lm
}

// AcquireLock blocks until txID holds pid in at least the given mode or the request is chosen as a deadlock
// victim. Holding an exclusive lock satisfies a shared request, and a shared lock held alone is upgraded.
func (lm *LockManager) AcquireLock(pid common.PageID, txID transaction.TxnID, mode LockMode) error {
	request := LockRequest{TxID: txID, Mode: mode, Response: make(chan error, 1)}

	ls, _ := lm.locks.LoadOrStore(pid, &lockState{owners: make(map[transaction.TxnID]LockMode)})
	ls.Lock()

	// already held strongly enough, nothing to wait for
	if held, ok := ls.owners[txID]; ok && (held == ExclusiveLock || mode == SharedLock) {
		ls.Unlock()
		return nil
	}

	// if there is no writers waiting in the queue and lock does not conflict with any other grant it
	if ls.waitingWriters == 0 && lm.canAcquire(ls, txID, mode) {
		lm.grant(ls, txID, mode, true)
		ls.Unlock()
		return nil
	}

	// otherwise put it into the waiting queue
	ls.waitQueue = append(ls.waitQueue, request)
	if mode == ExclusiveLock {
		ls.waitingWriters++
	}
	ls.Unlock()

	// Wait for lock to be granted or transaction to be aborted
	return <-request.Response
}

// ReleaseLock gives up txID's lock on pid. It panics if txID does not hold it.
func (lm *LockManager) ReleaseLock(pid common.PageID, txID transaction.TxnID) {
	ls, exists := lm.locks.Load(pid)
	if !exists {
		panic("unlocked non-existing lock")
	}

	ls.Lock()
	defer ls.Unlock()

	if _, ok := ls.owners[txID]; !ok {
		panic("unlocked non-existing lock")
	}

	delete(ls.owners, txID)
	lm.grantWaiting(ls)
}

// ReleaseLocks gives up every lock txID holds and returns the pages they were on.
func (lm *LockManager) ReleaseLocks(txID transaction.TxnID) []common.PageID {
	released := lm.LockedPages(txID)
	for _, pid := range released {
		lm.ReleaseLock(pid, txID)
	}
	return released
}

// HoldsLock reports whether txID holds any lock on pid.
func (lm *LockManager) HoldsLock(pid common.PageID, txID transaction.TxnID) bool {
	ls, ok := lm.locks.Load(pid)
	if !ok {
		return false
	}

	ls.Lock()
	defer ls.Unlock()

	_, ok = ls.owners[txID]
	return ok
}

// LockedPages returns the pages txID holds a lock on in page id order.
func (lm *LockManager) LockedPages(txID transaction.TxnID) []common.PageID {
	res := make([]common.PageID, 0)
	lm.locks.Range(func(pid common.PageID, ls *lockState) bool {
		ls.Lock()
		if _, ok := ls.owners[txID]; ok {
			res = append(res, pid)
		}
		ls.Unlock()
		return true
	})

	sort.Slice(res, func(i, j int) bool {
		if res[i].TableID != res[j].TableID {
			return res[i].TableID < res[j].TableID
		}
		return res[i].PageNo < res[j].PageNo
	})
	return res
}

// canAcquire returns true if lock request can be granted without waiting for any other owner.
func (lm *LockManager) canAcquire(lockInfo *lockState, txID transaction.TxnID, mode LockMode) bool {
	if lockMode, ok := lockInfo.owners[txID]; ok {
		if lockMode == mode || mode == SharedLock {
			return true
		}

		// upgrade case, where txn already has read lock, wants the write lock and is the only owner.
		return len(lockInfo.owners) == 1
	}

	if len(lockInfo.owners) == 0 {
		return true
	}

	if mode == SharedLock {
		// every owner must own it in read mode
		for _, lockMode := range lockInfo.owners {
			if lockMode != SharedLock {
				return false
			}
		}
		return true
	}

	return false
}

// grant updates lockState so that txID added to owners. An exclusive lock is never downgraded.
func (lm *LockManager) grant(lockInfo *lockState, txID transaction.TxnID, mode LockMode, noWait bool) {
	if mode == ExclusiveLock && !noWait {
		lockInfo.waitingWriters--
	}
	if held, ok := lockInfo.owners[txID]; ok && held == ExclusiveLock {
		return
	}
	lockInfo.owners[txID] = mode
}

// grantWaiting iterates all requests in waiting queue of the lockState and grants them in order until one
// cannot be granted.
func (lm *LockManager) grantWaiting(ls *lockState) {
	grantedRequests := 0

	for _, request := range ls.waitQueue {
		if !lm.canAcquire(ls, request.TxID, request.Mode) {
			break
		}
		lm.grant(ls, request.TxID, request.Mode, false)
		request.Response <- nil
		grantedRequests++
	}

	// Remove granted requests from wait queue
	ls.waitQueue = ls.waitQueue[grantedRequests:]
}

func (lm *LockManager) deadlockDetectorRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wg := lm.buildWaitGraph()
			lm.detectDeadlock(wg)
		case <-lm.stopChan:
			return
		}
	}
}

func (lm *LockManager) buildWaitGraph() map[transaction.TxnID]map[transaction.TxnID]bool {
	graph := map[transaction.TxnID]map[transaction.TxnID]bool{}
	lm.locks.Range(func(_ common.PageID, ls *lockState) bool {
		ls.Lock()
		defer ls.Unlock()

		for i, request := range ls.waitQueue {
			if _, ok := graph[request.TxID]; !ok {
				graph[request.TxID] = make(map[transaction.TxnID]bool)
			}

			// can wait for itself in upgrade case
			for owner := range ls.owners {
				if request.TxID != owner {
					graph[request.TxID][owner] = true
				}
			}

			// requests are granted in order, so a request also waits for the ones queued before it
			for _, before := range ls.waitQueue[:i] {
				if request.TxID != before.TxID {
					graph[request.TxID][before.TxID] = true
				}
			}
		}

		return true
	})

	return graph
}

func (lm *LockManager) detectDeadlock(waitGraph map[transaction.TxnID]map[transaction.TxnID]bool) {
	visited := make(map[transaction.TxnID]bool)
	recStack := make(map[transaction.TxnID]bool)

	for txID := range waitGraph {
		if visited[txID] {
			continue
		}
		if cycle := lm.findCycle(waitGraph, txID, visited, recStack, nil); cycle != nil {
			victim := lm.findSmallestTxID(cycle)

			log.Warn("deadlock detected", "transactions", cycle, "victim", victim)
			lm.abortTransaction(victim)
			return
		}
	}
}

// findCycle does a depth first search from txID and returns the transactions of the first cycle it finds.
func (lm *LockManager) findCycle(waitGraph map[transaction.TxnID]map[transaction.TxnID]bool, txID transaction.TxnID, visited, recStack map[transaction.TxnID]bool, path []transaction.TxnID) []transaction.TxnID {
	visited[txID] = true
	recStack[txID] = true
	path = append(path, txID)

	for waitingFor := range waitGraph[txID] {
		if !visited[waitingFor] {
			if cycle := lm.findCycle(waitGraph, waitingFor, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[waitingFor] {
			for i, t := range path {
				if t == waitingFor {
					return append([]transaction.TxnID(nil), path[i:]...)
				}
			}
		}
	}

	recStack[txID] = false
	return nil
}

// findSmallestTxID picks the oldest transaction of a cycle as the victim, which discards the most work.
func (lm *LockManager) findSmallestTxID(transactions []transaction.TxnID) transaction.TxnID {
	minTxID := transactions[0]
	for _, txID := range transactions[1:] {
		if txID < minTxID {
			minTxID = txID
		}
	}
	return minTxID
}

// abortTransaction resolves all waiting lock requests of given transaction with ErrDeadLock. Locks it already
// holds are kept until its owner releases them.
func (lm *LockManager) abortTransaction(txID transaction.TxnID) {
	lm.locks.Range(func(_ common.PageID, ls *lockState) bool {
		ls.Lock()
		defer ls.Unlock()

		for i, req := range ls.waitQueue {
			if req.TxID == txID {
				if req.Mode == ExclusiveLock {
					ls.waitingWriters--
				}
				req.Response <- ErrDeadLock
				ls.waitQueue = append(ls.waitQueue[:i], ls.waitQueue[i+1:]...)

				// requests queued behind the victim may be grantable now
				lm.grantWaiting(ls)
				break
			}
		}

		return true
	})
}

// Stop terminates the deadlock detector. It is safe to call more than once.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() {
		close(lm.stopChan)
	})
}
