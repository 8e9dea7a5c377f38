package common

import "sync/atomic"

const (
	// DefaultPageSize is the size of every page of every heap file unless it is changed with SetPageSize.
	DefaultPageSize = 4096

	// TableIDModulus bounds table ids derived from file paths.
	TableIDModulus = 100000

	// DefaultPoolPages is the number of pages a buffer pool keeps in memory by default.
	DefaultPoolPages = 50
)

var pageSize atomic.Int64

func init() {
	pageSize.Store(DefaultPageSize)
}

// PageSize returns the configured page size in bytes. Slot counts and file offsets are computed from it, so it
// should only be changed while no heap file is open.
func PageSize() int {
	return int(pageSize.Load())
}

// SetPageSize changes the global page size. It is meant for configuration at startup and for tests.
func SetPageSize(size int) {
	if size <= 0 {
		panic("page size must be positive")
	}
	pageSize.Store(int64(size))
}

// ResetPageSize restores DefaultPageSize.
func ResetPageSize() {
	pageSize.Store(DefaultPageSize)
}
