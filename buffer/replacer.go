package buffer

import "errors"

var errNothingUnpinned = errors.New("nothing is unpinned")

// IReplacer chooses which frame to reuse when the pool is full. Pinned frames are never chosen.
type IReplacer interface {
	Pin(frameId int)
	Unpin(frameId int)

	// Touch records an access to an unpinned frame.
	Touch(frameId int)
	ChooseVictim() (frameId int, err error)
	GetSize() int
	NumPinnedPages() int
}

// NewReplacer returns the replacer registered under name, "clock" or "lru".
func NewReplacer(name string, size int) (IReplacer, error) {
	switch name {
	case "", "clock":
		return NewClockReplacer(size), nil
	case "lru":
		return NewLruReplacer(size), nil
	}
	return nil, errors.New("unknown replacer: " + name)
}
