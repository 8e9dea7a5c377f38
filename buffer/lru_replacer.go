package buffer

import (
	"sync"
)

var _ IReplacer = &LruReplacer{}

// LruReplacer evicts the unpinned frame that was unpinned or touched least recently.
type LruReplacer struct {
	unpinned []int
	pinned   map[int]struct{}
	size     int
	lock     sync.Mutex
}

func (l *LruReplacer) NumPinnedPages() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.pinned)
}

func (l *LruReplacer) Pin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if idx, ok := l.findFrameId(frameId); ok {
		l.unpinned = append(l.unpinned[:idx], l.unpinned[idx+1:]...)
	}
	l.pinned[frameId] = struct{}{}
}

func (l *LruReplacer) Unpin(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.pinned[frameId]; !ok {
		panic("unpinning a page which is already unpinned or not pinned at all")
	}

	delete(l.pinned, frameId)
	l.unpinned = append(l.unpinned, frameId)
}

func (l *LruReplacer) Touch(frameId int) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if idx, ok := l.findFrameId(frameId); ok {
		l.unpinned = append(l.unpinned[:idx], l.unpinned[idx+1:]...)
		l.unpinned = append(l.unpinned, frameId)
	}
}

// ChooseVictim pops the least recently used unpinned frame. The frame is pinned afterwards so that it is not
// chosen twice.
func (l *LruReplacer) ChooseVictim() (frameId int, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.unpinned) == 0 {
		return 0, errNothingUnpinned
	}

	victim := l.unpinned[0]
	l.unpinned = l.unpinned[1:]
	l.pinned[victim] = struct{}{}
	return victim, nil
}

func (l *LruReplacer) GetSize() int {
	return l.size
}

func (l *LruReplacer) findFrameId(frameId int) (int, bool) {
	for idx, curr := range l.unpinned {
		if curr == frameId {
			return idx, true
		}
	}
	return 0, false
}

// NewLruReplacer returns a replacer for size frames which all start pinned.
func NewLruReplacer(size int) *LruReplacer {
	pinned := make(map[int]struct{}, size)
	for i := 0; i < size; i++ {
		pinned[i] = struct{}{}
	}

	return &LruReplacer{
		unpinned: make([]int, 0, size),
		pinned:   pinned,
		size:     size,
	}
}
