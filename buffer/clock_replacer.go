package buffer

import (
	"sync"
)

const (
	PinnedBit       uint8 = 1 << 7
	SecondChanceBit uint8 = 1 << 6
)

type counter struct {
	bits uint8
}

var _ IReplacer = &ClockReplacer{}

// ClockReplacer approximates lru with one reference bit per frame. The hand clears reference bits as it sweeps
// and stops at the first unpinned frame without one.
type ClockReplacer struct {
	frames         []counter
	victimIterator int
	lock           sync.Mutex
}

func (c *ClockReplacer) Pin(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameId].bits |= PinnedBit
	c.frames[frameId].bits |= SecondChanceBit
}

func (c *ClockReplacer) Unpin(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if (c.frames[frameId].bits & PinnedBit) == 0 {
		panic("unpinning a page which is already unpinned or not pinned at all")
	}

	c.frames[frameId].bits &= ^PinnedBit
}

func (c *ClockReplacer) Touch(frameId int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.frames[frameId].bits |= SecondChanceBit
}

func (c *ClockReplacer) ChooseVictim() (frameId int, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	st := c.victimIterator
	pass := 0
	for {
		f := c.frames[c.victimIterator]
		if f.bits&PinnedBit == 0 {
			if f.bits&SecondChanceBit > 0 {
				c.frames[c.victimIterator].bits &= ^SecondChanceBit
			} else if f.bits&SecondChanceBit == 0 {
				victim := c.victimIterator
				c.victimIterator = (c.victimIterator + 1) % c.GetSize()
				return victim, nil
			}
		}

		c.victimIterator = (c.victimIterator + 1) % c.GetSize()

		if c.victimIterator == st {
			if pass == 0 {
				pass++
			} else if pass == 1 {
				return 0, errNothingUnpinned
			}
		}
	}
}

func (c *ClockReplacer) GetSize() int {
	return len(c.frames)
}

func (c *ClockReplacer) NumPinnedPages() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	i := 0
	for _, frame := range c.frames {
		if frame.bits&PinnedBit > 0 {
			i++
		}
	}

	return i
}

// NewClockReplacer returns a replacer for size frames which all start pinned.
func NewClockReplacer(size int) *ClockReplacer {
	frames := make([]counter, size)
	for i := range frames {
		frames[i].bits = PinnedBit
	}

	return &ClockReplacer{
		frames: frames,
	}
}
