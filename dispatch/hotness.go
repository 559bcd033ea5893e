package dispatch

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// HotTracker counts visits to candidate block entry pcs in a
// set-associative LRU directory. Evicted pcs start over from zero.
type HotTracker struct {
	// Akita cache directory for tag and LRU management
	directory *akitacache.DirectoryImpl
	ways      int
	threshold uint32

	// Visit counts, indexed by (setID * ways + wayID)
	counts []uint32
}

// NewHotTracker creates a tracker with sets x ways slots that reports a pc
// once it has been visited threshold times.
func NewHotTracker(sets, ways int, threshold uint32) *HotTracker {
	return &HotTracker{
		directory: akitacache.NewDirectory(
			sets,
			ways,
			4,
			akitacache.NewLRUVictimFinder(),
		),
		ways:      ways,
		threshold: threshold,
		counts:    make([]uint32, sets*ways),
	}
}

// Threshold returns the visit count at which a pc becomes hot.
func (h *HotTracker) Threshold() uint32 {
	return h.threshold
}

func (h *HotTracker) index(block *akitacache.Block) int {
	return block.SetID*h.ways + block.WayID
}

// Touch records a visit to pc. It returns true exactly once per residency,
// on the visit that brings the count to the threshold.
func (h *HotTracker) Touch(pc uint32) bool {
	addr := uint64(pc)

	block := h.directory.Lookup(0, addr)
	if block == nil || !block.IsValid {
		block = h.directory.FindVictim(addr)
		if block == nil {
			return false
		}
		block.Tag = addr
		block.IsValid = true
		h.counts[h.index(block)] = 0
	}
	h.directory.Visit(block)

	i := h.index(block)
	if h.counts[i] >= h.threshold {
		return false
	}
	h.counts[i]++

	return h.counts[i] == h.threshold
}

// Count returns the visits recorded for pc, or 0 if it is not tracked.
func (h *HotTracker) Count(pc uint32) uint32 {
	block := h.directory.Lookup(0, uint64(pc))
	if block == nil || !block.IsValid {
		return 0
	}
	return h.counts[h.index(block)]
}

// Forget drops pc so that it has to become hot again.
func (h *HotTracker) Forget(pc uint32) {
	block := h.directory.Lookup(0, uint64(pc))
	if block != nil && block.IsValid {
		block.IsValid = false
		h.counts[h.index(block)] = 0
	}
}

// Reset forgets every pc.
func (h *HotTracker) Reset() {
	h.directory.Reset()
	clear(h.counts)
}
