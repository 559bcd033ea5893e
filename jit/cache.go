package jit

import (
	"sort"
	"sync"

	"github.com/sarchlab/rvjit/emu"
)

// Entry is a built and loaded block.
type Entry struct {
	PC       uint32
	Name     string
	Source   string
	Artifact Artifact
	Count    int

	fn Func
}

// Invoke runs the block and returns the pc it reports.
func (e *Entry) Invoke(state *emu.State, ram []byte) (uint32, error) {
	return e.fn.Invoke(state, ram, e.PC)
}

// cache maps entry pcs to loaded blocks and remembers pcs that must not
// be translated again.
type cache struct {
	mu      sync.RWMutex
	entries map[uint32]*Entry
	failed  map[uint32]error
	pending map[uint32]struct{}
}

func newCache() *cache {
	return &cache{
		entries: map[uint32]*Entry{},
		failed:  map[uint32]error{},
		pending: map[uint32]struct{}{},
	}
}

func (c *cache) lookup(pc uint32) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[pc]
	c.mu.RUnlock()
	return entry, ok
}

func (c *cache) publish(entry *Entry) {
	c.mu.Lock()
	c.entries[entry.PC] = entry
	delete(c.pending, entry.PC)
	c.mu.Unlock()
}

func (c *cache) failure(pc uint32) error {
	c.mu.RLock()
	err := c.failed[pc]
	c.mu.RUnlock()
	return err
}

// fail records the first failure for pc.
func (c *cache) fail(pc uint32, err error) {
	c.mu.Lock()
	if _, ok := c.failed[pc]; !ok {
		c.failed[pc] = err
	}
	delete(c.pending, pc)
	c.mu.Unlock()
}

// claim marks pc as having a build in flight. It reports false if pc is
// already built, failed or pending.
func (c *cache) claim(pc uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[pc]; ok {
		return false
	}
	if _, ok := c.failed[pc]; ok {
		return false
	}
	if _, ok := c.pending[pc]; ok {
		return false
	}
	c.pending[pc] = struct{}{}
	return true
}

// remove drops pc from every table and returns its entry, if any.
func (c *cache) remove(pc uint32) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := c.entries[pc]
	delete(c.entries, pc)
	delete(c.failed, pc)
	return entry
}

// drain removes all entries in ascending pc order.
func (c *cache) drain() []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PC < entries[j].PC })

	c.entries = map[uint32]*Entry{}
	return entries
}

func (c *cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
