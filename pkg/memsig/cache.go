package memsig

import "sync"

// scanCache memoizes the first raw match address seen for each
// distinct pattern value. Entries live for the whole process and are
// never evicted; later scans for the same pattern resume their region
// walk from the stored address. The first successful writer for a
// pattern wins, so concurrent scans for the same pattern merely waste
// a redundant walk.
type scanCache struct {
	mu      sync.Mutex
	entries map[Pattern]uint64
}

var patternMatches = &scanCache{entries: make(map[Pattern]uint64)}

func (c *scanCache) lookup(p Pattern) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.entries[p]
	return addr, ok
}

// store records addr for p unless another scan already stored one.
// The existence re-check happens under the same lock as the write.
func (c *scanCache) store(p Pattern, addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[p]; !ok {
		c.entries[p] = addr
	}
}
