package scan

import "time"

const (
	// DedupWindow is how long a repeat of the same code is treated as the
	// same physical scan.
	DedupWindow = 2000 * time.Millisecond
	// DedupHorizon is the age after which entries are purged.
	DedupHorizon = 5000 * time.Millisecond
)

// DedupCache remembers recently seen canonical codes. It is not safe for
// concurrent use; the validation machine owns it.
type DedupCache struct {
	window  time.Duration
	horizon time.Duration
	seen    map[string]time.Time
}

// NewDedupCache returns a cache with the default window and horizon.
func NewDedupCache() *DedupCache {
	return &DedupCache{
		window:  DedupWindow,
		horizon: DedupHorizon,
		seen:    make(map[string]time.Time),
	}
}

// IsDuplicate purges stale entries, then reports whether code was seen
// within the dedup window before now. A non-duplicate is recorded at now;
// a duplicate leaves the existing entry untouched.
func (c *DedupCache) IsDuplicate(code string, now time.Time) bool {
	for k, ts := range c.seen {
		if now.Sub(ts) > c.horizon {
			delete(c.seen, k)
		}
	}
	if ts, ok := c.seen[code]; ok && now.Sub(ts) < c.window {
		return true
	}
	c.seen[code] = now
	return false
}

// Reset forgets every entry.
func (c *DedupCache) Reset() {
	clear(c.seen)
}

// Len returns the number of tracked codes.
func (c *DedupCache) Len() int {
	return len(c.seen)
}
