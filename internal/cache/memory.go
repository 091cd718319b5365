package cache

import (
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// memoryLayer is the in-process cache tier: a bounded map with lazy TTL
// expiry and oldest-inserted-first eviction.
type memoryLayer struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]Entry
	order      []string
	now        func() time.Time
}

func newMemoryLayer(maxEntries int, now func() time.Time) *memoryLayer {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if now == nil {
		now = time.Now
	}
	return &memoryLayer{
		maxEntries: maxEntries,
		entries:    make(map[string]Entry),
		now:        now,
	}
}

func (m *memoryLayer) get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	if m.expired(entry) {
		m.remove(key)
		return Entry{}, false
	}
	return entry, true
}

func (m *memoryLayer) set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		m.order = append(m.order, key)
	}
	m.entries[key] = entry
	for len(m.order) > m.maxEntries {
		oldest := m.order[0]
		m.remove(oldest)
	}
}

func (m *memoryLayer) delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false
	}
	m.remove(key)
	return true
}

func (m *memoryLayer) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	m.order = nil
}

// deleteByTag purges every entry carrying the tag and returns the count.
func (m *memoryLayer) deleteByTag(tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if slices.Contains(entry.Tags, tag) {
			m.remove(key)
			removed++
		}
	}
	return removed
}

// deleteByPattern purges entries whose key matches the glob pattern.
func (m *memoryLayer) deleteByPattern(pattern string) int {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if re.MatchString(key) {
			m.remove(key)
			removed++
		}
	}
	return removed
}

func (m *memoryLayer) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// remove expects m.mu to be held.
func (m *memoryLayer) remove(key string) {
	delete(m.entries, key)
	if idx := slices.Index(m.order, key); idx >= 0 {
		m.order = slices.Delete(m.order, idx, idx+1)
	}
}

func (m *memoryLayer) expired(entry Entry) bool {
	if entry.TTL <= 0 {
		return false
	}
	return m.now().After(entry.StoredAt.Add(entry.TTL))
}

// globToRegexp translates a glob with * wildcards into an anchored regexp.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}
