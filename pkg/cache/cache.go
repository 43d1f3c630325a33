// Package cache keeps analysis reports in an LRU keyed by content hash,
// persisted to disk with msgpack between runs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-flowsplit/pkg/types"
)

// ErrKeyNotFound is returned when a key is not found in the cache.
var ErrKeyNotFound = errors.New("key not found")

// formatVersion is bumped whenever the report layout changes; files with
// another version are ignored.
const formatVersion = 1

// Key derives the cache key of a source file analysed under the given
// settings fingerprint.
func Key(fingerprint string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is one cached report.
type Entry struct {
	Key        string            `msgpack:"key"`
	Report     *types.FileReport `msgpack:"report"`
	AccessedAt time.Time         `msgpack:"accessed_at"`
	CreatedAt  time.Time         `msgpack:"created_at"`
}

// listItem is an item in the recency list.
type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

// list is a doubly-linked recency list, most recent at head.
type list struct {
	head *listItem
	tail *listItem
	len  int
}

func (l *list) unlink(item *listItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		l.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		l.tail = item.prev
	}
	item.prev, item.next = nil, nil
	l.len--
}

func (l *list) pushFront(item *listItem) {
	item.prev = nil
	item.next = l.head
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	l.unlink(item)
	l.pushFront(item)
}

// Options configures the LRU cache.
type Options struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// OnEvict is called when an entry is evicted.
	OnEvict func(key string, report *types.FileReport)
}

// Stats reports cache usage.
type Stats struct {
	Length    int   `json:"length"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
}

// LRUCache is an in-memory LRU of reports. It is safe for concurrent use.
type LRUCache struct {
	mu      sync.Mutex
	items   map[string]*listItem
	lru     list
	maxSize int
	onEvict func(key string, report *types.FileReport)
	now     func() time.Time

	hits   int64
	misses int64
}

// New creates a new LRU cache with the given options.
func New(opts Options) *LRUCache {
	return &LRUCache{
		items:   make(map[string]*listItem),
		maxSize: opts.MaxSize,
		onEvict: opts.OnEvict,
		now:     time.Now,
	}
}

// Get retrieves a report and marks it most recently used.
func (c *LRUCache) Get(key string) (*types.FileReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	item.AccessedAt = c.now()
	c.lru.moveToFront(item)
	return item.Report, true
}

// Lookup is Get returning ErrKeyNotFound for a miss.
func (c *LRUCache) Lookup(key string) (*types.FileReport, error) {
	r, ok := c.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return r, nil
}

// Set stores a report, evicting the least recently used entries when full.
func (c *LRUCache) Set(key string, report *types.FileReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, exists := c.items[key]; exists {
		item.Report = report
		item.AccessedAt = now
		c.lru.moveToFront(item)
		return
	}

	item := &listItem{Entry: Entry{Key: key, Report: report, AccessedAt: now, CreatedAt: now}}
	c.items[key] = item
	c.lru.pushFront(item)
	c.evictIfNeeded()
}

// Delete removes a key from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	c.lru.unlink(item)
	delete(c.items, key)
	if c.onEvict != nil {
		c.onEvict(key, item.Report)
	}
}

// Clear removes all entries from the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = list{}
}

// Len returns the number of entries in the cache.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns the current cache statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Length: len(c.items), HitCount: c.hits, MissCount: c.misses}
}

// HitRate returns the cache hit rate.
func (c *LRUCache) HitRate() float64 {
	s := c.Stats()
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

func (c *LRUCache) evictIfNeeded() {
	for c.maxSize > 0 && c.lru.len > c.maxSize {
		item := c.lru.tail
		c.lru.unlink(item)
		delete(c.items, item.Key)
		if c.onEvict != nil {
			c.onEvict(item.Key, item.Report)
		}
	}
}

// snapshot is the persisted form: entries from least to most recent.
type snapshot struct {
	Version int     `msgpack:"version"`
	Entries []Entry `msgpack:"entries"`
}

// Save persists the cache to a writer using msgpack.
func (c *LRUCache) Save(w io.Writer) error {
	c.mu.Lock()
	data := snapshot{Version: formatVersion, Entries: make([]Entry, 0, len(c.items))}
	for item := c.lru.tail; item != nil; item = item.prev {
		data.Entries = append(data.Entries, item.Entry)
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(&data)
}

// Load replaces the cache content with a snapshot written by Save. A
// snapshot of another format version leaves the cache empty.
func (c *LRUCache) Load(r io.Reader) error {
	var data snapshot
	if err := msgpack.NewDecoder(r).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = list{}
	if data.Version != formatVersion {
		return nil
	}
	for _, e := range data.Entries {
		if e.Report == nil {
			continue
		}
		if old, ok := c.items[e.Key]; ok {
			c.lru.unlink(old)
		}
		item := &listItem{Entry: e}
		c.items[e.Key] = item
		c.lru.pushFront(item)
	}
	c.evictIfNeeded()
	return nil
}

// PersistToFile saves the cache to a file, creating its directory.
func PersistToFile(c *LRUCache, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if err := c.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFromFile loads the cache from a file. A missing file is not an error.
func LoadFromFile(c *LRUCache, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}
