package watcher

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// contentCache keeps the last-seen text content per path so changes
// can be diffed. Entries are zstd-compressed and evicted in insertion
// order once the capacity is reached.
type contentCache struct {
	mu       sync.Mutex
	capacity int
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	entries  map[string][]byte
	order    []string
}

func newContentCache(capacity int) *contentCache {
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &contentCache{
		capacity: capacity,
		enc:      enc,
		dec:      dec,
		entries:  make(map[string][]byte),
	}
}

func (c *contentCache) Get(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	compressed, ok := c.entries[path]
	if !ok {
		return "", false
	}
	data, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (c *contentCache) Put(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[path]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, path)
	}
	c.entries[path] = c.enc.EncodeAll([]byte(content), nil)
}

func (c *contentCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[path]; !exists {
		return
	}
	delete(c.entries, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *contentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
