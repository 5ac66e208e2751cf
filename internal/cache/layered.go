package cache

import "time"

// LayeredCache reads from memory first and falls back to disk, promoting
// disk hits into memory. With an empty disk dir it degrades to memory-only.
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayeredCache builds the memory+disk pair. diskDir == "" disables the
// disk layer.
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	c := &LayeredCache{
		memory: NewMemoryCache(memoryTTL, 10*time.Minute),
	}
	if diskDir != "" {
		c.disk = NewDiskCache(diskDir, diskTTL)
	}
	return c
}

// Get checks memory, then disk.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}
	if c.disk != nil {
		if val, found := c.disk.Get(key); found {
			_ = c.memory.Set(key, val, 0)
			return val, true
		}
	}
	return nil, false
}

// Set stores the value in both layers.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.disk != nil {
		return c.disk.Set(key, value, ttl)
	}
	return nil
}

// Delete removes the value from both layers.
func (c *LayeredCache) Delete(key string) error {
	_ = c.memory.Delete(key)
	if c.disk != nil {
		_ = c.disk.Delete(key)
	}
	return nil
}

// Clear empties both layers.
func (c *LayeredCache) Clear() error {
	_ = c.memory.Clear()
	if c.disk != nil {
		return c.disk.Clear()
	}
	return nil
}
