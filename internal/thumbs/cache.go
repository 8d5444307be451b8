// Package thumbs keeps decoded item thumbnails in a bounded LRU cache and
// prefetches the thumbnails of a listing in the background.
package thumbs

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jun/gophdrive/explorer/internal/metrics"
)

const (
	// DefaultCapacity is the number of thumbnails kept before eviction starts.
	DefaultCapacity = 300

	// Size is the bounding box, in pixels, thumbnails are fitted into.
	Size = 96
)

// Cache maps item ids to decoded thumbnails. It is safe for concurrent use.
// Entries are not invalidated when an item is renamed or deleted.
type Cache struct {
	lru *lru.Cache[string, image.Image]
}

// NewCache creates a cache holding at most capacity thumbnails.
// A non-positive capacity selects DefaultCapacity.
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.NewWithEvict(capacity, func(string, image.Image) {
		metrics.RecordThumbnailEviction()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the thumbnail for id and marks it most recently used.
func (c *Cache) Get(id string) (image.Image, bool) {
	img, ok := c.lru.Get(id)
	metrics.RecordThumbnailLookup(ok)
	return img, ok
}

// Put stores img under id and reports whether an older entry was evicted.
func (c *Cache) Put(id string, img image.Image) bool {
	return c.lru.Add(id, img)
}

// Contains reports whether id is cached without touching its recency.
func (c *Cache) Contains(id string) bool {
	return c.lru.Contains(id)
}

// Len returns the number of cached thumbnails.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Keys returns the cached ids from least to most recently used.
func (c *Cache) Keys() []string {
	return c.lru.Keys()
}

// Decode decodes an encoded thumbnail and fits it into Size x Size.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= Size && b.Dy() <= Size {
		return img, nil
	}
	return imaging.Fit(img, Size, Size, imaging.Lanczos), nil
}
