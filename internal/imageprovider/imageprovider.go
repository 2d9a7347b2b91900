// Package imageprovider fetches and caches bird images with their
// attribution metadata.
package imageprovider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// ErrImageNotFound is returned when a species has no usable image.
// Not-found results are negatively cached so repeat lookups do not hit
// the provider again.
var ErrImageNotFound = errors.Newf("image not found").
	Component("imageprovider").
	Category(errors.CategoryNotFound).
	Build()

// ImageProvider fetches one bird image by scientific name.
type ImageProvider interface {
	Fetch(ctx context.Context, scientificName string) (BirdImage, error)
}

// BirdImage is a fetched image with its attribution.
type BirdImage struct {
	URL            string    `json:"url"`
	ScientificName string    `json:"scientific_name"`
	LicenseName    string    `json:"license_name"`
	LicenseURL     string    `json:"license_url"`
	AuthorName     string    `json:"author_name"`
	AuthorURL      string    `json:"author_url"`
	SourceProvider string    `json:"source_provider"`
	CachedAt       time.Time `json:"cached_at"`
}

// Cache TTLs. Successful lookups are kept for two weeks, misses for an
// hour so a species gaining a Wikipedia page is picked up eventually.
const (
	positiveTTL     = 14 * 24 * time.Hour
	negativeTTL     = time.Hour
	cleanupInterval = time.Hour
)

// negativeEntry marks a cached not-found result.
type negativeEntry struct{}

// Cache wraps an ImageProvider with a TTL cache and a negative cache.
// Concurrent fetches of the same species are collapsed to one provider
// call.
type Cache struct {
	provider ImageProvider
	entries  *gocache.Cache
	inflight sync.Map
	logger   *slog.Logger
}

// NewCache creates a cache over the given provider.
func NewCache(provider ImageProvider) *Cache {
	return &Cache{
		provider: provider,
		entries:  gocache.New(positiveTTL, cleanupInterval),
		logger:   getLogger(),
	}
}

func getLogger() *slog.Logger {
	if logger := logging.ForService("imageprovider"); logger != nil {
		return logger
	}
	return slog.Default()
}

// Get returns the image for a species, fetching through the provider on
// a cache miss. A negatively cached species returns ErrImageNotFound
// without a provider call.
func (c *Cache) Get(ctx context.Context, scientificName string) (BirdImage, error) {
	if value, found := c.entries.Get(scientificName); found {
		if _, negative := value.(negativeEntry); negative {
			return BirdImage{}, ErrImageNotFound
		}
		if image, ok := value.(BirdImage); ok {
			return image, nil
		}
	}

	// Collapse concurrent fetches for the same species onto one call.
	type fetchResult struct {
		once  sync.Once
		image BirdImage
		err   error
		done  chan struct{}
	}
	pending := &fetchResult{done: make(chan struct{})}
	if existing, loaded := c.inflight.LoadOrStore(scientificName, pending); loaded {
		prior := existing.(*fetchResult)
		select {
		case <-prior.done:
			return prior.image, prior.err
		case <-ctx.Done():
			return BirdImage{}, ctx.Err()
		}
	}

	pending.once.Do(func() {
		defer close(pending.done)
		defer c.inflight.Delete(scientificName)
		pending.image, pending.err = c.fetchAndStore(ctx, scientificName)
	})
	return pending.image, pending.err
}

func (c *Cache) fetchAndStore(ctx context.Context, scientificName string) (BirdImage, error) {
	image, err := c.provider.Fetch(ctx, scientificName)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			c.entries.Set(scientificName, negativeEntry{}, negativeTTL)
			c.logger.Debug("Negative-cached species without image",
				"scientific_name", scientificName)
			return BirdImage{}, ErrImageNotFound
		}
		return BirdImage{}, err
	}

	image.CachedAt = time.Now()
	c.entries.Set(scientificName, image, positiveTTL)
	return image, nil
}

// Len returns the number of cached entries, including negative ones.
func (c *Cache) Len() int {
	return c.entries.ItemCount()
}

// Flush drops all cached entries.
func (c *Cache) Flush() {
	c.entries.Flush()
}
