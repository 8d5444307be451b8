package thumbs

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of thumbnails fetched at once.
const DefaultConcurrency = 4

// Fetcher returns the encoded small thumbnail of an item.
type Fetcher interface {
	Thumbnail(ctx context.Context, id string) ([]byte, error)
}

// Prefetcher fills a Cache with the thumbnails of a listing. Starting a new
// batch cancels the previous one.
type Prefetcher struct {
	cache       *Cache
	concurrency int
	logger      *zap.Logger

	// run serializes Start and Stop so only one batch is ever installed.
	run sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPrefetcher creates a prefetcher writing into cache.
func NewPrefetcher(cache *Cache, concurrency int, logger *zap.Logger) *Prefetcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{cache: cache, concurrency: concurrency, logger: logger}
}

// Start fetches the thumbnails for ids that are not cached yet. It returns
// immediately; use Wait to block until the batch finishes. Concurrent calls
// are safe: each cancels the batch it replaces.
func (p *Prefetcher) Start(ctx context.Context, f Fetcher, ids []string) {
	p.run.Lock()
	defer p.run.Unlock()
	p.stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for _, id := range ids {
			if gctx.Err() != nil {
				break
			}
			if p.cache.Contains(id) {
				continue
			}
			g.Go(func() error {
				p.fetch(gctx, f, id)
				return nil
			})
		}
		g.Wait()
	}()
}

// a missing or undecodable thumbnail only means the item is shown without one
func (p *Prefetcher) fetch(ctx context.Context, f Fetcher, id string) {
	data, err := f.Thumbnail(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debug("thumbnail unavailable", zap.String("item_id", id), zap.Error(err))
		}
		return
	}
	img, err := Decode(data)
	if err != nil {
		p.logger.Warn("thumbnail decode failed", zap.String("item_id", id), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.cache.Put(id, img)
}

// Stop cancels the running batch, if any, and waits for it to exit.
func (p *Prefetcher) Stop() {
	p.run.Lock()
	defer p.run.Unlock()
	p.stop()
}

func (p *Prefetcher) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the running batch, if any, completes.
func (p *Prefetcher) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}
