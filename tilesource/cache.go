package tilesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/pcedit/tile"
	"golang.org/x/sync/errgroup"
)

// CachingSource wraps a Source with a badger-backed read-through cache.
// Cached payloads are stored as fetched, envelope included.
type CachingSource struct {
	inner  Source
	db     *badger.DB
	owned  bool
	logger *slog.Logger
}

// CacheOptions configures NewCachingSource.
type CacheOptions struct {
	// Path is the badger directory. Empty means in-memory.
	Path string
	// Logger receives cache diagnostics. nil disables logging.
	Logger *slog.Logger
}

// NewCachingSource opens a badger database and wraps inner with it.
func NewCachingSource(inner Source, opts CacheOptions) (*CachingSource, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("tilesource: open cache: %w", err)
	}

	c := NewCachingSourceWithDB(inner, db, opts.Logger)
	c.owned = true
	return c, nil
}

// NewCachingSourceWithDB wraps inner with an existing database. The caller
// keeps ownership of db.
func NewCachingSourceWithDB(inner Source, db *badger.DB, logger *slog.Logger) *CachingSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachingSource{inner: inner, db: db, logger: logger}
}

func cacheKey(datasetID string, t tile.Tile) []byte {
	return []byte(ObjectKey(datasetID, t))
}

// Fetch implements Source.
func (c *CachingSource) Fetch(ctx context.Context, datasetID string, t tile.Tile) ([]byte, error) {
	key := cacheKey(datasetID, t)

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	switch {
	case err == nil:
		return data, nil
	case !errors.Is(err, badger.ErrKeyNotFound):
		c.logger.Warn("tile cache read failed", "tile", t.ID, "error", err)
	}

	data, err = c.inner.Fetch(ctx, datasetID, t)
	if err != nil {
		return nil, err
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		c.logger.Warn("tile cache write failed", "tile", t.ID, "error", err)
	}
	return data, nil
}

// Cached reports whether a tile is in the cache.
func (c *CachingSource) Cached(datasetID string, t tile.Tile) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(cacheKey(datasetID, t))
		return err
	})
	return err == nil
}

// Warm fetches every tile not yet cached, at most concurrency at a time.
func (c *CachingSource) Warm(ctx context.Context, datasetID string, tiles []tile.Tile, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, t := range tiles {
		if c.Cached(datasetID, t) {
			continue
		}
		g.Go(func() error {
			_, err := c.Fetch(ctx, datasetID, t)
			return err
		})
	}
	return g.Wait()
}

// Invalidate drops every cached tile of a dataset.
func (c *CachingSource) Invalidate(datasetID string) error {
	return c.db.DropPrefix([]byte(datasetID + "/"))
}

// Close closes the database if the cache opened it.
func (c *CachingSource) Close() error {
	if c.owned {
		return c.db.Close()
	}
	return nil
}
