package provider

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-globe/pkg/formats"
)

// MemoryCache keeps recently decoded tiles in an LRU in front of another
// fetcher. Cached grids are shared and must not be modified.
type MemoryCache struct {
	next  Fetcher
	tiles *lru.Cache[Tile, *formats.Grid]
}

// NewMemoryCache wraps next with an LRU of size tiles.
func NewMemoryCache(next Fetcher, size int) (*MemoryCache, error) {
	tiles, err := lru.New[Tile, *formats.Grid](max(size, 1))
	if err != nil {
		return nil, fmt.Errorf("creating tile lru: %w", err)
	}
	return &MemoryCache{next: next, tiles: tiles}, nil
}

// Fetch returns the cached grid or fetches and caches it.
func (c *MemoryCache) Fetch(ctx context.Context, t Tile) (*formats.Grid, error) {
	if g, ok := c.tiles.Get(t); ok {
		return g, nil
	}
	g, err := c.next.Fetch(ctx, t)
	if err != nil {
		return nil, err
	}
	if g != nil {
		c.tiles.Add(t, g)
	}
	return g, nil
}

// Len returns the number of cached tiles.
func (c *MemoryCache) Len() int {
	return c.tiles.Len()
}

var tilesBucket = []byte("tiles")

// BoltCache persists decoded tiles in a bbolt file so later sessions start
// without the network.
type BoltCache struct {
	next Fetcher
	db   *bbolt.DB
	log  *zap.Logger
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string, next Fetcher, log *zap.Logger) (*BoltCache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening tile cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tilesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tile bucket: %w", err)
	}
	return &BoltCache{next: next, db: db, log: log}, nil
}

// Fetch returns the stored tile or fetches and stores it.
func (c *BoltCache) Fetch(ctx context.Context, t Tile) (*formats.Grid, error) {
	key := []byte(t.String())

	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(tilesBucket).Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tile cache: %w", err)
	}
	if data != nil {
		g, err := formats.ParseDDM(data)
		if err == nil {
			return g, nil
		}
		c.log.Warn("corrupt cached tile", zap.Stringer("tile", t), zap.Error(err))
	}

	g, err := c.next.Fetch(ctx, t)
	if err != nil || g == nil {
		return g, err
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tilesBucket).Put(key, formats.EncodeDDM(g))
	})
	if err != nil {
		c.log.Warn("storing tile failed", zap.Stringer("tile", t), zap.Error(err))
	}
	return g, nil
}

// Len returns the number of stored tiles.
func (c *BoltCache) Len() int {
	var n int
	c.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(tilesBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the cache file.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
