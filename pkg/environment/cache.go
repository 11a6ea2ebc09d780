package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"cropcal/entities"
)

// CacheConfig configures the embedded snapshot cache.
type CacheConfig struct {
	// Path is ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// Cache keeps the last snapshot seen per location hash so a failed fetch can
// fall back to stale-but-usable data.
type Cache struct {
	db *badger.DB
}

type badgerLogger struct{ logger *slog.Logger }

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func OpenCache(cfg CacheConfig) (*Cache, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("snapshot cache path is required")
	default:
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}
	return &Cache{db: db}, nil
}

func key(locationHash string) []byte { return []byte("snapshot/" + locationHash) }

func (c *Cache) Put(s *entities.EnvironmentalSnapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(s.LocationHash), b)
	})
}

// Get returns nil, nil when nothing is cached for the location.
func (c *Cache) Get(locationHash string) (*entities.EnvironmentalSnapshot, error) {
	var out *entities.EnvironmentalSnapshot
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(locationHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var s entities.EnvironmentalSnapshot
			if err := json.Unmarshal(val, &s); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			out = &s
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", locationHash, err)
	}
	return out, nil
}

// Healthy reports whether the cache is open.
func (c *Cache) Healthy() error {
	if c == nil || c.db == nil || c.db.IsClosed() {
		return errors.New("snapshot cache closed")
	}
	return nil
}

func (c *Cache) Close() error { return c.db.Close() }
