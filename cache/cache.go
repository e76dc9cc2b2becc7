// Package cache persists extracted feature tensors in BadgerDB so repeated
// dataset builds skip decoding and extraction for unchanged files.
package cache

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

const (
	keyPrefix     = "tensor:"
	formatVersion = 1
)

// Options configures the feature cache
type Options struct {
	// Dir holds the badger files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in RAM, mainly for tests.
	InMemory bool
	// Logger receives badger's warnings and errors; nil uses the global logger.
	Logger logging.Logger
}

// FeatureCache maps opaque keys to tensors
type FeatureCache struct {
	db     *badger.DB
	logger logging.Logger
}

type entry struct {
	Version int              `msgpack:"v"`
	Tensor  *features.Tensor `msgpack:"t"`
}

// Open opens or creates a cache
func Open(opts Options) (*FeatureCache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("cache: Options.Dir is required for on-disk mode")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Fields{
		"component": "feature_cache",
	})

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}

	logger.Debug("Feature cache opened", logging.Fields{
		"dir":       opts.Dir,
		"in_memory": opts.InMemory,
	})
	return &FeatureCache{db: db, logger: logger}, nil
}

// Get returns the tensor stored under key. Entries written by another
// format version count as misses.
func (c *FeatureCache) Get(key string) (*features.Tensor, bool, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	var e entry
	if err := msgpack.Unmarshal(val, &e); err != nil {
		return nil, false, fmt.Errorf("cache: decode: %w", err)
	}
	if e.Version != formatVersion || e.Tensor == nil {
		return nil, false, nil
	}
	if len(e.Tensor.Data) != e.Tensor.Height*e.Tensor.Width*e.Tensor.Channels {
		return nil, false, fmt.Errorf("cache: corrupt tensor under %q", key)
	}
	return e.Tensor, true, nil
}

// Put stores t under key, replacing any previous value
func (c *FeatureCache) Put(key string, t *features.Tensor) error {
	if t == nil {
		return errors.New("cache: nil tensor")
	}
	val, err := msgpack.Marshal(entry{Version: formatVersion, Tensor: t})
	if err != nil {
		return fmt.Errorf("cache: encode: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), val)
	})
}

// Len counts stored tensors
func (c *FeatureCache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Clear drops every cached tensor
func (c *FeatureCache) Clear() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

// Close flushes and closes the underlying database
func (c *FeatureCache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger output into the structured logger. Info and
// debug chatter is dropped.
type badgerLogger struct {
	logger logging.Logger
}

func (b badgerLogger) Errorf(f string, v ...any) {
	b.logger.Error(nil, "badger: "+fmt.Sprintf(f, v...))
}

func (b badgerLogger) Warningf(f string, v ...any) {
	b.logger.Warn("badger: " + fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
