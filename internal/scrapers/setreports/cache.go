package setreports

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var ErrPageNotCached = errors.New("page not cached")

// PageCache keeps the raw html of fetched report pages so they can be parsed
// again without hitting the site.
type PageCache struct {
	db *badger.DB
}

// OpenPageCache opens the cache in dir, an empty dir keeps it in memory.
func OpenPageCache(dir string) (*PageCache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open page cache: %w", err)
	}
	return &PageCache{db: db}, nil
}

func (c *PageCache) Close() error {
	return c.db.Close()
}

func pageKey(sid int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(sid))
	return key
}

func (c *PageCache) Put(sid int64, body []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pageKey(sid), body)
	})
}

func (c *PageCache) Get(sid int64) ([]byte, error) {
	var body []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(sid))
		if err != nil {
			return err
		}
		body, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrPageNotCached
	}
	return body, err
}

// Each calls fn for every cached page in sid order until fn returns an error.
func (c *PageCache) Each(fn func(sid int64, body []byte) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 8 {
				continue
			}
			body, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			err = fn(int64(binary.BigEndian.Uint64(key)), body)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
