// Package kv implements the session store on BadgerDB. Expiry is delegated to
// Badger entry TTLs, so Prune only has to sweep entries written without one.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nextlevelbuilder/squabble/internal/store"
)

const keyPrefix = "session/"

// SessionStore implements store.SessionStore on Badger.
type SessionStore struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens a Badger database at dir. An empty dir keeps everything in memory.
func Open(dir string, ttl time.Duration) (*SessionStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	slog.Debug("badger session store opened", "dir", dir, "in_memory", dir == "")
	return &SessionStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SessionStore) Get(_ context.Context, key string) (*store.SessionData, error) {
	var d store.SessionData
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, &d)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 && s.now().Sub(d.Updated) > s.ttl {
		return nil, nil
	}
	return &d, nil
}

func (s *SessionStore) Save(_ context.Context, d *store.SessionData) error {
	now := s.now()
	if d.Created.IsZero() {
		d.Created = now
	}
	d.Updated = now
	val, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+d.Key), val)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *SessionStore) Delete(_ context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

func (s *SessionStore) Prune(_ context.Context, before time.Time) (int, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var d store.SessionData
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &d) }); err != nil {
				continue
			}
			if d.Updated.Before(before) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *SessionStore) Close() error { return s.db.Close() }
