// Package store persists committed application state in badger, one
// snapshot per height, so the application can answer a restart handshake.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

var (
	keyLatest   = []byte("meta/latest")
	statePrefix = []byte("state/")
)

// ErrNotFound is returned by StateAt for heights that were never saved or
// have been pruned.
var ErrNotFound = errors.New("state not found")

// DefaultRetain is the number of snapshots kept when no option is given.
const DefaultRetain = 100

// Store is a badger-backed committed-state store.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	dataDir string
	retain  uint64

	gcInterval time.Duration
	gcStop     chan struct{}
	gcWg       sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger badger and the store log to.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithDataDir stores data under dir. Without it the store is in memory.
func WithDataDir(dir string) Option {
	return func(s *Store) { s.dataDir = dir }
}

// WithRetain keeps the n most recent snapshots. 0 keeps every snapshot.
func WithRetain(n uint64) Option {
	return func(s *Store) { s.retain = n }
}

// WithGCInterval runs value log GC periodically. 0 disables it.
func WithGCInterval(d time.Duration) Option {
	return func(s *Store) { s.gcInterval = d }
}

// Open opens (or creates) a store.
func Open(opts ...Option) (*Store, error) {
	s := &Store{retain: DefaultRetain}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var bopts badger.Options
	if s.dataDir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		bopts = badger.DefaultOptions(s.dataDir).WithCompression(options.Snappy)
	}
	bopts = bopts.
		WithLogger(&badgerLogger{logger: s.logger}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db

	if s.gcInterval > 0 && s.dataDir != "" {
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGC()
	}
	return s, nil
}

func stateKey(height uint64) []byte {
	key := make([]byte, len(statePrefix)+8)
	copy(key, statePrefix)
	binary.BigEndian.PutUint64(key[len(statePrefix):], height)
	return key
}

// SaveState stores state as the snapshot of height and marks it latest.
// Snapshots older than the retention window are deleted in the same
// transaction.
func (s *Store) SaveState(ctx context.Context, height uint64, state []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var latest [8]byte
	binary.BigEndian.PutUint64(latest[:], height)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(stateKey(height), state); err != nil {
			return err
		}
		if err := txn.Set(keyLatest, latest[:]); err != nil {
			return err
		}
		if s.retain == 0 || height < s.retain {
			return nil
		}
		return prune(txn, height-s.retain+1)
	})
}

// prune deletes snapshots below height.
func prune(txn *badger.Txn, below uint64) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = statePrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var stale [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if binary.BigEndian.Uint64(key[len(statePrefix):]) >= below {
			break
		}
		stale = append(stale, key)
	}
	for _, key := range stale {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the latest snapshot. found is false for an empty
// store.
func (s *Store) LoadState(ctx context.Context) (height uint64, state []byte, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, false, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLatest)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupt latest height: %d bytes", len(raw))
		}
		height = binary.BigEndian.Uint64(raw)
		state, err = get(txn, height)
		found = err == nil
		return err
	})
	return height, state, found, err
}

// StateAt returns the snapshot of height.
func (s *Store) StateAt(ctx context.Context, height uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		state, err = get(txn, height)
		return err
	})
	return state, err
}

// Heights lists the retained snapshot heights in ascending order.
func (s *Store) Heights(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = statePrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, binary.BigEndian.Uint64(it.Item().Key()[len(statePrefix):]))
		}
		return nil
	})
	return out, err
}

func get(txn *badger.Txn, height uint64) ([]byte, error) {
	item, err := txn.Get(stateKey(height))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *Store) runGC() {
	defer s.gcWg.Done()
	t := time.NewTicker(s.gcInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					// Run it again if it just ran successfully
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log GC failed", "component", "store", "error", err)
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcStop = nil
	}
	return s.db.Close()
}
