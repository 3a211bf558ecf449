package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig holds configuration for a Badger-backed handle.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// Badger is a storage handle over an embedded BadgerDB. The database is safe
// for concurrent use, so the handle adds no locking of its own.
type Badger struct {
	db  *badger.DB
	seq atomic.Uint64
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (creating if needed) a Badger-backed handle.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger storage")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create storage directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

func dataKey(userID string) []byte { return []byte("data/" + userID) }
func logPrefix(userID string) []byte { return []byte("log/" + userID + "/") }

func (b *Badger) Save(_ context.Context, userID string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dataKey(userID), raw)
	})
}

func (b *Badger) Get(_ context.Context, userID string) (map[string]any, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(userID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get data: %w", err)
	}
	return decodeMap(raw)
}

func (b *Badger) Log(_ context.Context, userID string, entry map[string]any) error {
	raw, err := json.Marshal(stampEntry(entry))
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	// Zero padding keeps lexical key order equal to append order.
	key := fmt.Sprintf("%s%020d-%010d", logPrefix(userID), time.Now().UnixNano(), b.seq.Add(1))
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

func (b *Badger) Logs(_ context.Context, userID string, limit int) ([]map[string]any, error) {
	var raw [][]byte
	prefix := logPrefix(userID)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			raw = append(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	return decodeEntries(tail(raw, limit))
}

func (b *Badger) Close() error { return b.db.Close() }
