package storage

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB is the embedded store used when no Postgres server is configured.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

func OpenBadger(path string, logger arbor.ILogger) (*BadgerDB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	logger.Debug().Str("path", path).Msg("badger store opened")
	return &BadgerDB{store: store, logger: logger}, nil
}

func (b *BadgerDB) Close() error {
	if b != nil && b.store != nil {
		return b.store.Close()
	}
	return nil
}
