package storage

import (
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// OpenBadger opens the on-disk store, or a volatile one when inMemory is set.
// Badger warnings and errors go to log.
func OpenBadger(path string, inMemory bool, log *slog.Logger) (*badger.DB, error) {
	options := badger.DefaultOptions(path)
	if inMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	}
	options = options.WithLogger(newBadgerLogger(log))
	return badger.Open(options)
}

// OpenInMemory returns a Database on a volatile badger instance, closed with the returned func.
func OpenInMemory(log *slog.Logger, opts ...Option) (*Database, func() error, error) {
	db, err := OpenBadger("", true, log)
	if err != nil {
		return nil, nil, err
	}
	database, err := NewDatabase(db, log, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return database, db.Close, nil
}
