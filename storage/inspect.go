package storage

import (
	"livechat/contract"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const timestampDigits = 19

// Entry is one stored child as listed by the inspection tools.
type Entry struct {
	Path  string
	Key   string
	At    time.Time
	Size  int
	Value contract.Record
	Err   error
}

// Scan lists the stored children whose raw key starts with prefix, in key order.
// A value that cannot be decoded is listed with its decoding error.
// A limit of zero lists everything.
func Scan(db *badger.DB, prefix string, limit int) ([]Entry, error) {
	var entries []Entry
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if limit > 0 && len(entries) >= limit {
				return nil
			}
			item := it.Item()
			path, key, at := parseKey(string(item.Key()))
			entry := Entry{Path: path, Key: key, At: at}
			err := item.Value(func(val []byte) error {
				entry.Size = len(val)
				entry.Value, entry.Err = decodeRecord(val)
				return nil
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// Entries lists the children of the running database, see Scan.
func (d *Database) Entries(prefix string, limit int) ([]Entry, error) {
	return Scan(d.db, prefix, limit)
}

// Size returns the on-disk size of the LSM tree and of the value log.
func (d *Database) Size() (lsm, vlog int64) {
	return d.db.Size()
}

func parseKey(raw string) (path, key string, at time.Time) {
	i := strings.LastIndex(raw, "/")
	if i < 0 {
		return "", raw, time.Time{}
	}
	path, key = raw[:i], raw[i+1:]
	if len(key) < timestampDigits {
		return path, key, time.Time{}
	}
	if ms, err := strconv.ParseInt(key[:timestampDigits], 10, 64); err == nil {
		at = time.UnixMilli(ms).UTC()
	}
	return path, key, at
}
