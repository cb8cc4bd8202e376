// Package pebblestore implements store.Store on a pebble key-ordered document
// store. Documents are JSON values; secondary indexes are keys with empty values.
//
// Key layout (parts joined by 0x00):
//
//	user    {id}                    -> User
//	product {id}                    -> Product
//	cart    {id}                    -> Cart
//	acart   {userID}                -> id of the user's newest active cart
//	msg     {id}                    -> Message
//	conv    {convID} {created} {id} -> ""   conversation timeline, created is %020d ns
//	uconv   {userID} {convID}       -> ""   conversations a user takes part in
package pebblestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

const sep = "\x00"

// Store implements store.Store on pebble.
type Store struct {
	db *pebble.DB
	// mu serializes read-modify-write sequences. Single writes are atomic batches.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) a pebble database under dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory pebble: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

// prefix returns parts joined and terminated by the separator, so that "a" does
// not match keys of "ab".
func prefix(parts ...string) []byte {
	return []byte(strings.Join(parts, sep) + sep)
}

// prefixEnd returns the smallest key greater than every key starting with p.
func prefixEnd(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func validID(id string) error {
	if id == "" || strings.Contains(id, sep) {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

func (s *Store) getJSON(k []byte, v any) error {
	data, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %q: %w", bytes.SplitN(k, []byte(sep), 2)[0], err)
	}
	return nil
}

func setJSON(b *pebble.Batch, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return b.Set(k, data, nil)
}

// scanKeys calls fn with a copy of every key under p, ascending or descending.
// Returning false stops the scan.
func (s *Store) scanKeys(p []byte, upper []byte, reverse bool, fn func(k []byte) bool) error {
	if upper == nil {
		upper = prefixEnd(p)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}

	valid := iter.First
	step := iter.Next
	if reverse {
		valid, step = iter.Last, iter.Prev
	}
	for ok := valid(); ok; ok = step() {
		if !fn(append([]byte(nil), iter.Key()...)) {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("pebble iter close: %w", err)
	}
	return nil
}

// lastPart returns the part of k after the final separator.
func lastPart(k []byte) string {
	i := bytes.LastIndex(k, []byte(sep))
	return string(k[i+1:])
}
