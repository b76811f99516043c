package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

var ErrTxnClosed = errors.New("transaction already committed or discarded")

// Reader is the read side shared by the committed store and open transactions.
// Get returns nil when the key is absent.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Iterator(start, end []byte, reverse bool) (Iterator, error)
}

// KVStore is an ordered key-value store as seen by a single invocation.
type KVStore interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Iterator walks a key range [start, end) in ascending or descending order.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Close() error
}

// pebbleReader is satisfied by *pebble.DB and indexed *pebble.Batch.
type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// DB is the committed state, backed by Pebble.
type DB struct {
	db *pebble.DB
}

func Open(path string) (*DB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens a Pebble instance on an in-memory filesystem.
func OpenInMemory() (*DB, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Get(key []byte) ([]byte, error) { return get(d.db, key) }

func (d *DB) Iterator(start, end []byte, reverse bool) (Iterator, error) {
	return newIterator(d.db, start, end, reverse)
}

// Begin opens an atomic unit of work. Reads observe the transaction's own
// writes; nothing reaches the DB until Commit.
func (d *DB) Begin() *Txn {
	return &Txn{batch: d.db.NewIndexedBatch()}
}

func get(r pebbleReader, key []byte) ([]byte, error) {
	val, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Op is one write applied by a committed transaction.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Txn wraps an indexed Pebble batch. It implements KVStore.
type Txn struct {
	batch *pebble.Batch
	ops   []Op
	done  bool
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, ErrTxnClosed
	}
	return get(t.batch, key)
}

func (t *Txn) Iterator(start, end []byte, reverse bool) (Iterator, error) {
	if t.done {
		return nil, ErrTxnClosed
	}
	return newIterator(t.batch, start, end, reverse)
}

func (t *Txn) Set(key, value []byte) error {
	if t.done {
		return ErrTxnClosed
	}
	if err := t.batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	t.ops = append(t.ops, Op{Key: clone(key), Value: clone(value)})
	return nil
}

func (t *Txn) Delete(key []byte) error {
	if t.done {
		return ErrTxnClosed
	}
	if err := t.batch.Delete(key, nil); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	t.ops = append(t.ops, Op{Key: clone(key), Delete: true})
	return nil
}

// Ops lists the writes in application order.
func (t *Txn) Ops() []Op { return t.ops }

func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnClosed
	}
	t.done = true
	defer t.batch.Close()
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Discard drops every write. Safe to call after Commit.
func (t *Txn) Discard() {
	if t.done {
		return
	}
	t.done = true
	t.ops = nil
	_ = t.batch.Close()
}

type pebbleIterator struct {
	it      *pebble.Iterator
	reverse bool
}

func newIterator(r pebbleReader, start, end []byte, reverse bool) (Iterator, error) {
	it, err := r.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	if reverse {
		it.Last()
	} else {
		it.First()
	}
	return &pebbleIterator{it: it, reverse: reverse}, nil
}

func (p *pebbleIterator) Valid() bool { return p.it.Valid() }

func (p *pebbleIterator) Next() {
	if p.reverse {
		p.it.Prev()
	} else {
		p.it.Next()
	}
}

func (p *pebbleIterator) Key() []byte   { return clone(p.it.Key()) }
func (p *pebbleIterator) Value() []byte { return clone(p.it.Value()) }
func (p *pebbleIterator) Close() error  { return p.it.Close() }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var (
	_ KVStore = (*Txn)(nil)
	_ Reader  = (*DB)(nil)
)
