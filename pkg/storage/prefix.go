package storage

import "bytes"

type prefixStore struct {
	parent Reader
	prefix []byte
}

// Prefix scopes every key of kv under prefix.
func Prefix(kv KVStore, prefix []byte) KVStore {
	return &prefixStore{parent: kv, prefix: clone(prefix)}
}

// PrefixReader is Prefix for read-only access.
func PrefixReader(r Reader, prefix []byte) Reader {
	return &prefixStore{parent: r, prefix: clone(prefix)}
}

func (p *prefixStore) key(k []byte) []byte { return Key(p.prefix, k) }

func (p *prefixStore) Get(key []byte) ([]byte, error) {
	return p.parent.Get(p.key(key))
}

func (p *prefixStore) Set(key, value []byte) error {
	return p.parent.(KVStore).Set(p.key(key), value)
}

func (p *prefixStore) Delete(key []byte) error {
	return p.parent.(KVStore).Delete(p.key(key))
}

func (p *prefixStore) Iterator(start, end []byte, reverse bool) (Iterator, error) {
	lower := p.key(start)
	var upper []byte
	if end != nil {
		upper = p.key(end)
	} else {
		upper = PrefixEnd(p.prefix)
	}
	it, err := p.parent.Iterator(lower, upper, reverse)
	if err != nil {
		return nil, err
	}
	return &prefixIterator{Iterator: it, prefix: p.prefix}, nil
}

type prefixIterator struct {
	Iterator
	prefix []byte
}

func (it *prefixIterator) Key() []byte {
	return bytes.TrimPrefix(it.Iterator.Key(), it.prefix)
}

// PrefixIterator scans every key that starts with prefix.
func PrefixIterator(r Reader, prefix []byte, reverse bool) (Iterator, error) {
	return r.Iterator(prefix, PrefixEnd(prefix), reverse)
}
