package storage

import (
	"encoding/json"
	"fmt"
)

// GetJSON loads and decodes the value at key. It reports false when the key
// is absent.
func GetJSON(r Reader, key []byte, v any) (bool, error) {
	data, err := r.Get(key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(kv KVStore, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return kv.Set(key, data)
}
