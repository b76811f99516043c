package storage

import (
	"encoding/json"
	"fmt"
)

// BlockRecord is the persisted summary of a finalized block.
type BlockRecord struct {
	Height   int64    `json:"height"`
	Time     int64    `json:"time"`
	AppHash  string   `json:"app_hash"`
	TxHashes []string `json:"tx_hashes"`
	Failed   int      `json:"failed"`
}

var prefixBlock = []byte("h:b:")

func blockKey(height int64) []byte {
	return Key(prefixBlock, Uint64Key(uint64(height)))
}

// SaveBlock persists a block record.
func SaveBlock(kv KVStore, rec BlockRecord) error {
	if err := SetJSON(kv, blockKey(rec.Height), rec); err != nil {
		return fmt.Errorf("failed to save block %d: %w", rec.Height, err)
	}
	return nil
}

// LoadBlock returns nil if the height was never finalized.
func LoadBlock(r Reader, height int64) (*BlockRecord, error) {
	var rec BlockRecord
	found, err := GetJSON(r, blockKey(height), &rec)
	if err != nil {
		return nil, fmt.Errorf("failed to load block %d: %w", height, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// LatestBlock returns the highest finalized block, or nil before genesis.
func LatestBlock(r Reader) (*BlockRecord, error) {
	iter, err := PrefixIterator(r, prefixBlock, true)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Valid() {
		return nil, nil
	}
	var rec BlockRecord
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode latest block: %w", err)
	}
	return &rec, nil
}
