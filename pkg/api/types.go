package api

import (
	"github.com/uhyunpark/hyperswap/pkg/abci"
	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// ChainStatus is the last committed chain state
type ChainStatus struct {
	ChainID     string `json:"chainId"`
	Height      int64  `json:"height"`
	BlockTime   int64  `json:"blockTime"` // Unix seconds
	AppHash     string `json:"appHash"`
	MempoolSize int    `json:"mempoolSize"` // Pending transactions
}

// AccountInfo is every balance held by an address plus its nonce
type AccountInfo struct {
	Address  string        `json:"address"`
	Nonce    uint64        `json:"nonce"`
	Balances []asset.Asset `json:"balances"`
}

// PoolInfo describes one AMM pair
type PoolInfo struct {
	Address string `json:"address"`
	Label   string `json:"label"`
	Pair    any    `json:"pair"`
	Pool    any    `json:"pool"`
}

// SubmitTxResponse is the response from transaction submission
type SubmitTxResponse struct {
	Status string `json:"status"` // "submitted"
	Hash   string `json:"hash"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// QueryRequest is the body of a raw contract query
type QueryRequest struct {
	Query  string `json:"query"`
	Params any    `json:"params,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// Channels clients can subscribe to
const (
	ChannelBlocks = "blocks"
	ChannelEvents = "events" // also "events:<contract address>"
)

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["blocks", "events:0x..."]
}

// BlockUpdate is broadcast on every committed block
type BlockUpdate struct {
	Type    string `json:"type"` // "block"
	Height  int64  `json:"height"`
	AppHash string `json:"appHash"`
	Txs     int    `json:"txs"`
	Failed  int    `json:"failed"`
}

// EventUpdate is broadcast for every event of a successful transaction
type EventUpdate struct {
	Type   string     `json:"type"` // "event"
	Height int64      `json:"height"`
	TxHash string     `json:"txHash"`
	Event  abci.Event `json:"event"`
}
