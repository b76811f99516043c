package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
)

// TypeTransfer moves native or token balances between accounts without
// invoking a contract.
const TypeTransfer = "transfer"

var (
	ErrMissingType      = errors.New("missing transaction type")
	ErrMissingSignature = errors.New("missing signature")
	ErrMissingContract  = errors.New("missing contract address")
	ErrFundsAndToken    = errors.New("transaction carries both funds and send_token")
)

// SignedTransaction is the envelope every message travels in.
//
// Funds are native coins escrowed into Contract before it runs. SendToken is
// a single token escrowed the same way, after which the contract's Receive
// hook runs with Msg instead of Execute.
type SignedTransaction struct {
	Type      string          `json:"type"`
	Contract  common.Address  `json:"contract"`
	Sender    common.Address  `json:"sender"`
	Nonce     uint64          `json:"nonce"`
	Funds     []asset.Asset   `json:"funds,omitempty"`
	SendToken *asset.Asset    `json:"send_token,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
	Signature string          `json:"signature"`
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate performs structural checks only. Signature and nonce are checked
// by the verifier and the app.
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return ErrMissingType
	}
	if tx.Signature == "" {
		return ErrMissingSignature
	}
	if tx.Type != TypeTransfer && tx.Contract == (common.Address{}) {
		return ErrMissingContract
	}
	if len(tx.Funds) > 0 && tx.SendToken != nil {
		return ErrFundsAndToken
	}
	for _, f := range tx.Funds {
		if !f.Info.IsNative() {
			return fmt.Errorf("funds must be native coins, got %s", f.Info)
		}
	}
	if tx.SendToken != nil && tx.SendToken.Info.IsNative() {
		return fmt.Errorf("send_token must be a token, got %s", tx.SendToken.Info)
	}
	return nil
}

// ParseTransaction decodes and validates a raw transaction
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// Example:
//   {
//     "type": "submit_order",
//     "contract": "0x5c4a...",
//     "sender": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//     "nonce": 7,
//     "funds": [{"info":{"native_token":{"denom":"orai"}},"amount":"1000"}],
//     "msg": {"direction":"sell","assets":[...]},
//     "signature": "0x1234567890abcdef..."
//   }
