package transaction

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

var ErrSignerMismatch = errors.New("signature does not match sender")

// signDoc is the envelope minus the signature, bound to a chain id
type signDoc struct {
	ChainID   string          `json:"chain_id"`
	Type      string          `json:"type"`
	Contract  common.Address  `json:"contract"`
	Sender    common.Address  `json:"sender"`
	Nonce     uint64          `json:"nonce"`
	Funds     json.RawMessage `json:"funds"`
	SendToken json.RawMessage `json:"send_token"`
	Msg       json.RawMessage `json:"msg"`
}

// SignHash returns keccak256 of the canonical JSON of tx without its signature
func SignHash(chainID string, tx *SignedTransaction) ([]byte, error) {
	funds, err := json.Marshal(tx.Funds)
	if err != nil {
		return nil, err
	}
	token, err := json.Marshal(tx.SendToken)
	if err != nil {
		return nil, err
	}
	msg := tx.Msg
	if len(msg) == 0 {
		msg = json.RawMessage("null")
	}
	// json.Marshal compacts embedded raw messages, so whitespace in Msg
	// does not change the hash.
	doc, err := json.Marshal(signDoc{
		ChainID:   chainID,
		Type:      tx.Type,
		Contract:  tx.Contract,
		Sender:    tx.Sender,
		Nonce:     tx.Nonce,
		Funds:     funds,
		SendToken: token,
		Msg:       msg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign doc: %w", err)
	}
	return ethcrypto.Keccak256(doc), nil
}

// Sign fills in tx.Signature
func Sign(chainID string, tx *SignedTransaction, signer *crypto.Signer) error {
	hash, err := SignHash(chainID, tx)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(hash)
	if err != nil {
		return err
	}
	tx.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// Verifier checks transaction signatures for one chain
type Verifier struct {
	chainID string
}

func NewVerifier(chainID string) *Verifier {
	return &Verifier{chainID: chainID}
}

// Verify recovers the signer of tx and checks it is the declared sender
func (v *Verifier) Verify(tx *SignedTransaction) (common.Address, error) {
	sig, err := decodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	hash, err := SignHash(v.chainID, tx)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := crypto.RecoverAddress(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != tx.Sender {
		return common.Address{}, fmt.Errorf("%w: signed by %s, sender %s", ErrSignerMismatch, signer.Hex(), tx.Sender.Hex())
	}
	return signer, nil
}

// decodeSignature decodes hex-encoded signature (with or without 0x prefix)
func decodeSignature(sig string) ([]byte, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	return sigBytes, nil
}
