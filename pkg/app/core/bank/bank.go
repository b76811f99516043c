// Package bank is the host ledger: balances of every asset for every address
// (contracts included) and account nonces. Contracts never touch it directly;
// the host executes their transfer instructions through it.
package bank

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Key schema inside the bank namespace
//
//	bal:<addr><asset key> → asset.Asset
//	nonce:<addr>          → uint64
//
// Balances are keyed by owner first so one prefix scan lists an account.
var (
	prefixBalance = []byte("bal:")
	prefixNonce   = []byte("nonce:")
)

// balanceKey returns the key of one balance
// Format: "bal:{20-byte address}{asset key}"
func balanceKey(owner common.Address, info asset.AssetInfo) []byte {
	return storage.Key(prefixBalance, owner.Bytes(), info.Key())
}

// nonceKey returns the key of an account nonce
// Format: "nonce:{20-byte address}"
func nonceKey(addr common.Address) []byte {
	return storage.Key(prefixNonce, addr.Bytes())
}

// Querier reads balances. It satisfies asset.BalanceQuerier so contracts can
// look up pool reserves and their own holdings.
type Querier struct {
	r storage.Reader
}

func NewQuerier(r storage.Reader) *Querier { return &Querier{r: r} }

var _ asset.BalanceQuerier = (*Querier)(nil)

// Balance returns the amount of info held by owner, zero if none
func (q *Querier) Balance(info asset.AssetInfo, owner common.Address) (numeric.Uint128, error) {
	var a asset.Asset
	found, err := storage.GetJSON(q.r, balanceKey(owner, info), &a)
	if err != nil {
		return numeric.Uint128{}, fmt.Errorf("failed to load balance: %w", err)
	}
	if !found {
		return numeric.ZeroUint128(), nil
	}
	return a.Amount, nil
}

// Balances lists every non-zero balance of owner
func (q *Querier) Balances(owner common.Address) ([]asset.Asset, error) {
	iter, err := storage.PrefixIterator(q.r, storage.Key(prefixBalance, owner.Bytes()), false)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := []asset.Asset{}
	for ; iter.Valid(); iter.Next() {
		var a asset.Asset
		if err := decodeAsset(iter.Value(), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Nonce returns the last nonce accepted from addr, zero for a new account
func (q *Querier) Nonce(addr common.Address) (uint64, error) {
	raw, err := q.r.Get(nonceKey(addr))
	if err != nil || raw == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Bank mutates balances inside one transaction
type Bank struct {
	*Querier
	kv storage.KVStore
}

func New(kv storage.KVStore) *Bank {
	return &Bank{Querier: NewQuerier(kv), kv: kv}
}

func (b *Bank) setBalance(owner common.Address, a asset.Asset) error {
	if a.Amount.IsZero() {
		return b.kv.Delete(balanceKey(owner, a.Info))
	}
	return storage.SetJSON(b.kv, balanceKey(owner, a.Info), a)
}

// Mint credits new supply to an account (genesis and faucets only)
func (b *Bank) Mint(to common.Address, a asset.Asset) error {
	if err := a.Info.Validate(); err != nil {
		return err
	}
	bal, err := b.Balance(a.Info, to)
	if err != nil {
		return err
	}
	sum, err := bal.Add(a.Amount)
	if err != nil {
		return fmt.Errorf("mint %s to %s: %w", a, to.Hex(), err)
	}
	return b.setBalance(to, asset.Asset{Info: a.Info, Amount: sum})
}

// Send moves an asset between two accounts
// Returns ErrInsufficientFunds if the sender cannot cover the amount
func (b *Bank) Send(from, to common.Address, a asset.Asset) error {
	if a.Amount.IsZero() {
		return nil
	}
	fromBal, err := b.Balance(a.Info, from)
	if err != nil {
		return err
	}
	if fromBal.LT(a.Amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), asset.Asset{Info: a.Info, Amount: fromBal}, a)
	}
	left, err := fromBal.Sub(a.Amount)
	if err != nil {
		return err
	}
	if err := b.setBalance(from, asset.Asset{Info: a.Info, Amount: left}); err != nil {
		return err
	}

	toBal, err := b.Balance(a.Info, to)
	if err != nil {
		return err
	}
	sum, err := toBal.Add(a.Amount)
	if err != nil {
		return err
	}
	return b.setBalance(to, asset.Asset{Info: a.Info, Amount: sum})
}

// Execute applies the transfer instructions returned by the contract at from
func (b *Bank) Execute(from common.Address, transfers []asset.Transfer) error {
	for _, t := range transfers {
		if err := b.Send(from, t.Recipient, t.Asset); err != nil {
			return fmt.Errorf("transfer %s to %s: %w", t.Asset, t.Recipient.Hex(), err)
		}
	}
	return nil
}

// SetNonce records the last nonce accepted from addr
func (b *Bank) SetNonce(addr common.Address, nonce uint64) error {
	return b.kv.Set(nonceKey(addr), storage.Uint64Key(nonce))
}

// TransferMsg is the body of a plain "transfer" transaction.
type TransferMsg struct {
	To     common.Address `json:"to"`
	Amount asset.Asset    `json:"amount"`
}

func decodeAsset(data []byte, a *asset.Asset) error {
	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("failed to unmarshal balance: %w", err)
	}
	return nil
}
