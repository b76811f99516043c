package dex

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/bank"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

func (a *App) ledger() *bank.Querier {
	return bank.NewQuerier(storage.PrefixReader(a.db, prefixBank))
}

// Query runs a read-only contract query against committed state
func (a *App) Query(addr common.Address, query string, params json.RawMessage) (any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.contracts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, addr.Hex())
	}
	return c.handler.Query(storage.PrefixReader(a.db, contractPrefix(addr)), a.ledger(), query, params)
}

// QueryKind queries the first contract of kind
func (a *App) QueryKind(kind, query string, params any) (any, error) {
	addr, ok := a.Contract(kind, "")
	if !ok {
		return nil, fmt.Errorf("%w: no %s contract", ErrUnknownContract, kind)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return a.Query(addr, query, raw)
}

func (a *App) Balance(info asset.AssetInfo, owner common.Address) (numeric.Uint128, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger().Balance(info, owner)
}

func (a *App) Balances(owner common.Address) ([]asset.Asset, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger().Balances(owner)
}

func (a *App) Nonce(owner common.Address) (uint64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ledger().Nonce(owner)
}
