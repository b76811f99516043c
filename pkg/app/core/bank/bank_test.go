package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")

	orai = asset.Native("orai")
	usdt = asset.Native("usdt")
)

// newTestBank opens a bank over an in-memory store
// The transaction is discarded when the test ends
func newTestBank(t *testing.T) *Bank {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	txn := db.Begin()
	t.Cleanup(func() {
		txn.Discard()
		db.Close()
	})
	return New(storage.Prefix(txn, []byte("b:")))
}

func coin(info asset.AssetInfo, amount uint64) asset.Asset {
	return asset.Asset{Info: info, Amount: numeric.NewUint128(amount)}
}

func balanceOf(t *testing.T, b *Bank, info asset.AssetInfo, owner common.Address) uint64 {
	t.Helper()
	bal, err := b.Balance(info, owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Uint64()
}

// TestMintAndSend tests crediting and moving balances
func TestMintAndSend(t *testing.T) {
	b := newTestBank(t)

	if got := balanceOf(t, b, orai, alice); got != 0 {
		t.Errorf("expected zero balance, got %d", got)
	}
	if err := b.Mint(alice, coin(orai, 1000)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if err := b.Send(alice, bob, coin(orai, 400)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := balanceOf(t, b, orai, alice); got != 600 {
		t.Errorf("alice: got %d, want 600", got)
	}
	if got := balanceOf(t, b, orai, bob); got != 400 {
		t.Errorf("bob: got %d, want 400", got)
	}
}

// TestSendInsufficientFunds tests that overdrafts fail and leave balances untouched
func TestSendInsufficientFunds(t *testing.T) {
	b := newTestBank(t)
	_ = b.Mint(alice, coin(orai, 100))

	err := b.Send(alice, bob, coin(orai, 101))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := balanceOf(t, b, orai, alice); got != 100 {
		t.Errorf("alice: got %d, want 100", got)
	}

	err = b.Send(bob, alice, coin(usdt, 1))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for empty account, got %v", err)
	}

	// Zero amounts are a no-op even without a balance
	if err := b.Send(bob, alice, coin(usdt, 0)); err != nil {
		t.Errorf("zero send failed: %v", err)
	}
}

// TestBalancesListing tests that emptied balances disappear from the listing
func TestBalancesListing(t *testing.T) {
	b := newTestBank(t)
	_ = b.Mint(alice, coin(orai, 10))
	_ = b.Mint(alice, coin(usdt, 20))
	_ = b.Mint(bob, coin(usdt, 5))

	list, err := b.Balances(alice)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(list))
	}

	_ = b.Send(alice, bob, coin(orai, 10))
	list, _ = b.Balances(alice)
	if len(list) != 1 || !list[0].Info.Equal(usdt) {
		t.Errorf("expected only usdt left, got %v", list)
	}
}

// TestExecuteTransfers tests applying contract transfer instructions
func TestExecuteTransfers(t *testing.T) {
	b := newTestBank(t)
	pool := common.HexToAddress("0xCC00000000000000000000000000000000000000")
	_ = b.Mint(pool, coin(usdt, 100))

	err := b.Execute(pool, []asset.Transfer{
		{Recipient: alice, Asset: coin(usdt, 60)},
		{Recipient: bob, Asset: coin(usdt, 40)},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got := balanceOf(t, b, usdt, pool); got != 0 {
		t.Errorf("pool: got %d, want 0", got)
	}

	err = b.Execute(pool, []asset.Transfer{{Recipient: alice, Asset: coin(usdt, 1)}})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

// TestNonce tests nonce persistence
func TestNonce(t *testing.T) {
	b := newTestBank(t)
	if n, _ := b.Nonce(alice); n != 0 {
		t.Errorf("expected nonce 0, got %d", n)
	}
	if err := b.SetNonce(alice, 7); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	if n, _ := b.Nonce(alice); n != 7 {
		t.Errorf("expected nonce 7, got %d", n)
	}
	if n, _ := b.Nonce(bob); n != 0 {
		t.Errorf("bob nonce leaked: %d", n)
	}
}
