package orderbook

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var (
	prefixExecutor     = []byte("e:")
	prefixDistribution = []byte("d:")
)

// Executor is the commission accrued by one executor on one pair, held as
// [base, quote].
type Executor struct {
	Address      common.Address `json:"address"`
	RewardAssets [2]asset.Asset `json:"reward_assets"`
}

func (ob *OrderBook) executorKey(addr common.Address) []byte {
	return storage.Key(prefixExecutor, ob.PairKey(), addr.Bytes())
}

func (ob *OrderBook) emptyExecutor(addr common.Address) *Executor {
	return &Executor{
		Address: addr,
		RewardAssets: [2]asset.Asset{
			{Info: ob.BaseCoinInfo, Amount: numeric.ZeroUint128()},
			{Info: ob.QuoteCoinInfo, Amount: numeric.ZeroUint128()},
		},
	}
}

// Executor returns the reward record of addr, empty if it never executed.
func (ob *OrderBook) Executor(r storage.Reader, addr common.Address) (*Executor, error) {
	ex := ob.emptyExecutor(addr)
	if _, err := storage.GetJSON(r, ob.executorKey(addr), ex); err != nil {
		return nil, err
	}
	return ex, nil
}

func (ob *OrderBook) accrueReward(kv storage.KVStore, addr common.Address, base, quote numeric.Uint128) error {
	if base.IsZero() && quote.IsZero() {
		return nil
	}
	ex, err := ob.Executor(kv, addr)
	if err != nil {
		return err
	}
	if ex.RewardAssets[0].Amount, err = ex.RewardAssets[0].Amount.Add(base); err != nil {
		return err
	}
	if ex.RewardAssets[1].Amount, err = ex.RewardAssets[1].Amount.Add(quote); err != nil {
		return err
	}
	return storage.SetJSON(kv, ob.executorKey(addr), ex)
}

// Executors pages through the reward records of this book by address.
func (ob *OrderBook) Executors(r storage.Reader, startAfter *common.Address, limit uint32, descending bool) ([]*Executor, error) {
	prefix := storage.Key(prefixExecutor, ob.PairKey())
	start, end := prefix, storage.PrefixEnd(prefix)
	if startAfter != nil {
		if descending {
			end = storage.Key(prefix, startAfter.Bytes())
		} else {
			start = storage.PrefixEnd(storage.Key(prefix, startAfter.Bytes()))
		}
	}
	iter, err := r.Iterator(start, end, descending)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	n := clampLimit(limit)
	var out []*Executor
	for ; iter.Valid() && len(out) < n; iter.Next() {
		var ex Executor
		if err := decode(iter.Value(), &ex); err != nil {
			return nil, err
		}
		out = append(out, &ex)
	}
	return out, nil
}

// PayOutRewards zeroes every executor balance of the book and returns the
// transfers that pay them.
func (ob *OrderBook) PayOutRewards(kv storage.KVStore) ([]asset.Transfer, error) {
	iter, err := storage.PrefixIterator(kv, storage.Key(prefixExecutor, ob.PairKey()), false)
	if err != nil {
		return nil, err
	}
	var executors []Executor
	for ; iter.Valid(); iter.Next() {
		var ex Executor
		if err := decode(iter.Value(), &ex); err != nil {
			iter.Close()
			return nil, err
		}
		executors = append(executors, ex)
	}
	iter.Close()

	var transfers []asset.Transfer
	for _, ex := range executors {
		paid := false
		for i, reward := range ex.RewardAssets {
			if reward.Amount.IsZero() {
				continue
			}
			transfers = append(transfers, asset.Transfer{Recipient: ex.Address, Asset: reward})
			ex.RewardAssets[i].Amount = numeric.ZeroUint128()
			paid = true
		}
		if !paid {
			continue
		}
		if err := storage.SetJSON(kv, ob.executorKey(ex.Address), &ex); err != nil {
			return nil, err
		}
	}
	return transfers, nil
}

// RemoveExecutors deletes every reward record of the book.
func (ob *OrderBook) RemoveExecutors(kv storage.KVStore) error {
	iter, err := storage.PrefixIterator(kv, storage.Key(prefixExecutor, ob.PairKey()), false)
	if err != nil {
		return err
	}
	var keys [][]byte
	for ; iter.Valid(); iter.Next() {
		keys = append(keys, iter.Key())
	}
	iter.Close()
	for _, k := range keys {
		if err := kv.Delete(k); err != nil {
			return err
		}
	}
	return kv.Delete(storage.Key(prefixDistribution, ob.PairKey()))
}

// LastDistribution is the block time of the last reward payout, zero if none.
func (ob *OrderBook) LastDistribution(r storage.Reader) (uint64, error) {
	raw, err := r.Get(storage.Key(prefixDistribution, ob.PairKey()))
	if err != nil || raw == nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// DistributeRewards pays out the book's executors unless the previous payout
// is less than interval seconds old. It reports whether a payout happened.
func (ob *OrderBook) DistributeRewards(kv storage.KVStore, blockTime, interval uint64) ([]asset.Transfer, bool, error) {
	last, err := ob.LastDistribution(kv)
	if err != nil {
		return nil, false, err
	}
	if blockTime < last || blockTime-last < interval {
		return nil, false, nil
	}
	transfers, err := ob.PayOutRewards(kv)
	if err != nil {
		return nil, false, err
	}
	if err := kv.Set(storage.Key(prefixDistribution, ob.PairKey()), storage.Uint64Key(blockTime)); err != nil {
		return nil, false, err
	}
	return transfers, true, nil
}
