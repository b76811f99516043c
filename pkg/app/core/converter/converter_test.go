package converter

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	self  = common.HexToAddress("0x00000000000000000000000000000000000000cc")

	usdt6  = asset.Native("usdt")
	usdt18 = asset.TokenAt(common.HexToAddress("0x0000000000000000000000000000000000001818"))
)

type fakeBank map[string]numeric.Uint128

func (b fakeBank) Balance(info asset.AssetInfo, addr common.Address) (numeric.Uint128, error) {
	return b[info.String()+addr.Hex()], nil
}

func coin(info asset.AssetInfo, amount string) asset.Asset {
	return asset.Asset{Info: info, Amount: numeric.MustParseUint128(amount)}
}

func setup(t *testing.T, bank fakeBank) *contract.Context {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	txn := db.Begin()
	t.Cleanup(func() {
		txn.Discard()
		db.Close()
	})
	ctx := &contract.Context{
		Store:   storage.Prefix(txn, []byte("c:converter/")),
		Env:     contract.Env{BlockHeight: 1, ContractAddress: self},
		Info:    contract.MessageInfo{Sender: owner},
		Querier: bank,
	}
	_, err = Contract{}.Instantiate(ctx)
	require.NoError(t, err)

	exec(t, ctx, owner, nil, "update_pair", UpdatePairMsg{
		From: TokenInfo{Info: usdt6, Decimals: 6},
		To:   TokenInfo{Info: usdt18, Decimals: 18},
	})
	return ctx
}

func exec(t *testing.T, ctx *contract.Context, sender common.Address, funds []asset.Asset, msgType string, msg any) *contract.Response {
	t.Helper()
	resp, err := tryExec(t, ctx, sender, funds, msgType, msg)
	require.NoError(t, err)
	return resp
}

func tryExec(t *testing.T, ctx *contract.Context, sender common.Address, funds []asset.Asset, msgType string, msg any) (*contract.Response, error) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx.Info = contract.MessageInfo{Sender: sender, Funds: funds}
	return Contract{}.Execute(ctx, msgType, raw)
}

func TestRatioFromDecimals(t *testing.T) {
	r, err := RatioFromDecimals(6, 18)
	require.NoError(t, err)
	assert.Equal(t, numeric.MustParseDec("1000000000000"), r)

	r, err = RatioFromDecimals(18, 6)
	require.NoError(t, err)
	assert.Equal(t, numeric.MustParseDec("0.000000000001"), r)

	_, err = RatioFromDecimals(0, 200)
	require.ErrorIs(t, err, numeric.ErrOverflow)
}

func TestConvert(t *testing.T) {
	ctx := setup(t, fakeBank{})

	resp := exec(t, ctx, alice, []asset.Asset{coin(usdt6, "1000000")}, "convert", struct{}{})
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, alice, resp.Transfers[0].Recipient)
	assert.Equal(t, coin(usdt18, "1000000000000000000"), resp.Transfers[0].Asset)

	_, err := tryExec(t, ctx, alice, []asset.Asset{coin(asset.Native("atom"), "1")}, "convert", struct{}{})
	require.ErrorIs(t, err, contract.ErrRatioNotFound)
}

func TestConvertReverse(t *testing.T) {
	ctx := setup(t, fakeBank{})

	resp := exec(t, ctx, alice, []asset.Asset{coin(usdt18, "1000000000000000000")}, "convert_reverse", ConvertReverseMsg{FromAsset: usdt6})
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, coin(usdt6, "1000000"), resp.Transfers[0].Asset)

	_, err := tryExec(t, ctx, alice, []asset.Asset{coin(asset.Native("atom"), "1")}, "convert_reverse", ConvertReverseMsg{FromAsset: usdt6})
	require.ErrorIs(t, err, contract.ErrAssetMismatch)

	_, err = tryExec(t, ctx, alice, nil, "convert_reverse", ConvertReverseMsg{FromAsset: usdt6})
	require.ErrorIs(t, err, contract.ErrInvalidMessage)
}

// Less than one source unit cannot be paid back and must not be swallowed
func TestConvertReverseBelowOneUnit(t *testing.T) {
	ctx := setup(t, fakeBank{})

	_, err := tryExec(t, ctx, alice, []asset.Asset{coin(usdt18, "999999999999")}, "convert_reverse", ConvertReverseMsg{FromAsset: usdt6})
	require.ErrorIs(t, err, contract.ErrTooSmallOfferAmount)

	raw, _ := json.Marshal(ConvertReverseHookMsg{From: usdt6})
	ctx.Info = contract.MessageInfo{Sender: usdt18.Token.ContractAddr}
	_, err = Contract{}.Receive(ctx, contract.TokenReceive{Sender: alice, Token: coin(usdt18, "999999999999")}, "convert_reverse", raw)
	require.ErrorIs(t, err, contract.ErrTooSmallOfferAmount)

	resp := exec(t, ctx, alice, []asset.Asset{coin(usdt18, "1000000000000")}, "convert_reverse", ConvertReverseMsg{FromAsset: usdt6})
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, coin(usdt6, "1"), resp.Transfers[0].Asset)
}

func TestTokenHooks(t *testing.T) {
	ctx := setup(t, fakeBank{})
	tok := usdt18.Token.ContractAddr

	// The 18-decimal token converts back into the native coin
	raw, _ := json.Marshal(ConvertReverseHookMsg{From: usdt6})
	ctx.Info = contract.MessageInfo{Sender: tok}
	resp, err := Contract{}.Receive(ctx, contract.TokenReceive{Sender: alice, Token: coin(usdt18, "2500000000000000000")}, "convert_reverse", raw)
	require.NoError(t, err)
	assert.Equal(t, asset.Transfer{Recipient: alice, Asset: coin(usdt6, "2500000")}, resp.Transfers[0])

	other := asset.TokenAt(common.HexToAddress("0x0000000000000000000000000000000000000bad"))
	_, err = Contract{}.Receive(ctx, contract.TokenReceive{Sender: alice, Token: coin(other, "1")}, "convert_reverse", raw)
	require.ErrorIs(t, err, contract.ErrAssetMismatch)

	_, err = Contract{}.Receive(ctx, contract.TokenReceive{Sender: alice, Token: coin(usdt18, "1")}, "convert", nil)
	require.ErrorIs(t, err, contract.ErrRatioNotFound)

	_, err = Contract{}.Receive(ctx, contract.TokenReceive{Sender: alice, Token: coin(usdt18, "1")}, "swap", nil)
	require.ErrorIs(t, err, contract.ErrInvalidHookMessage)
}

func TestOwnerOnly(t *testing.T) {
	ctx := setup(t, fakeBank{})

	_, err := tryExec(t, ctx, alice, nil, "update_pair", UpdatePairMsg{From: TokenInfo{Info: usdt6}, To: TokenInfo{Info: usdt18}})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	_, err = tryExec(t, ctx, alice, nil, "unregister_pair", UnregisterPairMsg{From: TokenInfo{Info: usdt6}})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	_, err = tryExec(t, ctx, alice, nil, "withdraw_tokens", WithdrawTokensMsg{})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	_, err = tryExec(t, ctx, alice, nil, "update_config", UpdateConfigMsg{Owner: alice})
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	exec(t, ctx, owner, nil, "unregister_pair", UnregisterPairMsg{From: TokenInfo{Info: usdt6}})
	_, err = Contract{}.Query(ctx.Store, nil, "convert_info", json.RawMessage(`{"asset_info":"native:usdt"}`))
	require.ErrorIs(t, err, contract.ErrRatioNotFound)

	exec(t, ctx, owner, nil, "update_config", UpdateConfigMsg{Owner: alice})
	cfg, err := Contract{}.Query(ctx.Store, nil, "config", nil)
	require.NoError(t, err)
	assert.Equal(t, alice, cfg.(*Config).Owner)
}

func TestWithdrawTokens(t *testing.T) {
	bank := fakeBank{
		usdt6.String() + self.Hex():  numeric.NewUint128(42),
		usdt18.String() + self.Hex(): numeric.NewUint128(0),
	}
	ctx := setup(t, bank)

	resp := exec(t, ctx, owner, nil, "withdraw_tokens", WithdrawTokensMsg{AssetInfos: []asset.AssetInfo{usdt6, usdt18}})
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, asset.Transfer{Recipient: owner, Asset: coin(usdt6, "42")}, resp.Transfers[0])
}

func TestConvertInfoQuery(t *testing.T) {
	ctx := setup(t, fakeBank{})
	params, _ := json.Marshal(ConvertInfoParams{AssetInfo: usdt6})
	res, err := Contract{}.Query(ctx.Store, nil, "convert_info", params)
	require.NoError(t, err)
	info := res.(ConvertInfoResponse)
	assert.True(t, info.TokenRatio.Info.Equal(usdt18))
	assert.Equal(t, numeric.MustParseDec("1000000000000"), info.TokenRatio.Ratio)
}
