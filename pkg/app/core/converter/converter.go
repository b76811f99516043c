// Package converter swaps an asset for another at a fixed ratio derived from
// the two assets' decimals, and back.
package converter

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/app/core/asset"
	"github.com/uhyunpark/hyperswap/pkg/app/core/contract"
	"github.com/uhyunpark/hyperswap/pkg/numeric"
	"github.com/uhyunpark/hyperswap/pkg/storage"
)

var (
	keyConfig   = []byte("config")
	prefixRatio = []byte("ratio:")
)

type Config struct {
	Owner common.Address `json:"owner"`
}

// TokenInfo is an asset and the number of decimals its amounts carry.
type TokenInfo struct {
	Info     asset.AssetInfo `json:"info"`
	Decimals uint8           `json:"decimals"`
}

// TokenRatio is stored under the source asset: one source unit converts to
// Ratio units of Info.
type TokenRatio struct {
	Info  asset.AssetInfo `json:"info"`
	Ratio numeric.Dec     `json:"ratio"`
}

type UpdatePairMsg struct {
	From TokenInfo `json:"from"`
	To   TokenInfo `json:"to"`
}

type UnregisterPairMsg struct {
	From TokenInfo `json:"from"`
}

type ConvertReverseMsg struct {
	FromAsset asset.AssetInfo `json:"from_asset"`
}

type WithdrawTokensMsg struct {
	AssetInfos []asset.AssetInfo `json:"asset_infos"`
}

type UpdateConfigMsg struct {
	Owner common.Address `json:"owner"`
}

// ConvertReverseHookMsg names the source asset a token should be converted
// back into.
type ConvertReverseHookMsg struct {
	From asset.AssetInfo `json:"from"`
}

type ConvertInfoParams struct {
	AssetInfo asset.AssetInfo `json:"asset_info"`
}

type ConvertInfoResponse struct {
	TokenRatio TokenRatio `json:"token_ratio"`
}

type Contract struct{}

var _ contract.Handler = Contract{}

func (Contract) Instantiate(ctx *contract.Context) (*contract.Response, error) {
	if err := storage.SetJSON(ctx.Store, keyConfig, Config{Owner: ctx.Info.Sender}); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("owner", ctx.Info.Sender.Hex()), nil
}

func readConfig(r storage.Reader) (*Config, error) {
	var cfg Config
	found, err := storage.GetJSON(r, keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("converter is not instantiated")
	}
	return &cfg, nil
}

func requireOwner(ctx *contract.Context) (*Config, error) {
	cfg, err := readConfig(ctx.Store)
	if err != nil {
		return nil, err
	}
	if cfg.Owner != ctx.Info.Sender {
		return nil, contract.ErrUnauthorized
	}
	return cfg, nil
}

func ratioKey(from asset.AssetInfo) []byte {
	return storage.Key(prefixRatio, from.Key())
}

func readRatio(r storage.Reader, from asset.AssetInfo) (*TokenRatio, error) {
	var ratio TokenRatio
	found, err := storage.GetJSON(r, ratioKey(from), &ratio)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", contract.ErrRatioNotFound, from)
	}
	return &ratio, nil
}

// RatioFromDecimals returns 10^to / 10^from.
func RatioFromDecimals(from, to uint8) (numeric.Dec, error) {
	num, err := numeric.DecPow10(to)
	if err != nil {
		return numeric.Dec{}, err
	}
	den, err := numeric.DecPow10(from)
	if err != nil {
		return numeric.Dec{}, err
	}
	return num.Quo(den)
}

func (Contract) Execute(ctx *contract.Context, msgType string, msg json.RawMessage) (*contract.Response, error) {
	switch msgType {
	case "update_pair":
		var m UpdatePairMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return updatePair(ctx, m)

	case "unregister_pair":
		var m UnregisterPairMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		if _, err := requireOwner(ctx); err != nil {
			return nil, err
		}
		if err := ctx.Store.Delete(ratioKey(m.From.Info)); err != nil {
			return nil, err
		}
		return contract.NewResponse().AddAttribute("action", "unregister_convert_info"), nil

	case "convert":
		return convert(ctx)

	case "convert_reverse":
		var m ConvertReverseMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		if len(ctx.Info.Funds) != 1 {
			return nil, fmt.Errorf("%w: convert_reverse takes exactly one coin", contract.ErrInvalidMessage)
		}
		return convertReverse(ctx, ctx.Info.Sender, m.FromAsset, ctx.Info.Funds[0])

	case "withdraw_tokens":
		var m WithdrawTokensMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return withdrawTokens(ctx, m)

	case "update_config":
		var m UpdateConfigMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		cfg, err := requireOwner(ctx)
		if err != nil {
			return nil, err
		}
		cfg.Owner = m.Owner
		if err := storage.SetJSON(ctx.Store, keyConfig, cfg); err != nil {
			return nil, err
		}
		return contract.NewResponse().AddAttribute("action", "update_config"), nil
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, msgType)
}

// Receive converts an escrowed token: "convert" forwards it at the
// registered ratio, "convert_reverse" turns it back into its source asset.
func (Contract) Receive(ctx *contract.Context, recv contract.TokenReceive, msgType string, msg json.RawMessage) (*contract.Response, error) {
	switch msgType {
	case "convert":
		ratio, err := readRatio(ctx.Store, recv.Token.Info)
		if err != nil {
			return nil, err
		}
		out, err := recv.Token.Amount.MulDec(ratio.Ratio)
		if err != nil {
			return nil, err
		}
		return contract.NewResponse().
			AddTransfer(recv.Sender, asset.Asset{Info: ratio.Info, Amount: out}).
			AddAttribute("action", "convert_token").
			AddAttribute("from_amount", recv.Token.Amount).
			AddAttribute("to_amount", out), nil

	case "convert_reverse":
		var m ConvertReverseHookMsg
		if err := contract.Decode(msg, &m); err != nil {
			return nil, err
		}
		return convertReverse(ctx, recv.Sender, m.From, recv.Token)
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrInvalidHookMessage, msgType)
}

func updatePair(ctx *contract.Context, m UpdatePairMsg) (*contract.Response, error) {
	if _, err := requireOwner(ctx); err != nil {
		return nil, err
	}
	for _, info := range []asset.AssetInfo{m.From.Info, m.To.Info} {
		if err := info.Validate(); err != nil {
			return nil, err
		}
	}
	ratio, err := RatioFromDecimals(m.From.Decimals, m.To.Decimals)
	if err != nil {
		return nil, err
	}
	if err := storage.SetJSON(ctx.Store, ratioKey(m.From.Info), TokenRatio{Info: m.To.Info, Ratio: ratio}); err != nil {
		return nil, err
	}
	return contract.NewResponse().
		AddAttribute("action", "update_convert_info").
		AddAttribute("from", m.From.Info).
		AddAttribute("to", m.To.Info).
		AddAttribute("ratio", ratio), nil
}

func convert(ctx *contract.Context) (*contract.Response, error) {
	resp := contract.NewResponse().AddAttribute("action", "convert_token")
	for _, coin := range ctx.Info.Funds {
		ratio, err := readRatio(ctx.Store, coin.Info)
		if err != nil {
			return nil, err
		}
		out, err := coin.Amount.MulDec(ratio.Ratio)
		if err != nil {
			return nil, err
		}
		resp.AddTransfer(ctx.Info.Sender, asset.Asset{Info: ratio.Info, Amount: out}).
			AddAttribute("denom", coin.Info).
			AddAttribute("from_amount", coin.Amount).
			AddAttribute("to_amount", out)
	}
	return resp, nil
}

// convertReverse pays back the source asset for an amount of its registered
// destination asset.
func convertReverse(ctx *contract.Context, sender common.Address, from asset.AssetInfo, paid asset.Asset) (*contract.Response, error) {
	ratio, err := readRatio(ctx.Store, from)
	if err != nil {
		return nil, err
	}
	if !paid.Info.Equal(ratio.Info) {
		return nil, fmt.Errorf("%w: paid %s, %s converts from %s", contract.ErrAssetMismatch, paid.Info, from, ratio.Info)
	}
	out, err := paid.Amount.DivDec(ratio.Ratio)
	if err != nil {
		return nil, err
	}
	if out.IsZero() {
		return nil, fmt.Errorf("%w: %s converts back to 0 %s", contract.ErrTooSmallOfferAmount, paid, from)
	}
	return contract.NewResponse().
		AddTransfer(sender, asset.Asset{Info: from, Amount: out}).
		AddAttribute("action", "convert_token_reverse").
		AddAttribute("from_amount", paid.Amount).
		AddAttribute("to_amount", out), nil
}

func withdrawTokens(ctx *contract.Context, m WithdrawTokensMsg) (*contract.Response, error) {
	cfg, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	resp := contract.NewResponse().AddAttribute("action", "withdraw_tokens")
	for _, info := range m.AssetInfos {
		bal, err := ctx.Querier.Balance(info, ctx.Env.ContractAddress)
		if err != nil {
			return nil, err
		}
		resp.AddTransfer(cfg.Owner, asset.Asset{Info: info, Amount: bal}).
			AddAttribute("amount", asset.Asset{Info: info, Amount: bal})
	}
	return resp, nil
}

func (Contract) Query(r storage.Reader, _ asset.BalanceQuerier, query string, params json.RawMessage) (any, error) {
	switch query {
	case "config":
		return readConfig(r)
	case "convert_info":
		var p ConvertInfoParams
		if err := contract.Decode(params, &p); err != nil {
			return nil, err
		}
		ratio, err := readRatio(r, p.AssetInfo)
		if err != nil {
			return nil, err
		}
		return ConvertInfoResponse{TokenRatio: *ratio}, nil
	}
	return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, query)
}
