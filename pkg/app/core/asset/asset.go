package asset

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

var (
	ErrInvalidAssetInfo    = errors.New("invalid asset info")
	ErrNativeFundsMismatch = errors.New("native token balance mismatch between the argument and the transferred")
)

// AssetInfo identifies a fungible asset: a native denom moved as attached
// funds, or a token ledger addressed by its contract address.
type AssetInfo struct {
	NativeToken *NativeToken `json:"native_token,omitempty"`
	Token       *Token       `json:"token,omitempty"`
}

type NativeToken struct {
	Denom string `json:"denom"`
}

type Token struct {
	ContractAddr common.Address `json:"contract_addr"`
}

func Native(denom string) AssetInfo {
	return AssetInfo{NativeToken: &NativeToken{Denom: denom}}
}

func TokenAt(addr common.Address) AssetInfo {
	return AssetInfo{Token: &Token{ContractAddr: addr}}
}

func (i AssetInfo) IsNative() bool { return i.NativeToken != nil }

func (i AssetInfo) Validate() error {
	switch {
	case i.NativeToken != nil && i.Token != nil:
		return fmt.Errorf("%w: both native_token and token set", ErrInvalidAssetInfo)
	case i.NativeToken != nil:
		if i.NativeToken.Denom == "" {
			return fmt.Errorf("%w: empty denom", ErrInvalidAssetInfo)
		}
	case i.Token != nil:
		if i.Token.ContractAddr == (common.Address{}) {
			return fmt.Errorf("%w: zero contract address", ErrInvalidAssetInfo)
		}
	default:
		return fmt.Errorf("%w: empty", ErrInvalidAssetInfo)
	}
	return nil
}

// Equal compares by variant tag and identifier.
func (i AssetInfo) Equal(o AssetInfo) bool {
	switch {
	case i.NativeToken != nil && o.NativeToken != nil:
		return i.NativeToken.Denom == o.NativeToken.Denom
	case i.Token != nil && o.Token != nil:
		return i.Token.ContractAddr == o.Token.ContractAddr
	}
	return false
}

// Key is the canonical byte form used inside store keys. The leading tag
// byte keeps a denom from colliding with an address.
func (i AssetInfo) Key() []byte {
	if i.NativeToken != nil {
		return append([]byte{'n'}, i.NativeToken.Denom...)
	}
	if i.Token != nil {
		return append([]byte{'t'}, i.Token.ContractAddr.Bytes()...)
	}
	return nil
}

// String renders "native:<denom>" or "token:<0xaddr>".
func (i AssetInfo) String() string {
	if i.NativeToken != nil {
		return "native:" + i.NativeToken.Denom
	}
	if i.Token != nil {
		return "token:" + i.Token.ContractAddr.Hex()
	}
	return ""
}

// ParseAssetInfo is the inverse of String. A bare hex address is read as a
// token and any other bare word as a native denom.
func ParseAssetInfo(s string) (AssetInfo, error) {
	kind, id, found := strings.Cut(s, ":")
	if !found {
		if common.IsHexAddress(s) {
			return TokenAt(common.HexToAddress(s)), nil
		}
		kind, id = "native", s
	}
	var info AssetInfo
	switch kind {
	case "native":
		info = Native(id)
	case "token":
		if !common.IsHexAddress(id) {
			return AssetInfo{}, fmt.Errorf("%w: bad token address %q", ErrInvalidAssetInfo, id)
		}
		info = TokenAt(common.HexToAddress(id))
	default:
		return AssetInfo{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAssetInfo, kind)
	}
	return info, info.Validate()
}

// Asset is an amount of a given AssetInfo.
type Asset struct {
	Info   AssetInfo       `json:"info"`
	Amount numeric.Uint128 `json:"amount"`
}

func (a Asset) String() string {
	return a.Amount.String() + a.Info.String()
}

// AssertSentNativeTokenBalance checks that a native asset argument is backed
// by exactly the same amount of attached funds. Token assets pass through.
func (a Asset) AssertSentNativeTokenBalance(funds []Asset) error {
	if !a.Info.IsNative() {
		return nil
	}
	for _, coin := range funds {
		if coin.Info.Equal(a.Info) {
			if coin.Amount.Equal(a.Amount) {
				return nil
			}
			return fmt.Errorf("%w: %s sent, %s declared", ErrNativeFundsMismatch, coin, a)
		}
	}
	if a.Amount.IsZero() {
		return nil
	}
	return fmt.Errorf("%w: %s not sent", ErrNativeFundsMismatch, a)
}

// PairKey returns the canonical key of an unordered asset pair. Both orders
// of the same two assets map to the same key.
func PairKey(infos [2]AssetInfo) []byte {
	a, b := infos[0].Key(), infos[1].Key()
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	buf := make([]byte, 0, 4+len(a)+len(b))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(a)))
	buf = append(buf, a...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
	buf = append(buf, b...)
	return crypto.Keccak256(buf)
}

// Transfer instructs the host to move an asset from the invoked contract to
// the recipient.
type Transfer struct {
	Recipient common.Address `json:"recipient"`
	Asset     Asset          `json:"asset"`
}

// BalanceQuerier answers external balance lookups for contracts.
type BalanceQuerier interface {
	Balance(info AssetInfo, owner common.Address) (numeric.Uint128, error)
}

// UnmarshalJSON accepts both the tagged object form and the short string form.
func (i *AssetInfo) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAssetInfo(s)
		if err != nil {
			return err
		}
		*i = parsed
		return nil
	}
	type raw AssetInfo
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAssetInfo, err)
	}
	*i = AssetInfo(r)
	return i.Validate()
}
