package asset

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/numeric"
)

var usdt = TokenAt(common.HexToAddress("0x00000000000000000000000000000000000000aa"))

func TestPairKeyIsOrderIndependent(t *testing.T) {
	orai := Native("orai")
	assert.Equal(t, PairKey([2]AssetInfo{orai, usdt}), PairKey([2]AssetInfo{usdt, orai}))
	assert.NotEqual(t, PairKey([2]AssetInfo{orai, usdt}), PairKey([2]AssetInfo{orai, Native("atom")}))
	assert.Len(t, PairKey([2]AssetInfo{orai, usdt}), 32)
}

func TestAssetInfoEquality(t *testing.T) {
	assert.True(t, Native("orai").Equal(Native("orai")))
	assert.False(t, Native("orai").Equal(Native("atom")))
	assert.False(t, usdt.Equal(Native(usdt.Token.ContractAddr.Hex())))
}

func TestParseAssetInfo(t *testing.T) {
	tests := []struct {
		in      string
		want    AssetInfo
		wantErr bool
	}{
		{in: "native:orai", want: Native("orai")},
		{in: "orai", want: Native("orai")},
		{in: "token:0x00000000000000000000000000000000000000aa", want: usdt},
		{in: "0x00000000000000000000000000000000000000aa", want: usdt},
		{in: "token:nothex", wantErr: true},
		{in: "native:", wantErr: true},
		{in: "nft:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAssetInfo(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAssetInfo)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want))

			again, err := ParseAssetInfo(got.String())
			require.NoError(t, err)
			assert.True(t, again.Equal(got))
		})
	}
}

func TestAssetInfoJSON(t *testing.T) {
	var infos []AssetInfo
	require.NoError(t, json.Unmarshal([]byte(`[{"native_token":{"denom":"orai"}},"native:atom"]`), &infos))
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Equal(Native("orai")))
	assert.True(t, infos[1].Equal(Native("atom")))

	var bad AssetInfo
	require.Error(t, json.Unmarshal([]byte(`{}`), &bad))
}

func TestAssertSentNativeTokenBalance(t *testing.T) {
	offer := Asset{Info: Native("orai"), Amount: numeric.NewUint128(100)}

	require.NoError(t, offer.AssertSentNativeTokenBalance([]Asset{{Info: Native("orai"), Amount: numeric.NewUint128(100)}}))

	err := offer.AssertSentNativeTokenBalance([]Asset{{Info: Native("orai"), Amount: numeric.NewUint128(99)}})
	require.ErrorIs(t, err, ErrNativeFundsMismatch)

	err = offer.AssertSentNativeTokenBalance(nil)
	require.ErrorIs(t, err, ErrNativeFundsMismatch)

	token := Asset{Info: usdt, Amount: numeric.NewUint128(5)}
	require.NoError(t, token.AssertSentNativeTokenBalance(nil))
}
