package tokens_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
)

func testRegistry() *tokens.Registry {
	return tokens.NewRegistry(config.ChainConfig{
		NativeSymbol: "POL",
		Tokens: map[string]config.TokenConfig{
			"usdt": {Symbol: "USDT", ContractAddress: "0xC2132D05d31c914a87C6611C10748AEb04B58e8F", Decimals: 6, Stablecoin: true, Blockable: true},
			"usdc": {Symbol: "USDC", ContractAddress: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6, Stablecoin: true, Blockable: true},
			"pol":  {Symbol: "POL", Decimals: 18, Native: true},
		},
	})
}

func TestRegistry_ResolveByAddressIsCaseInsensitive(t *testing.T) {
	r := testRegistry()

	info, known := r.Resolve("0xc2132d05d31c914a87c6611c10748aeb04b58e8f", "")
	require.True(t, known)
	assert.Equal(t, "USDT", info.Symbol)
	assert.Equal(t, 6, info.Decimals)
}

func TestRegistry_ResolveEmptyAddressIsNative(t *testing.T) {
	r := testRegistry()

	info, known := r.Resolve("", "")
	require.True(t, known)
	assert.Equal(t, "POL", info.Symbol)
	assert.True(t, info.Native)
}

func TestRegistry_ResolveUnknownTokenDefaultsDecimals(t *testing.T) {
	r := testRegistry()

	info, known := r.Resolve("0x1111111111111111111111111111111111111111", "shib")
	assert.False(t, known)
	assert.Equal(t, "SHIB", info.Symbol)
	assert.Equal(t, 18, info.Decimals)
}

func TestRegistry_PayoutTokenIsFirstBlockableStablecoin(t *testing.T) {
	r := testRegistry()

	payout, ok := r.PayoutToken()
	require.True(t, ok)
	assert.Equal(t, "USDC", payout.Symbol)
}

func TestParseRaw(t *testing.T) {
	amount, err := tokens.ParseRaw("1500000", 6)
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("1.5")))

	_, err = tokens.ParseRaw("1.5", 6)
	assert.Error(t, err)

	_, err = tokens.ParseRaw("-100", 6)
	assert.Error(t, err)

	_, err = tokens.ParseRaw("", 6)
	assert.Error(t, err)
}

func TestToRaw(t *testing.T) {
	assert.Equal(t, "1500000", tokens.ToRaw(decimal.RequireFromString("1.5"), 6))
	assert.Equal(t, "1", tokens.ToRaw(decimal.RequireFromString("0.0000019"), 6))
}
