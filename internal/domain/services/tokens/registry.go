// Package tokens maps configured tokens by symbol and contract address
// and converts raw chain amounts to decimals.
package tokens

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
)

var rawAmountPattern = regexp.MustCompile(`^[0-9]+$`)

// unknownDecimals is assumed for tokens arriving without a mapping.
// 18 is the ERC-20 default on EVM chains.
const unknownDecimals = 18

// Registry resolves tokens the platform understands
type Registry struct {
	bySymbol  map[string]entities.TokenInfo
	byAddress map[string]entities.TokenInfo
	native    string
}

// NewRegistry builds the registry from chain configuration
func NewRegistry(cfg config.ChainConfig) *Registry {
	r := &Registry{
		bySymbol:  make(map[string]entities.TokenInfo),
		byAddress: make(map[string]entities.TokenInfo),
		native:    strings.ToUpper(cfg.NativeSymbol),
	}

	for symbol, tc := range cfg.Tokens {
		info := entities.TokenInfo{
			Symbol:          strings.ToUpper(symbol),
			ContractAddress: tc.ContractAddress,
			Decimals:        tc.Decimals,
			Native:          tc.Native,
			Stablecoin:      tc.Stablecoin,
			Blockable:       tc.Blockable,
		}
		r.bySymbol[info.Symbol] = info
		if info.ContractAddress != "" {
			r.byAddress[strings.ToLower(info.ContractAddress)] = info
		}
	}

	return r
}

// BySymbol resolves a token by symbol
func (r *Registry) BySymbol(symbol string) (entities.TokenInfo, bool) {
	info, ok := r.bySymbol[strings.ToUpper(symbol)]
	return info, ok
}

// ByAddress resolves a token by contract address
func (r *Registry) ByAddress(address string) (entities.TokenInfo, bool) {
	info, ok := r.byAddress[strings.ToLower(address)]
	return info, ok
}

// Resolve maps a deposit notification's token fields to a TokenInfo.
// An empty token address means the native coin. The second return reports
// whether the token is known; unknown tokens get a placeholder with the
// default EVM decimals so the raw amount can still be stored readably.
func (r *Registry) Resolve(tokenAddress, tokenSymbol string) (entities.TokenInfo, bool) {
	if tokenAddress == "" {
		if info, ok := r.bySymbol[r.native]; ok {
			return info, true
		}
		return entities.TokenInfo{Symbol: r.native, Decimals: unknownDecimals, Native: true}, false
	}

	if info, ok := r.ByAddress(tokenAddress); ok {
		return info, true
	}

	symbol := strings.ToUpper(tokenSymbol)
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	return entities.TokenInfo{
		Symbol:          symbol,
		ContractAddress: tokenAddress,
		Decimals:        unknownDecimals,
	}, false
}

// NativeSymbol returns the configured native coin symbol
func (r *Registry) NativeSymbol() string {
	return r.native
}

// Symbols returns all configured token symbols, sorted
func (r *Registry) Symbols() []string {
	symbols := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// PayoutToken returns the token commissions are credited in: the first
// blockable stablecoin in symbol order
func (r *Registry) PayoutToken() (entities.TokenInfo, bool) {
	for _, s := range r.Symbols() {
		info := r.bySymbol[s]
		if info.Stablecoin && info.Blockable {
			return info, true
		}
	}
	return entities.TokenInfo{}, false
}

// ParseRaw converts a raw integer chain amount to a decimal using the
// token's decimals
func ParseRaw(raw string, decimals int) (decimal.Decimal, error) {
	if !rawAmountPattern.MatchString(raw) {
		return decimal.Zero, fmt.Errorf("raw amount %q is not an unsigned integer", raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse raw amount: %w", err)
	}
	return d.Shift(int32(-decimals)), nil
}

// ToRaw converts a decimal amount to the raw integer chain representation
func ToRaw(amount decimal.Decimal, decimals int) string {
	return amount.Shift(int32(decimals)).Truncate(0).String()
}
