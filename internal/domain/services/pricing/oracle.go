// Package pricing resolves USD values for configured tokens. Stablecoins
// are pegged at 1.0; anything else is delegated to an external source.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/domain/services/tokens"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// Oracle resolves the USD price of one unit of a token
type Oracle interface {
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

var one = decimal.NewFromInt(1)

// PeggedOracle prices stablecoins at 1.0 without a lookup and delegates
// everything else to an optional upstream source
type PeggedOracle struct {
	registry *tokens.Registry
	source   Oracle
	logger   *logger.Logger
}

// NewPeggedOracle creates the oracle. source may be nil, in which case
// only stablecoins are priceable.
func NewPeggedOracle(registry *tokens.Registry, source Oracle, log *logger.Logger) *PeggedOracle {
	return &PeggedOracle{registry: registry, source: source, logger: log}
}

// PriceUSD returns the USD price for one unit of the token
func (o *PeggedOracle) PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if info, ok := o.registry.BySymbol(symbol); ok && info.Stablecoin {
		return one, nil
	}

	if o.source != nil {
		price, err := o.source.PriceUSD(ctx, symbol)
		if err != nil {
			return decimal.Zero, fmt.Errorf("upstream price lookup for %s: %w", symbol, err)
		}
		return price, nil
	}

	return decimal.Zero, fmt.Errorf("no price source for token %s", symbol)
}
