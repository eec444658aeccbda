// Package chain decorates the vendor chain gateway with a circuit breaker
// so a degraded RPC endpoint fails fast instead of stalling settlement.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	domainchain "github.com/stakevine/stakevine_core/internal/domain/services/chain"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// BreakerGateway wraps a chain.Gateway with a gobreaker circuit breaker
type BreakerGateway struct {
	inner   domainchain.Gateway
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewBreakerGateway creates the decorated gateway
func NewBreakerGateway(inner domainchain.Gateway, log *logger.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        "chain-gateway",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("chain gateway breaker state changed",
				"from", from.String(), "to", to.String())
		},
	}

	return &BreakerGateway{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

func (g *BreakerGateway) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetNativeBalance(ctx, address)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get native balance: %w", err)
	}
	return result.(decimal.Decimal), nil
}

func (g *BreakerGateway) GetTokenBalance(ctx context.Context, address, tokenAddress string, decimals int) (decimal.Decimal, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.GetTokenBalance(ctx, address, tokenAddress, decimals)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token balance: %w", err)
	}
	return result.(decimal.Decimal), nil
}

func (g *BreakerGateway) SendNative(ctx context.Context, fromKey, to string, amount decimal.Decimal) (string, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.SendNative(ctx, fromKey, to, amount)
	})
	if err != nil {
		return "", fmt.Errorf("send native: %w", err)
	}
	return result.(string), nil
}

func (g *BreakerGateway) SendToken(ctx context.Context, fromKey, tokenAddress, to string, amount decimal.Decimal) (string, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.SendToken(ctx, fromKey, tokenAddress, to, amount)
	})
	if err != nil {
		return "", fmt.Errorf("send token: %w", err)
	}
	return result.(string), nil
}

func (g *BreakerGateway) WaitForConfirmation(ctx context.Context, txHash string, confirmations int) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.inner.WaitForConfirmation(ctx, txHash, confirmations)
	})
	if err != nil {
		return fmt.Errorf("wait for confirmation: %w", err)
	}
	return nil
}
