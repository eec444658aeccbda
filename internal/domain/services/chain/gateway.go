// Package chain defines the contracts the settlement engine consumes from
// the EVM side. The RPC vendor implements them; the core only depends on
// these interfaces.
package chain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway is the on-chain read/write surface. Send operations take the
// hex signing key of the sending wallet because sweeps originate from
// custodial addresses while payouts originate from the treasury.
type Gateway interface {
	GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetTokenBalance(ctx context.Context, address, tokenAddress string, decimals int) (decimal.Decimal, error)
	SendNative(ctx context.Context, fromKey, to string, amount decimal.Decimal) (string, error)
	SendToken(ctx context.Context, fromKey, tokenAddress, to string, amount decimal.Decimal) (string, error)
	WaitForConfirmation(ctx context.Context, txHash string, confirmations int) error
}

// WatchProvider registers custodial addresses with the chain-watch
// service that delivers deposit notifications to our webhook
type WatchProvider interface {
	RegisterAddress(ctx context.Context, address string) error
	UnregisterAddress(ctx context.Context, address string) error
}

// AddressGenerator mints a new custodial wallet. Implemented by the
// vendor adapter; the returned key is encrypted before it is stored.
type AddressGenerator interface {
	Generate(ctx context.Context) (address, privateKey string, err error)
}
