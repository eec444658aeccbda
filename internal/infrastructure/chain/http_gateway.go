package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stakevine/stakevine_core/internal/infrastructure/config"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

// HTTPGateway talks to the chain gateway sidecar, the service that holds
// RPC connectivity and broadcasts signed transactions. It implements
// chain.Gateway, chain.WatchProvider and chain.AddressGenerator.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logger.Logger
}

// NewHTTPGateway creates the sidecar client
func NewHTTPGateway(cfg config.ChainConfig, log *logger.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.GatewayURL,
		apiKey:  cfg.GatewayAPIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  log,
	}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

type sendResponse struct {
	TxHash string `json:"tx_hash"`
}

type walletResponse struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

func (g *HTTPGateway) GetNativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	var resp balanceResponse
	path := "/v1/balances/native/" + url.PathEscape(address)
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Balance)
}

func (g *HTTPGateway) GetTokenBalance(ctx context.Context, address, tokenAddress string, decimals int) (decimal.Decimal, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/v1/balances/token/%s/%s?decimals=%d",
		url.PathEscape(tokenAddress), url.PathEscape(address), decimals)
	if err := g.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Balance)
}

func (g *HTTPGateway) SendNative(ctx context.Context, fromKey, to string, amount decimal.Decimal) (string, error) {
	var resp sendResponse
	body := map[string]string{
		"from_key": fromKey,
		"to":       to,
		"amount":   amount.String(),
	}
	if err := g.do(ctx, http.MethodPost, "/v1/transfers/native", body, &resp); err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

func (g *HTTPGateway) SendToken(ctx context.Context, fromKey, tokenAddress, to string, amount decimal.Decimal) (string, error) {
	var resp sendResponse
	body := map[string]string{
		"from_key": fromKey,
		"token":    tokenAddress,
		"to":       to,
		"amount":   amount.String(),
	}
	if err := g.do(ctx, http.MethodPost, "/v1/transfers/token", body, &resp); err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

func (g *HTTPGateway) WaitForConfirmation(ctx context.Context, txHash string, confirmations int) error {
	path := fmt.Sprintf("/v1/transactions/%s/wait?confirmations=%d",
		url.PathEscape(txHash), confirmations)
	return g.do(ctx, http.MethodGet, path, nil, nil)
}

// Generate mints a new wallet on the sidecar; the key never touches disk
// unencrypted on our side
func (g *HTTPGateway) Generate(ctx context.Context) (string, string, error) {
	var resp walletResponse
	if err := g.do(ctx, http.MethodPost, "/v1/wallets", nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Address, resp.PrivateKey, nil
}

// RegisterAddress subscribes an address to deposit notifications
func (g *HTTPGateway) RegisterAddress(ctx context.Context, address string) error {
	body := map[string]string{"address": address}
	return g.do(ctx, http.MethodPost, "/v1/watch", body, nil)
}

// UnregisterAddress removes a deposit subscription
func (g *HTTPGateway) UnregisterAddress(ctx context.Context, address string) error {
	path := "/v1/watch/" + url.PathEscape(address)
	return g.do(ctx, http.MethodDelete, path, nil, nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("chain gateway returned %d: %s", resp.StatusCode, apiErr.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
