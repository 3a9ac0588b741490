// Package balance resolves wallet token balances over Ethereum JSON-RPC.
package balance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// ErrNoEndpoints means the provider was built without any RPC endpoint.
var ErrNoEndpoints = errors.New("balance: no rpc endpoints configured")

// balanceOf(address) selector.
const balanceOfSelector = "0x70a08231"

const defaultTimeout = 5 * time.Second

// Provider reads ERC-20 balances with eth_call, trying endpoints in order
// until one answers. It implements repository.BalanceProvider.
type Provider struct {
	endpoints []string
	token     string
	decimals  int
	client    *http.Client
	log       *logger.Logger
}

// New builds a provider for one token contract. Balances are scaled down
// by decimals to whole tokens.
func New(endpoints []string, tokenAddress string, decimals int, timeout time.Duration, log *logger.Logger) *Provider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if decimals <= 0 {
		decimals = 18
	}
	return &Provider{
		endpoints: endpoints,
		token:     tokenAddress,
		decimals:  decimals,
		client:    &http.Client{Timeout: timeout},
		log:       log.With("balance"),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// BalanceOf returns the wallet's whole-token balance. Every endpoint is
// tried in configuration order; the last failure is returned when all of
// them fail. It never guesses a balance.
func (p *Provider) BalanceOf(ctx context.Context, walletAddress string) (int64, error) {
	if len(p.endpoints) == 0 {
		return 0, ErrNoEndpoints
	}
	callData := balanceOfSelector + padAddress(walletAddress)

	var lastErr error
	for _, endpoint := range p.endpoints {
		balance, err := p.call(ctx, endpoint, callData)
		if err != nil {
			lastErr = err
			p.log.Warn("balance rpc failed",
				logger.String("endpoint", endpoint), logger.Error(err))
			continue
		}
		return balance, nil
	}
	return 0, fmt.Errorf("balance: all endpoints failed: %w", lastErr)
}

func (p *Provider) call(ctx context.Context, endpoint, callData string) (int64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": p.token, "data": callData},
			"latest",
		},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	if out.Error != nil {
		return 0, fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return p.scale(out.Result)
}

// scale converts the hex eth_call result into whole tokens.
func (p *Provider) scale(hexResult string) (int64, error) {
	raw := strings.TrimPrefix(hexResult, "0x")
	if raw == "" {
		return 0, fmt.Errorf("empty rpc result")
	}
	wei, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return 0, fmt.Errorf("malformed rpc result %q", hexResult)
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p.decimals)), nil)
	tokens := new(big.Int).Quo(wei, divisor)
	if !tokens.IsInt64() {
		return 0, fmt.Errorf("balance overflows int64")
	}
	return tokens.Int64(), nil
}

// padAddress left-pads a hex address to the 32-byte ABI word.
func padAddress(address string) string {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))
	if len(addr) >= 64 {
		return addr[:64]
	}
	return strings.Repeat("0", 64-len(addr)) + addr
}
