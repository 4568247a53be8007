package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
)

// ErrNoRPC is returned by ChainBridge calls when no RPC URL is configured
var ErrNoRPC = errors.New("chain_bridge: no rpc url configured")

const mockBlockBase = 1234567

// MockBlockNumber is the block height reported when the chain is unreachable
func MockBlockNumber(t time.Time) uint64 {
	return mockBlockBase + uint64(t.Unix()/10)
}

// ChainBridge talks JSON-RPC to the ledger node. Every read has a mock
// fallback so the rest of the system keeps working offline.
type ChainBridge struct {
	rpcURL     string
	chainID    int64
	name       string
	clock      clock.Clock
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewChainBridge creates a bridge. An empty rpcURL puts it in permanent
// fallback mode.
func NewChainBridge(rpcURL string, chainID int64, name string, clk clock.Clock, timeout time.Duration) *ChainBridge {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChainBridge{
		rpcURL:  strings.TrimRight(rpcURL, "/"),
		chainID: chainID,
		name:    name,
		clock:   clk,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// call performs a JSON-RPC call whose result is a hex quantity
func (b *ChainBridge) call(ctx context.Context, method string) (*big.Int, error) {
	if b.rpcURL == "" {
		return nil, ErrNoRPC
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: b.nextID.Add(1), Method: method, Params: []any{}})
	if err != nil {
		return nil, fmt.Errorf("chain_bridge: failed to marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chain_bridge: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain_bridge: %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chain_bridge: %s returned status %d", method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("chain_bridge: failed to decode %s: %w", method, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("chain_bridge: %s: rpc error %d: %s", method, out.Error.Code, out.Error.Message)
	}

	n, ok := new(big.Int).SetString(strings.TrimPrefix(out.Result, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("chain_bridge: %s: bad quantity %q", method, out.Result)
	}
	return n, nil
}

// BlockNumber returns the latest block height
func (b *ChainBridge) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := b.call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("chain_bridge: block number %s overflows", n)
	}
	return n.Uint64(), nil
}

// GasPrice returns the current gas price in gwei
func (b *ChainBridge) GasPrice(ctx context.Context) (decimal.Decimal, error) {
	wei, err := b.call(ctx, "eth_gasPrice")
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(wei, -9), nil
}

// ChainID returns the chain id reported by the node
func (b *ChainBridge) ChainID(ctx context.Context) (int64, error) {
	id, err := b.call(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	if !id.IsInt64() {
		return 0, fmt.Errorf("chain_bridge: chain id %s overflows", id)
	}
	return id.Int64(), nil
}

// NetworkInfo returns live network figures, or the mock ones when the node
// cannot be reached
func (b *ChainBridge) NetworkInfo(ctx context.Context) domain.NetworkInfo {
	info := domain.NetworkInfo{ChainID: b.chainID, Name: b.name}

	block, err := b.BlockNumber(ctx)
	if err == nil {
		var gas decimal.Decimal
		if gas, err = b.GasPrice(ctx); err == nil {
			info.BlockNumber = block
			info.GasPrice = gas.String()
			info.Connected = true
			return info
		}
	}

	info.BlockNumber = MockBlockNumber(b.clock.Now())
	info.GasPrice = "0.1"
	return info
}

// Health checks node connectivity
func (b *ChainBridge) Health(ctx context.Context) error {
	_, err := b.BlockNumber(ctx)
	return err
}
