package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/clock"
)

func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		res, ok := results[req.Method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]any{"code": -32601, "message": "method not found"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": res})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChainBridgeLive(t *testing.T) {
	srv := rpcServer(t, map[string]string{
		"eth_blockNumber": "0x1b4",
		"eth_gasPrice":    "0x5f5e100", // 100000000 wei
		"eth_chainId":     "0x4e20",
	})
	b := NewChainBridge(srv.URL, 20000, "BlockDAG Testnet", clock.NewManual(at(12, 0)), time.Second)
	ctx := context.Background()

	block, err := b.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(436), block)

	gas, err := b.GasPrice(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.1", gas.String())

	id, err := b.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), id)

	info := b.NetworkInfo(ctx)
	assert.True(t, info.Connected)
	assert.Equal(t, uint64(436), info.BlockNumber)
	assert.Equal(t, "0.1", info.GasPrice)
	assert.Equal(t, "BlockDAG Testnet", info.Name)

	assert.NoError(t, b.Health(ctx))
}

func TestChainBridgeFallback(t *testing.T) {
	now := at(12, 0)
	clk := clock.NewManual(now)
	ctx := context.Background()

	offline := NewChainBridge("", 20000, "BlockDAG Testnet", clk, time.Second)
	_, err := offline.BlockNumber(ctx)
	assert.ErrorIs(t, err, ErrNoRPC)
	assert.Error(t, offline.Health(ctx))

	info := offline.NetworkInfo(ctx)
	assert.False(t, info.Connected)
	assert.Equal(t, MockBlockNumber(now), info.BlockNumber)
	assert.Equal(t, uint64(1234567+now.Unix()/10), info.BlockNumber)
	assert.Equal(t, "0.1", info.GasPrice)
	assert.Equal(t, int64(20000), info.ChainID)

	// node answers blockNumber but not gasPrice
	srv := rpcServer(t, map[string]string{"eth_blockNumber": "0x10"})
	partial := NewChainBridge(srv.URL, 20000, "BlockDAG Testnet", clk, time.Second)
	_, err = partial.GasPrice(ctx)
	assert.ErrorContains(t, err, "method not found")
	assert.False(t, partial.NetworkInfo(ctx).Connected)
}

func TestChainBridgeBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewChainBridge(srv.URL, 1, "x", clock.NewManual(at(12, 0)), time.Second)
	_, err := b.BlockNumber(context.Background())
	assert.ErrorContains(t, err, "status 502")
}
