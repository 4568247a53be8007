package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
)

func newTestGateway(clk *clock.Manual, rng RandSource) *Gateway {
	settings := DefaultGatewaySettings()
	bridge := NewChainBridge("", settings.ChainID, settings.NetworkName, clk, time.Second)
	load := NewLoadSimulator(clk, rng, utcLoadSettings(), nil)
	return NewGateway(clk, rng, settings, bridge, load, nil)
}

func TestGatewayConnectSimulationMode(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(1))

	_, err := g.CommitReduction(context.Background(), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = g.UserStats()
	assert.ErrorIs(t, err, ErrNotConnected)

	session := g.Connect(context.Background())
	assert.True(t, session.Success)
	assert.Equal(t, "simulation", session.Mode)
	assert.Equal(t, "1000", session.Balance)
	assert.Equal(t, int64(20000), session.ChainID)
	assert.Len(t, session.Account, 42)

	g.Disconnect()
	_, err = g.ClaimRewards(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGatewayCommitReward(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(1))
	g.Connect(context.Background())

	c, err := g.CommitReduction(context.Background(), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, domain.TxPending, c.Status)
	assert.True(t, decimal.NewFromInt(25).Equal(c.EstimatedReward), c.EstimatedReward.String())
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, c.Hash)
	assert.Equal(t, "https://awakening.bdagscan.com/tx/"+c.Hash, c.ExplorerURL)

	clk.Set(at(18, 0))
	c, err = g.CommitReduction(context.Background(), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("37.5").Equal(c.EstimatedReward), c.EstimatedReward.String())

	_, err = g.CommitReduction(context.Background(), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGatewayTransactionConfirmation(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(1))
	g.Connect(context.Background())

	trade, err := g.CreateEnergyTrade(context.Background(), domain.TradeBuy, decimal.NewFromInt(4), decimal.RequireFromString("0.55"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.2").Equal(trade.TotalValue))

	stats, err := g.UserStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.CurrentCommitments)

	commit, err := g.CommitReduction(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)
	stats, err = g.UserStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CurrentCommitments)

	clk.Advance(2 * time.Second)
	assert.Equal(t, domain.TxPending, g.TransactionStatus(trade.Hash).Status)

	clk.Advance(500 * time.Millisecond)
	tx := g.TransactionStatus(trade.Hash)
	assert.Equal(t, domain.TxConfirmed, tx.Status)
	assert.Equal(t, domain.TxEnergyTrade, tx.Kind)
	assert.Equal(t, TradingAddress, tx.To)
	assert.Equal(t, MockBlockNumber(at(12, 0).Add(2500*time.Millisecond)), tx.BlockNumber)
	assert.Equal(t, domain.TxPending, g.TransactionStatus(commit.Hash).Status)

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, domain.TxConfirmed, g.TransactionStatus(commit.Hash).Status)

	unknown := g.TransactionStatus("0xabc")
	assert.Equal(t, domain.TxConfirmed, unknown.Status)
	assert.Equal(t, uint64(1234567), unknown.BlockNumber)
}

func TestGatewayPrunesOldTransactions(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(1))
	g.Connect(context.Background())

	old, err := g.CommitReduction(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)
	_, err = g.ClaimRewards(context.Background())
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	_, err = g.CommitReduction(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)
	g.mu.Lock()
	assert.Len(t, g.txs, 3)
	g.mu.Unlock()

	clk.Advance(2 * time.Hour)
	fresh, err := g.CommitReduction(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)
	g.mu.Lock()
	assert.Len(t, g.txs, 1)
	assert.Contains(t, g.txs, fresh.Hash)
	g.mu.Unlock()

	// pruned hashes still resolve as confirmed
	assert.Equal(t, domain.TxConfirmed, g.TransactionStatus(old.Hash).Status)
}

func TestGatewayTradeValidation(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(1))
	g.Connect(context.Background())
	ctx := context.Background()

	_, err := g.CreateEnergyTrade(ctx, "swap", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidTradeType)
	_, err = g.CreateEnergyTrade(ctx, domain.TradeSell, decimal.NewFromInt(-1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = g.CreateEnergyTrade(ctx, domain.TradeSell, decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGatewayClaimAmountRange(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, fixedRand(0.9999999))
	g.Connect(context.Background())

	claim, err := g.ClaimRewards(context.Background())
	require.NoError(t, err)
	assert.True(t, claim.Amount.LessThan(decimal.NewFromInt(15)), claim.Amount.String())
	assert.True(t, claim.Amount.GreaterThanOrEqual(decimal.NewFromInt(5)))
	assert.Equal(t, TreasuryAddress, g.TransactionStatus(claim.Hash).From)
}

func TestGatewayAvailableTrades(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, NewRandSource(5))

	for i := 0; i < 20; i++ {
		offers := g.AvailableTrades()
		assert.GreaterOrEqual(t, len(offers), 5)
		assert.LessOrEqual(t, len(offers), 9)
		for j, o := range offers {
			assert.Len(t, o.ID, 10)
			assert.True(t, strings.HasPrefix(o.Seller, "0x"))
			assert.Len(t, o.Seller, 42)
			assert.GreaterOrEqual(t, o.Amount, 5)
			assert.Less(t, o.Amount, 25)
			assert.Contains(t, []string{"solar", "battery"}, o.Source)
			if j > 0 {
				assert.False(t, o.PricePerKWh.LessThan(offers[j-1].PricePerKWh))
			}
		}
	}
}

func TestGatewayTransformerReading(t *testing.T) {
	clk := clock.NewManual(at(12, 0))
	g := newTestGateway(clk, fixedRand(0.5))

	r := g.TransformerReading(context.Background())
	assert.Equal(t, 45.0, r.CurrentLoad)
	assert.Equal(t, domain.LoadNormal, r.Status)
	assert.Equal(t, 100.0, r.MaxCapacity)
	assert.Equal(t, MockBlockNumber(clk.Now()), r.BlockNumber)
	assert.Equal(t, map[string]float64{"next1Hour": 47.5, "next4Hours": 50, "next8Hours": 42.5}, r.Predictions)
}
