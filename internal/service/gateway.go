package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/pkg/utils"
)

var (
	// ErrInvalidAmount is returned for non-positive kWh, amount or price values
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidTradeType is returned for trade types other than buy and sell
	ErrInvalidTradeType = errors.New("trade type must be buy or sell")
	// ErrNotConnected is returned by wallet operations before Connect
	ErrNotConnected = errors.New("wallet not connected")
)

// Contract addresses of the simulated deployment
const (
	IncentivesAddress = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb8"
	TradingAddress    = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	TreasuryAddress   = "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199"
)

// GatewaySettings configures the wallet/contract gateway
type GatewaySettings struct {
	RPCURL      string
	RPCTimeout  time.Duration
	ExplorerURL string
	ChainID     int64
	NetworkName string
	Account     string
	Balance     string

	RewardRate decimal.Decimal // per kWh
	PeakBonus  decimal.Decimal

	CommitConfirmDelay time.Duration
	ClaimConfirmDelay  time.Duration
	TradeConfirmDelay  time.Duration

	// TxRetention is how long a confirmed transaction stays queryable
	TxRetention time.Duration
}

// DefaultGatewaySettings returns the testnet demo configuration
func DefaultGatewaySettings() GatewaySettings {
	return GatewaySettings{
		RPCTimeout:         5 * time.Second,
		ExplorerURL:        "https://awakening.bdagscan.com",
		ChainID:            20000,
		NetworkName:        "BlockDAG Testnet",
		Account:            "0x" + strings.Repeat("1234567890abcdef", 2) + "12345678",
		Balance:            "1000",
		RewardRate:         decimal.NewFromFloat(2.5),
		PeakBonus:          decimal.NewFromFloat(1.5),
		CommitConfirmDelay: 3 * time.Second,
		ClaimConfirmDelay:  3 * time.Second,
		TradeConfirmDelay:  2500 * time.Millisecond,
		TxRetention:        time.Hour,
	}
}

type trackedTx struct {
	tx        domain.Transaction
	confirmAt time.Time
}

// Gateway simulates the wallet and incentive contracts. Transactions are
// held pending until their confirmation delay has elapsed on the clock.
type Gateway struct {
	clock    clock.Clock
	rng      RandSource
	settings GatewaySettings
	bridge   *ChainBridge
	load     *LoadSimulator
	log      *slog.Logger

	mu        sync.Mutex
	connected bool
	account   string
	txs       map[string]*trackedTx
}

// NewGateway builds a gateway reading peak state and load from load
func NewGateway(clk clock.Clock, rng RandSource, settings GatewaySettings, bridge *ChainBridge, load *LoadSimulator, logger *slog.Logger) *Gateway {
	d := DefaultGatewaySettings()
	if settings.ExplorerURL == "" {
		settings.ExplorerURL = d.ExplorerURL
	}
	if settings.Account == "" {
		settings.Account = d.Account
	}
	if settings.Balance == "" {
		settings.Balance = d.Balance
	}
	if settings.RewardRate.IsZero() {
		settings.RewardRate = d.RewardRate
	}
	if settings.PeakBonus.IsZero() {
		settings.PeakBonus = d.PeakBonus
	}
	if settings.TxRetention <= 0 {
		settings.TxRetention = d.TxRetention
	}
	settings.ExplorerURL = strings.TrimRight(settings.ExplorerURL, "/")
	return &Gateway{
		clock:    clk,
		rng:      rng,
		settings: settings,
		bridge:   bridge,
		load:     load,
		log:      componentLogger(logger, "gateway"),
		txs:      make(map[string]*trackedTx),
	}
}

// Connect opens a wallet session. When the node is unreachable the session
// is still opened, in simulation mode.
func (g *Gateway) Connect(ctx context.Context) domain.WalletSession {
	session := domain.WalletSession{
		Success: true,
		Account: g.settings.Account,
		ChainID: g.settings.ChainID,
		Balance: g.settings.Balance,
	}
	if id, err := g.bridge.ChainID(ctx); err != nil {
		g.log.Warn("chain unreachable, using simulation mode", slog.String("error", err.Error()))
		session.Mode = "simulation"
	} else {
		session.ChainID = id
	}

	g.mu.Lock()
	g.connected = true
	g.account = g.settings.Account
	g.mu.Unlock()
	return session
}

// Disconnect closes the session and forgets tracked transactions
func (g *Gateway) Disconnect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	g.account = ""
	g.txs = make(map[string]*trackedTx)
}

// NetworkInfo returns chain figures via the bridge
func (g *Gateway) NetworkInfo(ctx context.Context) domain.NetworkInfo {
	return g.bridge.NetworkInfo(ctx)
}

// EstimateReward prices a reduction commitment at time t
func (g *Gateway) EstimateReward(kwh decimal.Decimal, t time.Time) decimal.Decimal {
	reward := kwh.Mul(g.settings.RewardRate)
	if g.load.Settings().IsPeak(t) {
		reward = reward.Mul(g.settings.PeakBonus)
	}
	return reward.Round(2)
}

// CommitReduction records a pledge to cut consumption by kwh
func (g *Gateway) CommitReduction(ctx context.Context, kwh decimal.Decimal) (domain.Commitment, error) {
	if !kwh.IsPositive() {
		return domain.Commitment{}, fmt.Errorf("gateway: commit %s kWh: %w", kwh, ErrInvalidAmount)
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return domain.Commitment{}, fmt.Errorf("gateway: commit: %w", ErrNotConnected)
	}
	tx := g.submitLocked(now, txRoute{Kind: domain.TxReductionCommitment, From: g.account, To: IncentivesAddress}, g.settings.CommitConfirmDelay)
	g.log.Info("reduction committed", slog.String("hash", tx.Hash), slog.String("kwh", kwh.String()))

	return domain.Commitment{
		Hash:            tx.Hash,
		ExplorerURL:     tx.ExplorerURL,
		Status:          domain.TxPending,
		KWhCommitted:    kwh,
		EstimatedReward: g.EstimateReward(kwh, now),
	}, nil
}

// ClaimRewards pays out the accumulated incentive balance
func (g *Gateway) ClaimRewards(ctx context.Context) (domain.RewardClaim, error) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return domain.RewardClaim{}, fmt.Errorf("gateway: claim: %w", ErrNotConnected)
	}
	amount := decimal.NewFromFloat(utils.Lerp(5, 15, g.rng.Float64())).Truncate(2)
	tx := g.submitLocked(now, txRoute{Kind: domain.TxRewardClaim, From: TreasuryAddress, To: g.account}, g.settings.ClaimConfirmDelay)
	g.log.Info("rewards claimed", slog.String("hash", tx.Hash), slog.String("amount", amount.String()))

	return domain.RewardClaim{
		Hash:        tx.Hash,
		Amount:      amount,
		ExplorerURL: tx.ExplorerURL,
		Status:      domain.TxPending,
	}, nil
}

// CreateEnergyTrade places a buy or sell order for amount kWh at price
func (g *Gateway) CreateEnergyTrade(ctx context.Context, tradeType domain.TradeType, amount, price decimal.Decimal) (domain.EnergyTrade, error) {
	if tradeType != domain.TradeBuy && tradeType != domain.TradeSell {
		return domain.EnergyTrade{}, fmt.Errorf("gateway: trade %q: %w", tradeType, ErrInvalidTradeType)
	}
	if !amount.IsPositive() || !price.IsPositive() {
		return domain.EnergyTrade{}, fmt.Errorf("gateway: trade %s at %s: %w", amount, price, ErrInvalidAmount)
	}
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return domain.EnergyTrade{}, fmt.Errorf("gateway: trade: %w", ErrNotConnected)
	}
	tx := g.submitLocked(now, txRoute{Kind: domain.TxEnergyTrade, From: g.account, To: TradingAddress}, g.settings.TradeConfirmDelay)
	g.log.Info("energy trade created",
		slog.String("hash", tx.Hash),
		slog.String("type", string(tradeType)),
		slog.String("amount", amount.String()))

	return domain.EnergyTrade{
		Hash:        tx.Hash,
		ExplorerURL: tx.ExplorerURL,
		Status:      domain.TxPending,
		Type:        tradeType,
		Amount:      amount,
		PricePerKWh: price,
		TotalValue:  amount.Mul(price),
	}, nil
}

// TransactionStatus reports a transaction's state. Hashes the gateway did
// not issue, or has already pruned, are reported as confirmed at the base
// block.
func (g *Gateway) TransactionStatus(hash string) domain.Transaction {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.txs[hash]
	if !ok {
		return domain.Transaction{
			Hash:        hash,
			Status:      domain.TxConfirmed,
			BlockNumber: mockBlockBase,
			From:        g.account,
			To:          IncentivesAddress,
			ExplorerURL: g.explorerURL(hash),
		}
	}
	if t.tx.Status == domain.TxPending && !now.Before(t.confirmAt) {
		t.tx.Status = domain.TxConfirmed
		t.tx.BlockNumber = MockBlockNumber(t.confirmAt)
	}
	return t.tx
}

// UserStats summarises the connected account's incentive activity
func (g *Gateway) UserStats() (domain.UserStats, error) {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return domain.UserStats{}, fmt.Errorf("gateway: stats: %w", ErrNotConnected)
	}
	pending := 0
	for _, t := range g.txs {
		if t.tx.Kind == domain.TxReductionCommitment && now.Before(t.confirmAt) {
			pending++
		}
	}
	reductions := decimal.NewFromInt(int64(10 + intn(g.rng, 50)))
	return domain.UserStats{
		Address:            g.account,
		TotalReductions:    reductions,
		TotalRewards:       reductions.Mul(g.settings.RewardRate).Round(2),
		CurrentCommitments: pending,
		RewardRate:         g.settings.RewardRate,
		NextRewardTime:     now.Add(time.Hour),
		Rank:               1 + intn(g.rng, 100),
	}, nil
}

// TransformerReading reports the current load with short-range projections
func (g *Gateway) TransformerReading(ctx context.Context) domain.TransformerReading {
	now := g.clock.Now()
	load := g.load.Current().TransformerLoad
	project := func(delta float64) float64 {
		return utils.RoundTo(utils.Clamp(load+delta, 0, 95), 1)
	}
	return domain.TransformerReading{
		CurrentLoad: utils.RoundTo(load, 1),
		MaxCapacity: 100,
		Status:      ClassifyLoad(load),
		Timestamp:   now,
		BlockNumber: g.bridge.NetworkInfo(ctx).BlockNumber,
		Predictions: map[string]float64{
			"next1Hour":  project(g.rng.Float64() * 5),
			"next4Hours": project(g.rng.Float64() * 10),
			"next8Hours": project(-g.rng.Float64() * 5),
		},
	}
}

// AvailableTrades returns the open P2P offers, cheapest first
func (g *Gateway) AvailableTrades() []domain.TradeOffer {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 5 + intn(g.rng, 5)
	offers := make([]domain.TradeOffer, 0, n)
	for i := 0; i < n; i++ {
		source := "battery"
		if g.rng.Float64() > 0.5 {
			source = "solar"
		}
		offers = append(offers, domain.TradeOffer{
			ID:          g.hashLocked()[:10],
			Seller:      "0x" + g.hexLocked(8) + strings.Repeat("0", 32),
			Amount:      5 + intn(g.rng, 20),
			PricePerKWh: decimal.NewFromFloat(utils.Lerp(0.5, 0.8, g.rng.Float64())).Round(2),
			Source:      source,
			Available:   true,
			ExpiresIn:   600 + intn(g.rng, 3600),
		})
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].PricePerKWh.LessThan(offers[j].PricePerKWh)
	})
	return offers
}

// txRoute describes a transaction about to be submitted
type txRoute struct {
	Kind domain.TxKind
	From string
	To   string
}

func (g *Gateway) submitLocked(now time.Time, route txRoute, delay time.Duration) domain.Transaction {
	g.pruneLocked(now)
	hash := g.hashLocked()
	tx := domain.Transaction{
		Hash:        hash,
		Status:      domain.TxPending,
		From:        route.From,
		To:          route.To,
		Kind:        route.Kind,
		Timestamp:   now,
		ExplorerURL: g.explorerURL(hash),
	}
	g.txs[hash] = &trackedTx{tx: tx, confirmAt: now.Add(delay)}
	return tx
}

// pruneLocked forgets transactions confirmed more than TxRetention ago
func (g *Gateway) pruneLocked(now time.Time) {
	horizon := now.Add(-g.settings.TxRetention)
	for hash, t := range g.txs {
		if !t.confirmAt.After(horizon) {
			delete(g.txs, hash)
		}
	}
}

func (g *Gateway) explorerURL(hash string) string {
	return g.settings.ExplorerURL + "/tx/" + hash
}

func (g *Gateway) hashLocked() string {
	return "0x" + g.hexLocked(64)
}

const hexDigits = "0123456789abcdef"

func (g *Gateway) hexLocked(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(hexDigits[intn(g.rng, 16)])
	}
	return b.String()
}
