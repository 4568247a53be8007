package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus is the confirmation state of a simulated transaction
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
)

// TxKind labels what a simulated transaction did
type TxKind string

const (
	TxReductionCommitment TxKind = "reduction_commitment"
	TxEnergyTrade         TxKind = "energy_trade"
	TxRewardClaim         TxKind = "reward_claim"
)

// TradeType is the side of an energy trade
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// WalletSession is returned by Connect
type WalletSession struct {
	Success bool   `json:"success"`
	Account string `json:"account"`
	ChainID int64  `json:"chainId"`
	Balance string `json:"balance"`
	Mode    string `json:"mode,omitempty"`
}

// NetworkInfo describes the chain the gateway talks to
type NetworkInfo struct {
	BlockNumber uint64 `json:"blockNumber"`
	GasPrice    string `json:"gasPrice"`
	ChainID     int64  `json:"chainId"`
	Name        string `json:"name"`
	Connected   bool   `json:"connected"`
}

// Commitment is the receipt for a consumption-reduction commitment
type Commitment struct {
	Hash            string          `json:"hash"`
	ExplorerURL     string          `json:"explorerUrl"`
	Status          TxStatus        `json:"status"`
	KWhCommitted    decimal.Decimal `json:"kwhCommitted"`
	EstimatedReward decimal.Decimal `json:"estimatedReward"`
}

// RewardClaim is the receipt for a reward claim
type RewardClaim struct {
	Hash        string          `json:"hash"`
	Amount      decimal.Decimal `json:"amount"`
	ExplorerURL string          `json:"explorerUrl"`
	Status      TxStatus        `json:"status"`
}

// EnergyTrade is the receipt for a P2P trade
type EnergyTrade struct {
	Hash        string          `json:"hash"`
	ExplorerURL string          `json:"explorerUrl"`
	Status      TxStatus        `json:"status"`
	Type        TradeType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	PricePerKWh decimal.Decimal `json:"pricePerKwh"`
	TotalValue  decimal.Decimal `json:"totalValue"`
}

// TradeOffer is an open offer in the simulated trade book
type TradeOffer struct {
	ID          string          `json:"id"`
	Seller      string          `json:"seller"`
	Amount      int             `json:"amount"`
	PricePerKWh decimal.Decimal `json:"pricePerKwh"`
	Source      string          `json:"source"`
	Available   bool            `json:"available"`
	ExpiresIn   int             `json:"expiresIn"` // seconds
}

// Transaction is the tracked state of a simulated transaction
type Transaction struct {
	Hash        string    `json:"hash"`
	Status      TxStatus  `json:"status"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Kind        TxKind    `json:"type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	ExplorerURL string    `json:"explorerUrl"`
}

// UserStats summarises a participant's incentive activity
type UserStats struct {
	Address            string          `json:"address"`
	TotalReductions    decimal.Decimal `json:"totalReductions"` // kWh
	TotalRewards       decimal.Decimal `json:"totalRewards"`
	CurrentCommitments int             `json:"currentCommitments"`
	RewardRate         decimal.Decimal `json:"rewardRate"`
	NextRewardTime     time.Time       `json:"nextRewardTime"`
	Rank               int             `json:"rank"`
}

// TransformerReading is the gateway's view of the local transformer
type TransformerReading struct {
	CurrentLoad float64            `json:"currentLoad"`
	MaxCapacity float64            `json:"maxCapacity"`
	Status      LoadStatus         `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	BlockNumber uint64             `json:"blockNumber"`
	Predictions map[string]float64 `json:"predictions"`
}
