package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/internal/service"
)

// Handler contains all HTTP handlers
type Handler struct {
	grid    *service.GridService
	load    *service.LoadSimulator
	engine  *service.PredictionEngine
	gateway *service.Gateway
	log     *slog.Logger

	done chan struct{}
}

// NewHandler creates a new handler
func NewHandler(deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		grid:    deps.Grid,
		load:    deps.Load,
		engine:  deps.Engine,
		gateway: deps.Gateway,
		log:     log.With(slog.String("component", "http")),
		done:    make(chan struct{}),
	}
}

// Close ends open event streams. Call before shutting the server down.
func (h *Handler) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// gatewayError maps gateway sentinels to HTTP statuses
func gatewayError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidTradeType):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotConnected):
		return fiber.NewError(fiber.StatusConflict, "Wallet not connected")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "Gateway request failed")
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status, database := "ok", "ok"
	if err := h.grid.Health(c.Context()); err != nil {
		status, database = "degraded", "unavailable"
		h.log.Warn("repository health check failed", slog.String("error", err.Error()))
	}
	return c.JSON(fiber.Map{
		"status":   status,
		"database": database,
		"service":  "gridsmart-backend",
		"version":  "1.0.0",
	})
}

// GetOverview returns the aggregated home screen data
func (h *Handler) GetOverview(c *fiber.Ctx) error {
	return ok(c, h.grid.Overview())
}

// GetEnergy returns the current energy snapshot with its classification
func (h *Handler) GetEnergy(c *fiber.Ctx) error {
	return ok(c, h.grid.Energy())
}

// GetEnergyHistory returns persisted energy samples within the last hours
func (h *Handler) GetEnergyHistory(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > 720 { // max 30 days
		hours = 24
	}

	data, err := h.grid.EnergyHistory(c.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.log.Error("energy history failed", slog.String("error", err.Error()))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch energy history")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"count":   len(data),
	})
}

// GetUpcoming returns upcoming and active predictions
func (h *Handler) GetUpcoming(c *fiber.Ctx) error {
	return ok(c, h.engine.Upcoming())
}

// GetHistory returns the in-memory settlement history
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	return ok(c, h.engine.History())
}

// GetRecords returns persisted settlement records
func (h *Handler) GetRecords(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	data, err := h.grid.PredictionRecords(c.Context(), limit)
	if err != nil {
		h.log.Error("prediction records failed", slog.String("error", err.Error()))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to fetch prediction records")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"count":   len(data),
	})
}

// GetAccuracy returns the accuracy aggregates
func (h *Handler) GetAccuracy(c *fiber.Ctx) error {
	return ok(c, h.engine.Accuracy())
}

// GetAlert returns the next alert, or null
func (h *Handler) GetAlert(c *fiber.Ctx) error {
	return ok(c, h.engine.NextAlert())
}

// ConnectWallet opens a wallet session
func (h *Handler) ConnectWallet(c *fiber.Ctx) error {
	return ok(c, h.gateway.Connect(c.Context()))
}

// DisconnectWallet ends the wallet session
func (h *Handler) DisconnectWallet(c *fiber.Ctx) error {
	h.gateway.Disconnect()
	return ok(c, fiber.Map{"connected": false})
}

// GetNetwork returns chain information
func (h *Handler) GetNetwork(c *fiber.Ctx) error {
	return ok(c, h.gateway.NetworkInfo(c.Context()))
}

// GetUserStats returns the connected account's incentive stats
func (h *Handler) GetUserStats(c *fiber.Ctx) error {
	stats, err := h.gateway.UserStats()
	if err != nil {
		return gatewayError(err)
	}
	return ok(c, stats)
}

// GetTransformer returns the transformer reading
func (h *Handler) GetTransformer(c *fiber.Ctx) error {
	return ok(c, h.gateway.TransformerReading(c.Context()))
}

type commitRequest struct {
	KWh decimal.Decimal `json:"kwh"`
}

// CommitReduction records a consumption reduction pledge
func (h *Handler) CommitReduction(c *fiber.Ctx) error {
	var req commitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	commitment, err := h.gateway.CommitReduction(c.Context(), req.KWh)
	if err != nil {
		return gatewayError(err)
	}
	return ok(c, commitment)
}

// ClaimRewards claims accumulated rewards
func (h *Handler) ClaimRewards(c *fiber.Ctx) error {
	claim, err := h.gateway.ClaimRewards(c.Context())
	if err != nil {
		return gatewayError(err)
	}
	return ok(c, claim)
}

// GetTrades returns open P2P offers
func (h *Handler) GetTrades(c *fiber.Ctx) error {
	return ok(c, h.gateway.AvailableTrades())
}

type tradeRequest struct {
	Type        domain.TradeType `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	PricePerKWh decimal.Decimal  `json:"pricePerKwh"`
}

// CreateTrade places a buy or sell order
func (h *Handler) CreateTrade(c *fiber.Ctx) error {
	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	trade, err := h.gateway.CreateEnergyTrade(c.Context(), req.Type, req.Amount, req.PricePerKWh)
	if err != nil {
		return gatewayError(err)
	}
	return ok(c, trade)
}

// GetTransaction returns a transaction's confirmation state
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	hash := c.Params("hash")
	if hash == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing transaction hash")
	}
	return ok(c, h.gateway.TransactionStatus(hash))
}
