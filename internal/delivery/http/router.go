package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/gridsmart/backend/internal/metrics"
	"github.com/gridsmart/backend/internal/service"
)

// Deps groups what the routes are served from. Metrics is optional.
type Deps struct {
	Grid    *service.GridService
	Load    *service.LoadSimulator
	Engine  *service.PredictionEngine
	Gateway *service.Gateway
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, deps Deps) *Handler {
	handler := NewHandler(deps)

	// Health check
	app.Get("/health", handler.HealthCheck)
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	// API v1 routes
	api := app.Group("/api/v1")
	{
		api.Get("/overview", handler.GetOverview)
		api.Get("/energy", handler.GetEnergy)
		api.Get("/energy/history", handler.GetEnergyHistory)

		// Prediction engine
		api.Get("/predictions/upcoming", handler.GetUpcoming)
		api.Get("/predictions/history", handler.GetHistory)
		api.Get("/predictions/records", handler.GetRecords)
		api.Get("/predictions/accuracy", handler.GetAccuracy)
		api.Get("/predictions/alert", handler.GetAlert)

		// Server-sent events
		api.Get("/stream/energy", handler.StreamEnergy)
		api.Get("/stream/predictions", handler.StreamPredictions)

		// Chain gateway
		api.Post("/wallet/connect", handler.ConnectWallet)
		api.Post("/wallet/disconnect", handler.DisconnectWallet)
		api.Get("/wallet/network", handler.GetNetwork)
		api.Get("/wallet/stats", handler.GetUserStats)
		api.Get("/transformer", handler.GetTransformer)
		api.Post("/incentives/commit", handler.CommitReduction)
		api.Post("/incentives/claim", handler.ClaimRewards)
		api.Get("/trades", handler.GetTrades)
		api.Post("/trades", handler.CreateTrade)
		api.Get("/transactions/:hash", handler.GetTransaction)
	}

	return handler
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
