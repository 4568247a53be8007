package http

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/internal/service"
)

const (
	streamBuffer      = 32
	heartbeatInterval = 15 * time.Second
)

type event struct {
	name string
	data any
}

// streamEvents writes server-sent events fed by subscribe until the client
// goes away or the handler is closed. subscribe registers listeners that
// push into emit and returns the function undoing the registration.
func (h *Handler) streamEvents(c *fiber.Ctx, subscribe func(emit func(event)) func()) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		events := make(chan event, streamBuffer)
		emit := func(ev event) {
			select {
			case events <- ev:
			default:
				h.log.Warn("slow stream client, dropping event", slog.String("event", ev.name))
			}
		}
		unsubscribe := subscribe(emit)
		defer unsubscribe()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			// pending events go out before checking for shutdown
			select {
			case ev := <-events:
				if writeEvent(w, ev) != nil {
					return
				}
				continue
			default:
			}

			select {
			case ev := <-events:
				if writeEvent(w, ev) != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if w.Flush() != nil {
					return
				}
			case <-h.done:
				return
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, ev event) error {
	payload, err := json.Marshal(ev.data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, payload); err != nil {
		return err
	}
	return w.Flush()
}

// StreamEnergy streams every energy tick
func (h *Handler) StreamEnergy(c *fiber.Ctx) error {
	return h.streamEvents(c, func(emit func(event)) func() {
		return h.load.Subscribe(func(d domain.EnergyData) {
			emit(event{name: "energy", data: service.ViewOf(d)})
		})
	})
}

// StreamPredictions streams working set, history, accuracy and alert updates
func (h *Handler) StreamPredictions(c *fiber.Ctx) error {
	return h.streamEvents(c, func(emit func(event)) func() {
		stops := []func(){
			h.engine.SubscribeToUpcoming(func(p []domain.Prediction) {
				emit(event{name: "upcoming", data: p})
			}),
			h.engine.SubscribeToHistory(func(r []domain.PredictionRecord) {
				emit(event{name: "history", data: r})
			}),
			h.engine.SubscribeToAccuracy(func(a domain.AccuracyData) {
				emit(event{name: "accuracy", data: a})
			}),
			h.engine.SubscribeToAlerts(func(p *domain.Prediction) {
				emit(event{name: "alert", data: p})
			}),
		}
		return func() {
			for _, stop := range stops {
				stop()
			}
		}
	})
}
