package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridsmart/backend/internal/clock"
	"github.com/gridsmart/backend/internal/domain"
	"github.com/gridsmart/backend/internal/service"
)

const (
	defaultQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// Instruments receives bridge delivery events
type Instruments interface {
	BroadcastPublished(sink string)
	BroadcastFailed(sink string)
	BroadcastDropped(topic string)
}

type nopInstruments struct{}

func (nopInstruments) BroadcastPublished(string) {}
func (nopInstruments) BroadcastFailed(string)    {}
func (nopInstruments) BroadcastDropped(string)   {}

type message struct {
	topic   string
	payload []byte
}

// Bridge forwards simulator notifications to every sink. Listeners only
// enqueue; a single worker does the network I/O, and when the queue is full
// messages are dropped rather than stalling a tick.
type Bridge struct {
	topics      Topics
	sinks       []Sink
	clock       clock.Clock
	log         *slog.Logger
	instruments Instruments
	queue       chan message
	dropped     atomic.Uint64

	alertMu   sync.Mutex
	lastAlert string
}

// NewBridge creates a bridge. queueSize <= 0 selects the default.
func NewBridge(topics Topics, sinks []Sink, clk clock.Clock, queueSize int, logger *slog.Logger) *Bridge {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		topics:      topics,
		sinks:       sinks,
		clock:       clk,
		log:         logger.With(slog.String("component", "broadcast")),
		instruments: nopInstruments{},
		queue:       make(chan message, queueSize),
	}
}

// Instrument routes delivery events to i
func (b *Bridge) Instrument(i Instruments) {
	if i == nil {
		i = nopInstruments{}
	}
	b.instruments = i
}

// Dropped reports how many messages were discarded on a full queue
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Attach subscribes to the simulators. Energy ticks, changes of the next
// alert and newly settled predictions are forwarded. The returned function
// detaches.
func (b *Bridge) Attach(load *service.LoadSimulator, engine *service.PredictionEngine) func() {
	stopEnergy := load.Subscribe(func(data domain.EnergyData) {
		b.enqueue(b.topics.Energy, domain.EnergySample{EnergyData: data, Timestamp: b.clock.Now()})
	})
	stopAlerts := engine.SubscribeToAlerts(b.forwardAlert)

	tracker := service.NewRecordTracker()
	stopHistory := engine.SubscribeToHistory(func(history []domain.PredictionRecord) {
		for _, record := range tracker.Fresh(history) {
			b.enqueue(b.topics.Completed, record)
		}
	})

	return func() {
		stopEnergy()
		stopAlerts()
		stopHistory()
	}
}

// forwardAlert publishes the alert when it differs from the last one sent
func (b *Bridge) forwardAlert(p *domain.Prediction) {
	key := ""
	if p != nil {
		key = p.ID + "/" + string(p.Status)
	}
	b.alertMu.Lock()
	changed := key != b.lastAlert
	b.lastAlert = key
	b.alertMu.Unlock()

	if changed && p != nil {
		b.enqueue(b.topics.Alerts, p)
	}
}

func (b *Bridge) enqueue(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.log.Error("failed to encode payload", slog.String("topic", topic), slog.Any("err", err))
		return
	}
	select {
	case b.queue <- message{topic: topic, payload: payload}:
	default:
		b.dropped.Add(1)
		b.instruments.BroadcastDropped(topic)
		b.log.Warn("broadcast queue full, dropping message", slog.String("topic", topic))
	}
}

// Run delivers queued messages until ctx is done, then drains what is left
func (b *Bridge) Run(ctx context.Context) {
	b.log.Info("broadcast bridge started", slog.Int("sinks", len(b.sinks)))
	for {
		select {
		case <-ctx.Done():
			b.drain()
			b.log.Info("broadcast bridge stopped")
			return
		case msg := <-b.queue:
			b.deliver(context.Background(), msg)
		}
	}
}

func (b *Bridge) drain() {
	for {
		select {
		case msg := <-b.queue:
			b.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (b *Bridge) deliver(parent context.Context, msg message) {
	for _, sink := range b.sinks {
		ctx, cancel := context.WithTimeout(parent, publishTimeout)
		err := sink.Publish(ctx, msg.topic, msg.payload)
		cancel()
		if err != nil {
			b.instruments.BroadcastFailed(sink.Name())
			b.log.Error("publish failed",
				slog.String("sink", sink.Name()),
				slog.String("topic", msg.topic),
				slog.Any("err", err))
			continue
		}
		b.instruments.BroadcastPublished(sink.Name())
	}
}

// Close closes every sink
func (b *Bridge) Close() error {
	var first error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
