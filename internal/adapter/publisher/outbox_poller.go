package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/port"
)

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublishObserver interface {
	ObservePublish(ok bool)
}

type OutboxPoller struct {
	outbox    port.OutboxRepository
	writer    MessageWriter
	tick      time.Duration
	batchSize int
	observer  PublishObserver
	now       func() time.Time
	log       *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(outbox port.OutboxRepository, writer MessageWriter, tick time.Duration, batchSize int, observer PublishObserver, logger *slog.Logger) *OutboxPoller {
	if tick <= 0 {
		tick = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPoller{
		outbox:    outbox,
		writer:    writer,
		tick:      tick,
		batchSize: batchSize,
		observer:  observer,
		now:       time.Now,
		log:       logger.With("component", "outbox_poller"),
	}
}

// Run publishes pending events every tick until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending sends one batch and returns how many events were marked
// published. An event that fails to publish stays pending for the next tick.
func (p *OutboxPoller) PublishPending(ctx context.Context) int {
	events, err := p.outbox.Pending(ctx, p.batchSize)
	if err != nil {
		p.log.Warn("fetch pending events failed", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.observe(false)
			p.log.Warn("publish event failed", "event_id", event.ID, "order_id", event.AggregateID, "error", err)
			continue
		}
		p.observe(true)

		if err := p.outbox.MarkPublished(ctx, event.ID, p.now().UTC()); err != nil {
			p.log.Warn("mark event published failed", "event_id", event.ID, "error", err)
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event domain.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		// keyed by order so a consumer sees one order's events in sequence
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	})
}

func (p *OutboxPoller) observe(ok bool) {
	if p.observer != nil {
		p.observer.ObservePublish(ok)
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}
