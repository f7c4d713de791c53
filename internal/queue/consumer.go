package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/whome/pkg/dto"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

// EventSink receives decoded events.
type EventSink interface {
	OnScanState(ctx context.Context, ev *dto.ScanStateEvent) error
	OnRegistration(ctx context.Context, ev *dto.RegistrationEvent) error
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// Dispatch routes a raw event to sink by subject. Payloads that cannot be
// decoded are returned as errors so the message is redelivered up to MaxDeliver.
func Dispatch(ctx context.Context, sink EventSink, subject string, data []byte) error {
	switch {
	case strings.HasPrefix(subject, ScanSubjectBase+"."):
		var ev dto.ScanStateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode scan event: %w", err)
		}
		return sink.OnScanState(ctx, &ev)
	case subject == RegistrationSubject:
		var ev dto.RegistrationEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("decode registration event: %w", err)
		}
		return sink.OnRegistration(ctx, &ev)
	default:
		slog.Debug("ignoring event", "subject", subject)
		return nil
	}
}

// SinkHandler adapts an EventSink to a MessageHandler.
func SinkHandler(sink EventSink) MessageHandler {
	return func(ctx context.Context, msg jetstream.Msg) error {
		return Dispatch(ctx, sink, msg.Subject(), msg.Data())
	}
}

// ConsumeEvents starts consuming scan and registration events.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch events error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process event error", "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
