package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Envelope is the wire form of an event on the redis channel.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisPublisher is the subset of *redis.Client the forwarder needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder relays bus events to a redis pub/sub channel for consumers
// outside this process.
type RedisForwarder struct {
	client  RedisPublisher
	channel string
	logger  *slog.Logger
}

func NewRedisForwarder(client RedisPublisher, channel string, logger *slog.Logger) *RedisForwarder {
	return &RedisForwarder{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func Encode(event Event) ([]byte, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal payload of %s: %w", event.EventType(), err)
	}
	return json.Marshal(Envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Payload:    payload,
	})
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode event envelope: missing type")
	}
	return &env, nil
}

// Handle is a bus Handler.
func (f *RedisForwarder) Handle(ctx context.Context, event Event) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	receivers, err := f.client.Publish(ctx, f.channel, body).Result()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType(), f.channel, err)
	}
	f.logger.Debug("event forwarded",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"channel", f.channel,
		"receivers", receivers)
	return nil
}

// Listen subscribes to channel and invokes fn for every decodable message
// until ctx is done. Undecodable messages are logged and skipped.
func Listen(ctx context.Context, client *redis.Client, channel string, logger *slog.Logger, fn func(ctx context.Context, env *Envelope) error) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	logger.Info("listening for events", "channel", channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			env, err := Decode([]byte(msg.Payload))
			if err != nil {
				logger.Warn("skipping malformed event", "channel", channel, "error", err)
				continue
			}
			if err := fn(ctx, env); err != nil {
				logger.Error("event consumer failed",
					"event_type", env.Type,
					"event_id", env.ID,
					"error", err)
			}
		}
	}
}
