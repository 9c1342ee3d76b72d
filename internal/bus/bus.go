// Package bus is the pub/sub seam between pipeline stages. Delivery is
// at-least-once from the consumers' point of view: every subscriber must
// tolerate duplicate messages.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ChannelTradeRequests = "ethmatic:trade-requests"
	ChannelTxnReceipts   = "ethmatic:txn-receipts"
	ChannelRefills       = "ethmatic:refill-requests"
	ChannelCycleComplete = "ethmatic:cycle-complete"
)

type Bus struct {
	client *redis.Client
	log    zerolog.Logger
}

func New(addr, password string, db int, log zerolog.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Bus{
		client: client,
		log:    log.With().Str("component", "bus").Logger(),
	}, nil
}

func (b *Bus) Close() error { return b.client.Close() }

// Publish marshals the message and sends it on the channel. The error is
// returned rather than logged-and-dropped: callers decide whether a failed
// publish means retry-later (the reconciler leaves its row in place).
func (b *Bus) Publish(ctx context.Context, channel string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers raw message bodies to the handler until ctx is done.
// Handler errors are logged and swallowed; a poison message must not stall
// the channel.
func (b *Bus) Subscribe(ctx context.Context, channel string, handler func(context.Context, []byte) error) {
	sub := b.client.Subscribe(ctx, channel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, []byte(msg.Payload)); err != nil {
					b.log.Error().Err(err).Str("channel", channel).Msg("message handler failed")
				}
			}
		}
	}()

	b.log.Info().Str("channel", channel).Msg("subscribed")
}
