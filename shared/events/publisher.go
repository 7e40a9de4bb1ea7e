package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
	source string
	maxLen int64
}

// NewPublisher returns a stream publisher stamping every event with source.
// maxLen > 0 caps each stream approximately at that many entries.
func NewPublisher(client *redis.Client, source string, maxLen int64) *Publisher {
	return &Publisher{client: client, source: source, maxLen: maxLen}
}

func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	event := Event{
		Type:          eventType,
		Source:        p.source,
		CorrelationID: correlation.FromContext(ctx),
		Timestamp:     time.Now().UTC(),
		Data:          payload,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"event": eventJSON,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
