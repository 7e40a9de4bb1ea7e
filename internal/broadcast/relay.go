package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eaglebank/transactions-svc/shared/correlation"
	"github.com/eaglebank/transactions-svc/shared/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Relay feeds transactions committed by other instances into the local
// broadcaster so stream clients see every transaction regardless of which
// replica served the write. Events published by this instance are skipped
// because they were already broadcast in-process.
type Relay struct {
	subscriber  *events.Subscriber
	broadcaster *Broadcaster
	instanceID  string
	logger      *zap.Logger
}

func NewRelay(client *redis.Client, broadcaster *Broadcaster, instanceID string, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		broadcaster: broadcaster,
		instanceID:  instanceID,
		logger:      logger,
	}
	r.subscriber = events.NewSubscriber(client, events.SubscriberConfig{
		Group:    "stream-relay-" + instanceID,
		Consumer: instanceID,
		Stream:   events.TransactionEventsStream,
		// Live stream only; history is never replayed to subscribers.
		StartID: "$",
		Handler: r.handle,
		Logger:  logger,
	})
	return r
}

// Run consumes until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	err := r.subscriber.Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Relay) handle(ctx context.Context, event events.Event) error {
	if event.Type != events.TransactionCreated || event.Source == r.instanceID {
		return nil
	}

	var payload events.TransactionCreatedEvent
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("failed to decode %s: %w", event.Type, err)
	}

	if err := r.broadcaster.Publish(payload.Transaction); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	correlation.Logger(ctx, r.logger).Debug("relayed transaction",
		zap.String("source", event.Source), zap.String("transaction_id", payload.Transaction.ID))
	return nil
}
