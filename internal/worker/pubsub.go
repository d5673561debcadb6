package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

const (
	defaultMaxOutstanding  = 10
	defaultMaxDeliveries   = 5
	defaultAckExtensionCap = 10 * time.Minute
)

// PubSubConfig configures the job subscription.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher

	// MaxOutstandingMessages bounds the messages in flight. Default 10.
	MaxOutstandingMessages int

	// MaxDeliveries is the delivery attempt from which a transient failure
	// is acked instead of redelivered. It only applies to subscriptions with
	// a dead letter policy, which report delivery attempts. Default 5.
	MaxDeliveries int

	Logger zerolog.Logger
}

// DeliveryStats counts how received messages were settled.
type DeliveryStats struct {
	Received   int64 `json:"received"`
	Acked      int64 `json:"acked"`
	Redelivery int64 `json:"redelivery"`
	Dropped    int64 `json:"dropped"`
}

// PubSubHandler receives job messages and settles each one after dispatch.
type PubSubHandler struct {
	client        *pubsub.Client
	subscriber    *pubsub.Subscriber
	subscription  string
	dispatcher    *Dispatcher
	maxDeliveries int
	logger        zerolog.Logger

	received, acked, nacked, dropped atomic.Int64
}

// settler is the part of *pubsub.Message that decides redelivery.
type settler interface {
	Ack()
	Nack()
}

// NewPubSubHandler connects to Pub/Sub. Call Start to begin receiving.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client for %s: %w", cfg.ProjectID, err)
	}

	h := newHandler(cfg)
	h.client = client
	h.subscriber = client.Subscriber(cfg.SubscriptionName)
	h.subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	if h.subscriber.ReceiveSettings.MaxOutstandingMessages <= 0 {
		h.subscriber.ReceiveSettings.MaxOutstandingMessages = defaultMaxOutstanding
	}
	h.subscriber.ReceiveSettings.MaxExtension = defaultAckExtensionCap
	return h, nil
}

func newHandler(cfg PubSubConfig) *PubSubHandler {
	maxDeliveries := cfg.MaxDeliveries
	if maxDeliveries <= 0 {
		maxDeliveries = defaultMaxDeliveries
	}
	return &PubSubHandler{
		subscription:  cfg.SubscriptionName,
		dispatcher:    cfg.Dispatcher,
		maxDeliveries: maxDeliveries,
		logger:        cfg.Logger.With().Str("subscription", cfg.SubscriptionName).Logger(),
	}
}

// Start receives messages until ctx is done or the subscription fails.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Msg("receiving profile jobs")
	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Time("publish_time", msg.PublishTime).
			Logger()
		h.settle(ctx, msg.Data, msg.DeliveryAttempt, msg, logger)
	})
}

// Close releases the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Stats returns the settlement counters.
func (h *PubSubHandler) Stats() DeliveryStats {
	return DeliveryStats{
		Received:   h.received.Load(),
		Acked:      h.acked.Load(),
		Redelivery: h.nacked.Load(),
		Dropped:    h.dropped.Load(),
	}
}

// settle dispatches data and acks or nacks m. Only transient failures are
// redelivered, and only until the delivery attempt reaches maxDeliveries.
func (h *PubSubHandler) settle(ctx context.Context, data []byte, attempt *int, m settler, logger zerolog.Logger) {
	h.received.Add(1)
	start := time.Now()
	if attempt != nil {
		logger = logger.With().Int("delivery_attempt", *attempt).Logger()
	}

	err := h.dispatcher.Dispatch(ctx, data)
	switch {
	case err == nil:
		h.acked.Add(1)
		logger.Info().Dur("duration", time.Since(start)).Msg("job message handled")
		m.Ack()
	case errors.Is(err, ErrTransient) && (attempt == nil || *attempt < h.maxDeliveries):
		h.nacked.Add(1)
		logger.Warn().Err(err).Msg("job failed, requesting redelivery")
		m.Nack()
	default:
		h.dropped.Add(1)
		logger.Error().Err(err).Msg("job message dropped")
		m.Ack()
	}
}
