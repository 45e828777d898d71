package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Processed successfully, ACK it
	ActionNakDelay                     // Retryable error, NAK with calculated delay
	ActionTerm                         // Fatal error or max retries reached, terminate delivery
)

// determineAckNakAction decides the fate of a message from the processing
// result and delivery metadata. Retryable errors get a NAK with exponential
// delay until MaxDeliver; everything else terminates redelivery.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {
	if processingErr == nil {
		return ActionAck, 0
	}

	numDelivered := metadata.NumDelivered
	if numDelivered >= uint64(maxDeliver) || !apperrors.IsRetryable(processingErr) {
		return ActionTerm, 0
	}

	attempt := numDelivered // Current attempt number, starts at 1
	delay = nakBaseDelay
	if attempt > 1 {
		delay = nakBaseDelay * (1 << (attempt - 1))
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// Consumer subscribes to the entity-change stream and dispatches each
// message through the router. Delivery is load-balanced across replicas via
// the queue group.
type Consumer struct {
	client JetStreamClient
	router *Router
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	sub    *nats.Subscription
}

// NewConsumer creates a consumer over the entity-change stream.
func NewConsumer(client JetStreamClient, router *Router, cfg *config.Config) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithLogger(ctx, logger.Log.With(zap.String("component", "ingestion")))
	return &Consumer{
		client: client,
		router: router,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup ensures the stream and durable consumer exist.
func (c *Consumer) Setup() error {
	log := logger.FromContext(c.ctx)
	natsCfg := c.cfg.NATS
	log.Info("Setting up entity-change consumer",
		zap.String("stream", natsCfg.Stream),
		zap.String("consumer", natsCfg.Consumer))

	streamCfg := &nats.StreamConfig{
		Name:      natsCfg.Stream,
		Subjects:  natsCfg.SubjectList,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Duration(natsCfg.MaxAgeDays*24) * time.Hour,
	}
	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		return fmt.Errorf("failed to setup stream '%s': %w", natsCfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        natsCfg.Consumer,
		DeliverGroup:   natsCfg.QueueGroup,
		FilterSubjects: natsCfg.SubjectList,
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     natsCfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
	}
	if err := c.client.SetupConsumer(c.ctx, natsCfg.Stream, consumerCfg); err != nil {
		return fmt.Errorf("failed to setup consumer '%s' for stream '%s': %w", natsCfg.Consumer, natsCfg.Stream, err)
	}

	log.Info("Entity-change consumer setup complete")
	return nil
}

// Start subscribes to the stream.
func (c *Consumer) Start() error {
	log := logger.FromContext(c.ctx)
	natsCfg := c.cfg.NATS

	sub, err := c.client.SubscribePush("v1.entities.>", natsCfg.Consumer, natsCfg.QueueGroup, natsCfg.Stream, c.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe consumer '%s': %w", natsCfg.Consumer, err)
	}
	c.sub = sub
	log.Info("Entity-change consumer subscribed",
		zap.String("stream", natsCfg.Stream),
		zap.String("group", natsCfg.QueueGroup))
	return nil
}

// Stop drains the subscription and cancels the consumer context.
func (c *Consumer) Stop() {
	log := logger.FromContext(c.ctx)
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining subscription", zap.Error(err))
		}
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("Entity-change consumer stopped")
}

// handleMessage routes one delivered message and settles its fate.
func (c *Consumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()
	eventType, known := model.KnownEventType(msg.Subject)

	defer func() {
		observer.ObserveEventProcessingDuration(string(eventType), time.Since(startTime))
		if r := recover(); r != nil {
			log := logger.FromContext(c.ctx)
			log.Error("[panic] Recovered from panic in message handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.Stack("stack"))
			observer.IncEventsFailed(string(eventType))
			if nakErr := msg.Nak(); nakErr != nil {
				log.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	msgCtx := c.ctx
	log := logger.FromContext(msgCtx)

	if !known {
		log.Warn("Unknown event type, terminating delivery", zap.String("subject", msg.Subject))
		if termErr := msg.Term(); termErr != nil {
			log.Error("Failed to terminate message with unknown event type", zap.Error(termErr))
		}
		return
	}

	metadata, err := msg.Metadata()
	if err != nil {
		log.Error("Failed to read message metadata", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to NAK message", zap.Error(nakErr))
		}
		return
	}

	msgID := ""
	if msg.Header != nil {
		msgID = msg.Header.Get("Nats-Msg-Id")
	}
	if msgID == "" {
		msgID = fmt.Sprintf("msg-%d", metadata.Sequence.Stream)
	}

	internalMetadata := &model.MessageMetadata{
		StreamSequence:   metadata.Sequence.Stream,
		ConsumerSequence: metadata.Sequence.Consumer,
		NumDelivered:     metadata.NumDelivered,
		Timestamp:        metadata.Timestamp,
		Stream:           metadata.Stream,
		Consumer:         metadata.Consumer,
		MessageID:        msgID,
		MessageSubject:   msg.Subject,
	}

	observer.IncEventsReceived(string(eventType))
	msgCtx = logger.WithLogger(msgCtx, log.With(
		zap.String("nats_message_id", msgID),
		zap.Uint64("stream_sequence", metadata.Sequence.Stream),
		zap.String("subject", msg.Subject)))

	processingErr := c.router.Route(msgCtx, internalMetadata, msg.Data)
	log = logger.FromContext(msgCtx)

	action, nakDelay := determineAckNakAction(processingErr, metadata,
		c.cfg.NATS.MaxDeliver, c.cfg.NATS.NakBaseDelay, c.cfg.NATS.NakMaxDelay)

	switch action {
	case ActionAck:
		log.Info("Successfully processed message", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(string(eventType))
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		log.Info("NAKing message with delay for redelivery",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Duration("nak_delay", nakDelay))
		observer.IncEventsFailed(string(eventType))
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			log.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionTerm:
		reason := "fatal error"
		if metadata.NumDelivered >= uint64(c.cfg.NATS.MaxDeliver) {
			reason = "max delivery attempts reached"
		}
		log.Warn("Terminating message delivery: "+reason,
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.NATS.MaxDeliver))
		observer.IncEventsFailed(string(eventType))
		if termErr := msg.Term(); termErr != nil {
			log.Error("Failed to terminate message delivery", zap.Error(termErr))
		}
	}
}
