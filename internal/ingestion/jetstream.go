// Package ingestion consumes entity-change notifications from JetStream and
// feeds them into the mutation pipelines.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

// JetStreamClient is the subset of JetStream functionality the consumer
// needs. Kept narrow so tests can stub it.
type JetStreamClient interface {
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)
	NatsConn() *nats.Conn
	Close()
}

// Client wraps a NATS connection with a JetStream context.
type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

var _ JetStreamClient = (*Client)(nil)

// NewClient connects to NATS and opens a JetStream context. The connection
// reconnects indefinitely.
func NewClient(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to NATS: %w", apperrors.ErrNATS, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: failed to create JetStream context: %w", apperrors.ErrNATS, err)
	}

	return &Client{nc: nc, js: js}, nil
}

// SetupStream ensures the stream exists with the given configuration.
func (c *Client) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx)

	stream, err := c.js.StreamInfo(streamConfig.Name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("%w: failed to get stream info for '%s': %w", apperrors.ErrNATS, streamConfig.Name, err)
	}

	if stream == nil {
		if _, err = c.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("%w: failed to add stream '%s': %w", apperrors.ErrNATS, streamConfig.Name, err)
		}
		log.Info("Created stream",
			zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects))
	}
	return nil
}

// SetupConsumer ensures the durable consumer exists on the stream.
func (c *Client) SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error {
	log := logger.FromContext(ctx).With(
		zap.String("stream", streamName),
		zap.String("consumer", consumerConfig.Durable))

	consumer, err := c.js.ConsumerInfo(streamName, consumerConfig.Durable)
	if err != nil && !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("%w: failed to get consumer info for stream '%s', consumer '%s': %w", apperrors.ErrNATS, streamName, consumerConfig.Durable, err)
	}

	if consumer == nil {
		if _, err = c.js.AddConsumer(streamName, consumerConfig); err != nil {
			return fmt.Errorf("%w: failed to add consumer '%s' to stream '%s': %w", apperrors.ErrNATS, consumerConfig.Durable, streamName, err)
		}
		log.Info("Created consumer",
			zap.String("queue_group", consumerConfig.DeliverGroup),
			zap.Any("filter_subjects", consumerConfig.FilterSubjects))
	}
	return nil
}

// SubscribePush creates a push-based queue subscription bound to the stream.
func (c *Client) SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.js.QueueSubscribe(
		subject,
		group,
		handler,
		nats.Durable(consumer),
		nats.ManualAck(),
		nats.BindStream(stream),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to subscribe: %w", apperrors.ErrNATS, err)
	}
	return sub, nil
}

// NatsConn returns the underlying *nats.Conn.
func (c *Client) NatsConn() *nats.Conn {
	return c.nc
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
