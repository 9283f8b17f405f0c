package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koios/eplayer/pkg/models"
)

// FrameHandler receives every well-formed inbound command
type FrameHandler func(models.Frame)

// Consumer handles Redis pub/sub message consumption for device commands
type Consumer struct {
	client     *Client
	handler    FrameHandler
	onConnect  func()
	retryDelay time.Duration
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewConsumer creates a new Redis consumer. onConnect, if not nil, runs after
// every successful subscription.
func NewConsumer(client *Client, handler FrameHandler, onConnect func(), logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		client:     client,
		handler:    handler,
		onConnect:  onConnect,
		retryDelay: 5 * time.Second,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start consumes device commands until Stop, resubscribing after failures
func (c *Consumer) Start() error {
	c.logger.Info("Starting Redis consumer for device commands")

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Redis consumer stopped")
			return nil
		default:
			if err := c.consumeMessages(); err != nil {
				c.logger.Error("Error consuming messages, will retry",
					zap.Error(err),
					zap.Duration("retry_delay", c.retryDelay))

				select {
				case <-c.ctx.Done():
				case <-time.After(c.retryDelay):
				}
			}
		}
	}
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping Redis consumer")
	c.cancel()
}

// consumeMessages handles one subscription session
func (c *Consumer) consumeMessages() error {
	ps, err := c.client.subscribe(c.ctx)
	if err != nil {
		return err
	}
	defer ps.Close()

	if c.onConnect != nil {
		go c.onConnect()
	}

	ch := ps.Channel()
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			c.handleMessage(msg)
		}
	}
}

// handleMessage processes a single pub/sub message
func (c *Consumer) handleMessage(msg *redis.Message) {
	frame, ok := models.ParseFrame([]byte(msg.Payload))
	if !ok {
		c.logger.Warn("Dropping short message",
			zap.String("channel", msg.Channel),
			zap.Int("size", len(msg.Payload)))
		return
	}

	c.logger.Info("Command received",
		zap.String("code", frame.Code),
		zap.Stringer("command", frame.Command),
		zap.Int("body_size", len(frame.Body)))

	c.handler(frame)
}
