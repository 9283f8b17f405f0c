package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/config"
	"github.com/koios/eplayer/pkg/models"
)

// ErrNotConnected is returned by Publish when the server cannot be reached
var ErrNotConnected = errors.New("redis not connected")

// Client wraps the Redis client for pub/sub operations
type Client struct {
	client     *redis.Client
	config     config.RedisConfig
	clientID   string
	clientName string
	logger     *zap.Logger
	ctx        context.Context
}

// CommandChannel is the channel a device receives its commands on
func CommandChannel(clientID string) string {
	return fmt.Sprintf("device:%s", clientID)
}

// OutboundChannel is the channel an outbound command is published to
func OutboundChannel(command string) string {
	return fmt.Sprintf("lcd:%s", command)
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, clientID string, logger *zap.Logger) (*Client, error) {
	clientName := fmt.Sprintf("eplayer-%s-%s", clientID, uuid.NewString()[:8])

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   clientName,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		PoolTimeout:  30 * time.Second,
	})

	ctx := context.Background()

	// Test the connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", cfg.Addr),
		zap.String("client_name", clientName))

	return &Client{
		client:     rdb,
		config:     cfg,
		clientID:   clientID,
		clientName: clientName,
		logger:     logger,
		ctx:        ctx,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish sends message on lcd:<command>
func (c *Client) Publish(command string, message string) error {
	channel := OutboundChannel(command)
	payload := models.EncodeOutbound(c.clientID, message)

	ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
	defer cancel()

	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		var netErr net.Error
		if errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
			return fmt.Errorf("%w: publish to %s: %v", ErrNotConnected, channel, err)
		}
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}

	c.logger.Debug("Published command",
		zap.String("channel", channel),
		zap.Int("size", len(payload)))

	return nil
}

// IsConnected checks if Redis connection is healthy
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(c.ctx, time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// subscribe opens a subscription on the device command channel and waits
// for the server to confirm it
func (c *Client) subscribe(ctx context.Context) (*redis.PubSub, error) {
	channel := CommandChannel(c.clientID)
	ps := c.client.Subscribe(ctx, channel)

	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.logger.Info("Subscribed to command channel", zap.String("channel", channel))
	return ps, nil
}
