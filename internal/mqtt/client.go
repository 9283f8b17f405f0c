package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/config"
	"github.com/koios/eplayer/pkg/models"
)

// TopicPrefix is prepended to every outbound command name
const TopicPrefix = "lcd/"

var ErrNotConnected = errors.New("mqtt not connected")

// FrameHandler receives every well-formed inbound command
type FrameHandler func(models.Frame)

// Client is the MQTT command transport. It subscribes to the topic named
// after the client id and publishes commands under lcd/<command>.
type Client struct {
	cfg      config.MQTTConfig
	clientID string
	handler  FrameHandler
	logger   *zap.Logger
	client   paho.Client

	// frames decouples the paho router from command handling
	frames   chan models.Frame
	dispatch sync.WaitGroup
	closed   sync.Once

	mu        sync.RWMutex
	onConnect func()
	stopped   bool
}

// NewClient creates a client. Nothing is sent until Connect.
func NewClient(cfg config.MQTTConfig, clientID string, handler FrameHandler, logger *zap.Logger) *Client {
	c := &Client{
		cfg:      cfg,
		clientID: clientID,
		handler:  handler,
		logger:   logger,
		frames:   make(chan models.Frame, 64),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(20 * time.Second)
	opts.SetCleanSession(true)
	opts.SetProtocolVersion(4)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect",
			zap.String("broker", cfg.Broker),
			zap.Error(err))
	})

	c.client = paho.NewClient(opts)

	c.dispatch.Add(1)
	go c.dispatchFrames()

	return c
}

// BrokerURL turns host:port into a tcp:// URL. URLs with a scheme are kept.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// OnConnect sets a function run after every successful (re)connect and
// subscription. It runs on its own goroutine and may publish.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// Connect starts connecting. If the broker is unreachable within timeout the
// client keeps retrying in the background and Connect returns nil.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) error {
	c.logger.Info("Connecting to MQTT broker",
		zap.String("broker", c.cfg.Broker),
		zap.String("client_id", c.clientID))

	token := c.client.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(timeout):
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			zap.String("broker", c.cfg.Broker),
			zap.Duration("waited", timeout))
		return nil
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends message under lcd/<command>
func (c *Client) Publish(command string, message string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := TopicPrefix + command
	payload := models.EncodeOutbound(c.clientID, message)

	token := c.client.Publish(topic, byte(c.cfg.QoS), false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	c.logger.Debug("Published command",
		zap.String("topic", topic),
		zap.Int("size", len(payload)))
	return nil
}

// Close disconnects from the broker and waits for queued commands to be handled
func (c *Client) Close() error {
	c.closed.Do(func() {
		// also stops a connect or reconnect still retrying in the background
		c.client.Disconnect(250)
		c.logger.Info("MQTT disconnected")
		c.mu.Lock()
		c.stopped = true
		close(c.frames)
		c.mu.Unlock()
		c.dispatch.Wait()
	})
	return nil
}

func (c *Client) dispatchFrames() {
	defer c.dispatch.Done()
	for frame := range c.frames {
		c.handler(frame)
	}
}

func (c *Client) handleConnect(client paho.Client) {
	c.logger.Info("MQTT connection established",
		zap.String("broker", c.cfg.Broker),
		zap.String("client_id", c.clientID))

	token := client.Subscribe(c.clientID, byte(c.cfg.QoS), c.handleMessage)
	go func() {
		if !token.WaitTimeout(10 * time.Second) {
			c.logger.Error("MQTT subscription timed out", zap.String("topic", c.clientID))
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error("MQTT subscription failed", zap.String("topic", c.clientID), zap.Error(err))
			return
		}
		c.logger.Info("Subscribed to command topic", zap.String("topic", c.clientID))

		c.mu.RLock()
		fn := c.onConnect
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}()
}

func (c *Client) handleMessage(_ paho.Client, msg paho.Message) {
	frame, ok := models.ParseFrame(msg.Payload())
	if !ok {
		c.logger.Warn("Dropping short message",
			zap.String("topic", msg.Topic()),
			zap.Int("size", len(msg.Payload())))
		return
	}

	c.logger.Info("Command received",
		zap.String("code", frame.Code),
		zap.Stringer("command", frame.Command),
		zap.Int("body_size", len(frame.Body)))

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.stopped {
		c.frames <- frame
	}
}
