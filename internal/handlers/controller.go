package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/downloader"
	"github.com/koios/eplayer/internal/heartbeat"
	"github.com/koios/eplayer/pkg/models"
)

// Downloads is the part of the download manager the controller drives
type Downloads interface {
	Enqueue(media models.MediaDescriptor) error
	Results() <-chan downloader.Result
	Pending() int
}

// PlaylistStore persists playlists per device
type PlaylistStore interface {
	Save(raw []byte) (string, error)
	Load(device string) ([]models.MediaDescriptor, error)
}

// Status is a snapshot of the controller state
type Status struct {
	DeviceID         string              `json:"device_id"`
	Connected        bool                `json:"connected"`
	TaskID           string              `json:"task_id"`
	HeartbeatRunning bool                `json:"heartbeat_running"`
	HeartbeatSeconds int                 `json:"heartbeat_seconds"`
	Brightness       *int                `json:"brightness,omitempty"`
	ScreenOff        bool                `json:"screen_off"`
	Completed        int                 `json:"completed"`
	Failed           int                 `json:"failed"`
	Pending          int                 `json:"pending"`
	Display          DisplayStatus       `json:"display"`
	LastConfig       *models.ConfigFrame `json:"last_config,omitempty"`
}

// Controller turns inbound commands into downloads, draws and heartbeats
type Controller struct {
	display   *Display
	downloads Downloads
	store     PlaylistStore
	state     *heartbeat.State
	logger    *zap.Logger

	mu            sync.Mutex
	publisher     heartbeat.Publisher
	heartbeatKind string
	daemon        *heartbeat.Daemon
	registration  *models.Registration
	brightness    *int
	screenOff     bool
	lastConfig    *models.ConfigFrame
	completed     int
	failed        int
}

// NewController creates a controller. A publisher must be set before
// heartbeats can run.
func NewController(display *Display, downloads Downloads, store PlaylistStore, state *heartbeat.State, logger *zap.Logger) *Controller {
	return &Controller{
		display:   display,
		downloads: downloads,
		store:     store,
		state:     state,
		logger:    logger,
	}
}

// SetPublisher sets the transport used for heartbeats and registration
func (c *Controller) SetPublisher(publisher heartbeat.Publisher, heartbeatKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publisher = publisher
	c.heartbeatKind = heartbeatKind
}

// SetRegistration sets the device details sent by Greet
func (c *Controller) SetRegistration(reg models.Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registration = &reg
}

// HandleFrame applies one inbound command. Malformed frames are logged and ignored.
func (c *Controller) HandleFrame(frame models.Frame) {
	switch frame.Command {
	case models.CommandHeartbeatAck:
		if frame.Body == "" {
			return
		}
		c.state.SetTaskID(frame.Body)
		c.logger.Debug("Heartbeat acknowledged", zap.String("task_id", frame.Body))

	case models.CommandPlaylistUpdate:
		c.logger.Info("Playlist received, start caching")
		device, err := c.store.Save([]byte(frame.Body))
		if err != nil {
			c.logger.Error("Failed to save playlist", zap.Error(err))
			return
		}
		if err := c.Refresh(device); err != nil {
			c.logger.Error("Failed to refresh playlist", zap.String("device", device), zap.Error(err))
		}

	case models.CommandBrightness:
		c.logger.Info("Brightness requested", zap.String("value", frame.Body))
		c.mu.Lock()
		var v int
		if _, err := fmt.Sscanf(frame.Body, "%d", &v); err == nil {
			c.brightness = &v
		}
		c.mu.Unlock()

	case models.CommandScreenOff:
		c.logger.Info("Screen off requested")
		c.mu.Lock()
		c.screenOff = true
		c.mu.Unlock()

	case models.CommandConfig:
		cfg, err := models.ParseConfigFrame(frame.Body)
		if err != nil {
			c.logger.Warn("Ignoring invalid config frame", zap.String("body", frame.Body), zap.Error(err))
			return
		}
		c.applyConfig(cfg)

	default:
		c.logger.Debug("Ignoring unknown command", zap.String("code", frame.Code))
	}
}

// Refresh enqueues every item of the stored playlist of device. For the
// local device the previous playlist's items are released first.
func (c *Controller) Refresh(device string) error {
	items, err := c.store.Load(device)
	if err != nil {
		return err
	}

	c.logger.Info("Refreshing playlist", zap.String("device", device), zap.Int("items", len(items)))

	if device == c.display.DeviceID() {
		c.display.Clear()
	}

	for _, item := range items {
		if err := c.downloads.Enqueue(item); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", item.ID, err)
		}
	}
	return nil
}

// Run handles download results until the results channel closes or ctx is done
func (c *Controller) Run(ctx context.Context) {
	results := c.downloads.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-results:
			if !ok {
				return
			}
			c.handleResult(r)
		}
	}
}

func (c *Controller) handleResult(r downloader.Result) {
	if !r.Success() {
		c.mu.Lock()
		c.failed++
		c.mu.Unlock()
		c.logger.Error("Download failed",
			zap.String("media_id", r.Media.ID),
			zap.String("file", r.Media.FileName),
			zap.String("path", r.LocalPath),
			zap.Int("attempts", r.Attempts),
			zap.Error(r.Err))
		return
	}

	c.mu.Lock()
	c.completed++
	c.mu.Unlock()

	if r.Media.DeviceID != c.display.DeviceID() {
		return
	}
	if err := c.display.Add(r.Media, r.LocalPath); err != nil {
		c.logger.Error("Failed to show media",
			zap.String("media_id", r.Media.ID),
			zap.String("path", r.LocalPath),
			zap.Error(err))
	}
}

func (c *Controller) applyConfig(cfg *models.ConfigFrame) {
	c.state.SetInterval(time.Duration(cfg.HeartbeatSeconds) * time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastConfig = cfg
	b := cfg.Brightness
	c.brightness = &b

	c.logger.Info("Config received",
		zap.Int("brightness", cfg.Brightness),
		zap.Int64("server_time", cfg.ServerTime),
		zap.Int("heartbeat_seconds", cfg.HeartbeatSeconds),
		zap.Duration("interval", c.state.Interval()))

	// the old daemon is fully stopped before the new one starts
	if c.daemon != nil {
		c.daemon.Stop()
		c.daemon = nil
	}
	if c.publisher == nil {
		c.logger.Error("No transport configured, cannot start heartbeat")
		return
	}
	c.daemon = heartbeat.NewDaemon(c.state, c.publisher, c.heartbeatKind, c.logger)
	c.daemon.Start()
}

// Greet announces the device and asks for its configuration. It runs after
// every transport (re)connect.
func (c *Controller) Greet() {
	c.mu.Lock()
	pub := c.publisher
	reg := c.registration
	c.mu.Unlock()

	if pub == nil {
		return
	}

	if reg != nil {
		body, err := json.Marshal(reg)
		if err != nil {
			c.logger.Error("Failed to encode registration", zap.Error(err))
		} else if err := pub.Publish(models.OutboundRegister, string(body)); err != nil {
			c.logger.Error("Failed to register device", zap.Error(err))
		} else {
			c.logger.Info("Device registered", zap.String("mac", reg.MAC))
		}
	}

	if err := pub.Publish(models.OutboundGetConfig, ""); err != nil {
		c.logger.Error("Failed to request config", zap.Error(err))
	}
}

// Stop stops the heartbeat
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.daemon != nil {
		c.daemon.Stop()
		c.daemon = nil
	}
}

// Status returns a snapshot for the status API
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		DeviceID:   c.display.DeviceID(),
		TaskID:     c.state.TaskID(),
		ScreenOff:  c.screenOff,
		Completed:  c.completed,
		Failed:     c.failed,
		LastConfig: c.lastConfig,
	}
	if c.brightness != nil {
		b := *c.brightness
		s.Brightness = &b
	}
	if c.daemon != nil {
		s.HeartbeatRunning = c.daemon.Running()
	}
	pub := c.publisher
	c.mu.Unlock()

	s.HeartbeatSeconds = int(c.state.Interval() / time.Second)
	if pub != nil {
		s.Connected = pub.IsConnected()
	}
	s.Pending = c.downloads.Pending()
	s.Display = c.display.Status()
	return s
}
