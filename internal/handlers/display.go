package handlers

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/surface"
	"github.com/koios/eplayer/pkg/models"
)

// Canvas is the drawing surface of the local screen
type Canvas interface {
	Draw(s *models.PixelSurface, offsetX, offsetY int) error
	Fill(color uint32) error
}

// Decoder turns a downloaded image into pixels sized for its placement
type Decoder interface {
	DecodeFile(path string, rect models.Rect) (*models.PixelSurface, error)
}

// VideoSink plays videos outside the framebuffer
type VideoSink interface {
	Enqueue(path string, rect models.Rect)
	Clear()
}

type slot struct {
	path  string
	media models.MediaDescriptor
}

// SlotStatus describes what a slot currently shows
type SlotStatus struct {
	Path    string `json:"path,omitempty"`
	MediaID string `json:"media_id,omitempty"`
}

// DisplayStatus is a snapshot of the display state
type DisplayStatus struct {
	DeviceID   string     `json:"device_id"`
	Background SlotStatus `json:"background"`
	Overlay    SlotStatus `json:"overlay"`
	Held       int        `json:"held"`
	Draws      int        `json:"draws"`
}

// Display owns the local screen. Every draw goes through its lock, so draws
// triggered from different goroutines never interleave.
type Display struct {
	deviceID string
	canvas   Canvas
	decoder  Decoder
	video    VideoSink
	logger   *zap.Logger

	mu         sync.Mutex
	background slot
	overlay    slot
	held       []models.MediaDescriptor
	draws      int
}

// NewDisplay creates a display for deviceID. video may be nil.
func NewDisplay(deviceID string, canvas Canvas, decoder Decoder, video VideoSink, logger *zap.Logger) *Display {
	return &Display{
		deviceID: deviceID,
		canvas:   canvas,
		decoder:  decoder,
		video:    video,
		logger:   logger,
	}
}

// DeviceID returns the id of the display this process owns
func (d *Display) DeviceID() string {
	return d.deviceID
}

// Add shows a downloaded media item. Background images go to the background
// slot, overlay and price images to the overlay slot, videos to the video sink.
func (d *Display) Add(media models.MediaDescriptor, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.held = append(d.held, media)

	switch {
	case media.Kind == models.MediaVideo:
		if d.video == nil {
			d.logger.Warn("No video player, skipping video",
				zap.String("media_id", media.ID),
				zap.String("path", path))
			return nil
		}
		d.video.Enqueue(path, media.Rect)
		return nil

	case media.IsBackground():
		if path == d.background.path {
			d.logger.Debug("Background unchanged, redraw suppressed", zap.String("path", path))
			return nil
		}
		if err := d.drawLocked(media, path); err != nil {
			return err
		}
		d.background = slot{path: path, media: media}

		// the background may have covered the overlay
		if d.overlay.path != "" {
			if err := d.drawLocked(d.overlay.media, d.overlay.path); err != nil {
				return fmt.Errorf("failed to restore overlay: %w", err)
			}
		}
		return nil

	case media.IsOverlay():
		if path == d.overlay.path {
			d.logger.Debug("Overlay unchanged, redraw suppressed", zap.String("path", path))
			return nil
		}
		if err := d.drawLocked(media, path); err != nil {
			return err
		}
		d.overlay = slot{path: path, media: media}
		return nil

	default:
		d.logger.Info("Drawing image outside the tracked slots",
			zap.String("media_id", media.ID),
			zap.Int("group", media.Group))
		return d.drawLocked(media, path)
	}
}

// Clear forgets the items of the previous playlist and stops its videos.
// Slot state is kept so an unchanged background is not redrawn.
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.held = nil
	if d.video != nil {
		d.video.Clear()
	}
}

// ShowInfo draws the identification screen over the whole display
func (d *Display) ShowInfo(screen surface.InfoScreen) error {
	s, err := screen.Render()
	if err != nil {
		return fmt.Errorf("failed to render info screen: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.canvas.Draw(s, 0, 0); err != nil {
		return fmt.Errorf("failed to draw info screen: %w", err)
	}
	d.draws++

	// the info screen replaced whatever the slots showed
	d.background = slot{}
	d.overlay = slot{}
	return nil
}

// Fill paints the whole screen with color (0xAARRGGBB)
func (d *Display) Fill(color uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.canvas.Fill(color); err != nil {
		return err
	}
	d.draws++
	d.background = slot{}
	d.overlay = slot{}
	return nil
}

// Status returns a snapshot of the slots
func (d *Display) Status() DisplayStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DisplayStatus{
		DeviceID:   d.deviceID,
		Background: SlotStatus{Path: d.background.path, MediaID: d.background.media.ID},
		Overlay:    SlotStatus{Path: d.overlay.path, MediaID: d.overlay.media.ID},
		Held:       len(d.held),
		Draws:      d.draws,
	}
}

// drawLocked must be called with mu held
func (d *Display) drawLocked(media models.MediaDescriptor, path string) error {
	s, err := d.decoder.DecodeFile(path, media.Rect)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", media.ID, err)
	}
	if err := d.canvas.Draw(s, media.Left, media.Top); err != nil {
		return fmt.Errorf("failed to draw %s: %w", media.ID, err)
	}
	d.draws++

	d.logger.Info("Media drawn",
		zap.String("media_id", media.ID),
		zap.String("path", path),
		zap.Int("group", media.Group),
		zap.Int("x", media.Left),
		zap.Int("y", media.Top))
	return nil
}
