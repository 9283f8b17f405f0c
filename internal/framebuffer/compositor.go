package framebuffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/koios/eplayer/pkg/models"
	"go.uber.org/zap"
)

var (
	ErrNegativeOffset = errors.New("negative draw offset")
	ErrEmptySurface   = errors.New("empty or malformed surface")
	ErrOutOfBounds    = errors.New("draw offset outside the screen")
	ErrClosed         = errors.New("framebuffer closed")
)

// region is the memory backing a compositor and the way to release it
type region struct {
	mapFn   func() ([]byte, error)
	unmapFn func([]byte) error
	closeFn func() error
}

// Compositor writes pixel surfaces into framebuffer memory.
// The mapped memory never leaves the compositor's own locked methods.
type Compositor struct {
	path   string
	geom   Geometry
	logger *zap.Logger
	region region

	mu     sync.Mutex
	mem    []byte
	closed bool
}

func newCompositor(path string, geom Geometry, r region, logger *zap.Logger) (*Compositor, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("framebuffer %s: %w", path, err)
	}
	return &Compositor{
		path:   path,
		geom:   geom,
		logger: logger,
		region: r,
	}, nil
}

// NewMemory creates a compositor backed by ordinary memory instead of a device
func NewMemory(geom Geometry, logger *zap.Logger) (*Compositor, error) {
	return newCompositor("memory", geom, region{
		mapFn:   func() ([]byte, error) { return make([]byte, geom.Size()), nil },
		unmapFn: func([]byte) error { return nil },
		closeFn: func() error { return nil },
	}, logger)
}

// Geometry returns the screen geometry queried at open
func (c *Compositor) Geometry() Geometry {
	return c.geom
}

// Path returns the device path
func (c *Compositor) Path() string {
	return c.path
}

// Map maps the device memory now instead of on the first draw
func (c *Compositor) Map() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureMapped()
}

// ensureMapped must be called with mu held
func (c *Compositor) ensureMapped() error {
	if c.closed {
		return ErrClosed
	}
	if c.mem != nil {
		return nil
	}

	mem, err := c.region.mapFn()
	if err != nil {
		return fmt.Errorf("failed to map framebuffer %s: %w", c.path, err)
	}
	if len(mem) < c.geom.Size() {
		c.region.unmapFn(mem)
		return fmt.Errorf("framebuffer %s mapped %d bytes, need %d", c.path, len(mem), c.geom.Size())
	}

	c.mem = mem
	c.logger.Info("Framebuffer mapped",
		zap.String("device", c.path),
		zap.Int("bytes", len(mem)),
		zap.Stringer("geometry", c.geom))
	return nil
}

// Draw composites surface with its top-left corner at (offsetX, offsetY).
// The part of the surface outside the screen is clipped.
func (c *Compositor) Draw(surface *models.PixelSurface, offsetX, offsetY int) error {
	if offsetX < 0 || offsetY < 0 {
		return fmt.Errorf("%w: (%d, %d)", ErrNegativeOffset, offsetX, offsetY)
	}
	if err := surface.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmptySurface, err)
	}
	if offsetX >= c.geom.Width || offsetY >= c.geom.Height {
		return fmt.Errorf("%w: (%d, %d) on %dx%d", ErrOutOfBounds, offsetX, offsetY, c.geom.Width, c.geom.Height)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMapped(); err != nil {
		return err
	}

	drawWidth := min(surface.Width, c.geom.Width-offsetX)
	drawHeight := min(surface.Height, c.geom.Height-offsetY)

	for y := 0; y < drawHeight; y++ {
		for x := 0; x < drawWidth; x++ {
			writePixel(c.mem, c.geom, offsetX+x, offsetY+y, surface.ARGB(x, y))
		}
	}

	return nil
}

// Fill composites color (0xAARRGGBB) over every pixel of the screen
func (c *Compositor) Fill(color uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMapped(); err != nil {
		return err
	}

	for y := 0; y < c.geom.Height; y++ {
		for x := 0; x < c.geom.Width; x++ {
			writePixel(c.mem, c.geom, x, y, color)
		}
	}

	return nil
}

// Snapshot returns a copy of the visible framebuffer memory
func (c *Compositor) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMapped(); err != nil {
		return nil, err
	}

	out := make([]byte, c.geom.Size())
	copy(out, c.mem)
	return out, nil
}

// Close unmaps the memory and releases the device. It is safe to call more than once.
func (c *Compositor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.mem != nil {
		if err := c.region.unmapFn(c.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		c.mem = nil
	}
	if err := c.region.closeFn(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	c.logger.Info("Framebuffer released", zap.String("device", c.path))
	return errors.Join(errs...)
}
