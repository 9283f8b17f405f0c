package models

import "fmt"

// PixelSurface is a decoded image in canonical RGB or RGBA byte order, row-major
type PixelSurface struct {
	Width    int
	Height   int
	Channels int
	Pixels   []byte
}

// NewPixelSurface allocates a zeroed surface
func NewPixelSurface(width, height, channels int) *PixelSurface {
	return &PixelSurface{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pixels:   make([]byte, width*height*channels),
	}
}

// Validate checks that the surface dimensions match its buffer
func (s *PixelSurface) Validate() error {
	if s == nil {
		return fmt.Errorf("surface is nil")
	}
	if s.Channels != 3 && s.Channels != 4 {
		return fmt.Errorf("unsupported channel count: %d", s.Channels)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("surface is empty: %dx%d", s.Width, s.Height)
	}
	if len(s.Pixels) < s.Width*s.Height*s.Channels {
		return fmt.Errorf("surface buffer too short: have %d bytes, need %d",
			len(s.Pixels), s.Width*s.Height*s.Channels)
	}
	return nil
}

// ARGB returns the pixel at (x, y) packed as 0xAARRGGBB.
// Three-channel surfaces are treated as opaque.
func (s *PixelSurface) ARGB(x, y int) uint32 {
	i := (y*s.Width + x) * s.Channels
	r := uint32(s.Pixels[i])
	g := uint32(s.Pixels[i+1])
	b := uint32(s.Pixels[i+2])
	a := uint32(0xFF)
	if s.Channels == 4 {
		a = uint32(s.Pixels[i+3])
	}
	return a<<24 | r<<16 | g<<8 | b
}
