package framebuffer

import "fmt"

// Geometry describes the resolution and pixel encoding of a framebuffer.
// It is read once when the device is opened and never changes afterwards.
type Geometry struct {
	Width        int `json:"width"`
	Height       int `json:"height"`
	BitsPerPixel int `json:"bits_per_pixel"`
	RedOffset    int `json:"red_offset"`
	GreenOffset  int `json:"green_offset"`
	BlueOffset   int `json:"blue_offset"`
	AlphaOffset  int `json:"alpha_offset"`
	Stride       int `json:"stride"` // bytes per row
}

// BytesPerPixel returns the size of one pixel in memory
func (g Geometry) BytesPerPixel() int {
	return g.BitsPerPixel / 8
}

// RowStride returns Stride, or the packed row size when the device reports none
func (g Geometry) RowStride() int {
	if g.Stride > 0 {
		return g.Stride
	}
	return g.Width * g.BytesPerPixel()
}

// Size returns the number of bytes covering the visible area
func (g Geometry) Size() int {
	return g.RowStride() * g.Height
}

// Validate checks that the geometry can address any memory at all
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid resolution %dx%d", g.Width, g.Height)
	}
	if g.BitsPerPixel < 16 {
		return fmt.Errorf("unsupported bits per pixel: %d", g.BitsPerPixel)
	}
	if g.BitsPerPixel == 32 {
		for _, off := range []int{g.RedOffset, g.GreenOffset, g.BlueOffset, g.AlphaOffset} {
			if off < 0 || off > 24 {
				return fmt.Errorf("invalid channel offset %d for 32 bpp", off)
			}
		}
	}
	if g.RowStride() < g.Width*g.BytesPerPixel() {
		return fmt.Errorf("stride %d smaller than row of %d pixels", g.RowStride(), g.Width)
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d@%dbpp stride=%d r=%d g=%d b=%d a=%d",
		g.Width, g.Height, g.BitsPerPixel, g.RowStride(),
		g.RedOffset, g.GreenOffset, g.BlueOffset, g.AlphaOffset)
}

// Common layouts, also used by the in-memory compositor
var (
	RGB565   = Geometry{BitsPerPixel: 16, RedOffset: 11, GreenOffset: 5, BlueOffset: 0}
	RGB888   = Geometry{BitsPerPixel: 24, RedOffset: 16, GreenOffset: 8, BlueOffset: 0}
	BGR888   = Geometry{BitsPerPixel: 24, RedOffset: 0, GreenOffset: 8, BlueOffset: 16}
	ARGB8888 = Geometry{BitsPerPixel: 32, RedOffset: 16, GreenOffset: 8, BlueOffset: 0, AlphaOffset: 24}
	RGBA8888 = Geometry{BitsPerPixel: 32, RedOffset: 24, GreenOffset: 16, BlueOffset: 8, AlphaOffset: 0}
	XRGB8888 = Geometry{BitsPerPixel: 32, RedOffset: 16, GreenOffset: 8, BlueOffset: 0, AlphaOffset: 0}
)

// WithSize returns a copy of the layout with the given resolution
func (g Geometry) WithSize(width, height int) Geometry {
	g.Width = width
	g.Height = height
	g.Stride = 0
	return g
}
