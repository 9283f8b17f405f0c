package framebuffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/koios/eplayer/pkg/models"
	"go.uber.org/zap"
)

var allLayouts = map[string]Geometry{
	"rgb565":   RGB565,
	"rgb888":   RGB888,
	"bgr888":   BGR888,
	"argb8888": ARGB8888,
	"rgba8888": RGBA8888,
	"xrgb8888": XRGB8888,
}

func randomMemory(g Geometry, seed int64) []byte {
	mem := make([]byte, g.Size())
	rand.New(rand.NewSource(seed)).Read(mem)
	return mem
}

func newTestCompositor(t *testing.T, g Geometry) *Compositor {
	t.Helper()
	c, err := NewMemory(g, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAlphaZeroLeavesDestinationUnchanged(t *testing.T) {
	for name, layout := range allLayouts {
		t.Run(name, func(t *testing.T) {
			g := layout.WithSize(4, 3)
			mem := randomMemory(g, 7)
			before := append([]byte(nil), mem...)

			for y := 0; y < g.Height; y++ {
				for x := 0; x < g.Width; x++ {
					writePixel(mem, g, x, y, 0x00000000)
					writePixel(mem, g, x, y, 0x00FFFFFF)
				}
			}

			if !bytes.Equal(mem, before) {
				t.Error("alpha 0 modified the destination")
			}
		})
	}
}

func TestOpaqueWriteMatchesDirectStore(t *testing.T) {
	for name, layout := range allLayouts {
		t.Run(name, func(t *testing.T) {
			g := layout.WithSize(2, 2)
			blended := randomMemory(g, 3)
			direct := append([]byte(nil), blended...)

			writePixel(blended, g, 1, 1, 0xFF3C5A78)
			storeRGB(direct[g.offset(1, 1):], g, 0x3C, 0x5A, 0x78, 0xFF)

			if !bytes.Equal(blended, direct) {
				t.Errorf("alpha 255 write differs from direct store:\n got %x\nwant %x", blended, direct)
			}
		})
	}
}

func TestHalfAlphaRedOnBlack(t *testing.T) {
	g := ARGB8888.WithSize(1, 1)
	mem := make([]byte, g.Size())

	writePixel(mem, g, 0, 0, 0xFF000000)
	writePixel(mem, g, 0, 0, 0x80FF0000)

	v := binary.LittleEndian.Uint32(mem)
	red := (v >> 16) & 0xFF
	if red < 126 || red > 128 {
		t.Errorf("red = %d, want ~127", red)
	}
	if green, blue := (v>>8)&0xFF, v&0xFF; green != 0 || blue != 0 {
		t.Errorf("green/blue = %d/%d, want 0/0", green, blue)
	}
	if alpha := v >> 24; alpha != 0xFF {
		t.Errorf("alpha = %#x, want destination alpha 0xff", alpha)
	}
}

func TestBlendAllLayouts(t *testing.T) {
	for name, layout := range allLayouts {
		t.Run(name, func(t *testing.T) {
			g := layout.WithSize(1, 1)
			mem := make([]byte, g.Size())

			writePixel(mem, g, 0, 0, 0xFFFFFFFF)
			writePixel(mem, g, 0, 0, 0x80000000)

			r, gr, b, _ := readRGB(mem, g)
			for _, c := range []uint32{r, gr, b} {
				// 16-bit truncation loses up to 8 levels per channel
				if c < 119 || c > 128 {
					t.Errorf("channel = %d, want ~127 (r=%d g=%d b=%d)", c, r, gr, b)
				}
			}
		})
	}
}

func TestPixelEncodings(t *testing.T) {
	tests := []struct {
		name   string
		layout Geometry
		pixel  uint32
		want   []byte
	}{
		{"rgb565 red", RGB565, 0xFFFF0000, []byte{0x00, 0xF8}},
		{"rgb565 green", RGB565, 0xFF00FF00, []byte{0xE0, 0x07}},
		{"rgb565 blue", RGB565, 0xFF0000FF, []byte{0x1F, 0x00}},
		{"rgb888", RGB888, 0xFF112233, []byte{0x33, 0x22, 0x11}},
		{"bgr888", BGR888, 0xFF112233, []byte{0x11, 0x22, 0x33}},
		{"argb8888", ARGB8888, 0xFF112233, []byte{0x33, 0x22, 0x11, 0xFF}},
		{"rgba8888", RGBA8888, 0xFF112233, []byte{0xFF, 0x33, 0x22, 0x11}},
		{"xrgb8888", XRGB8888, 0xFF112233, []byte{0x33, 0x22, 0x11, 0x00}},
		{"xrgb8888 red", XRGB8888, 0xFFFF0000, []byte{0x00, 0x00, 0xFF, 0x00}},
		{"xbgr8888", Geometry{BitsPerPixel: 32, RedOffset: 0, GreenOffset: 8, BlueOffset: 16}, 0xFF112233, []byte{0x11, 0x22, 0x33, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.layout.WithSize(1, 1)
			mem := make([]byte, g.Size())
			writePixel(mem, g, 0, 0, tt.pixel)
			if !bytes.Equal(mem, tt.want) {
				t.Errorf("bytes = %x, want %x", mem, tt.want)
			}
		})
	}
}

func TestUnsupportedDepthWritesSentinel(t *testing.T) {
	g := Geometry{Width: 3, Height: 1, BitsPerPixel: 48}
	mem := make([]byte, g.Size())

	writePixel(mem, g, 1, 0, 0xFF123456)

	if got := binary.LittleEndian.Uint16(mem[6:]); got != errorPixel {
		t.Errorf("sentinel = %#04x, want %#04x", got, errorPixel)
	}
	for i, b := range mem {
		if (i < 6 || i > 7) && b != 0 {
			t.Errorf("byte %d outside the pixel changed to %#x", i, b)
		}
	}
}

func TestNarrowDepthLeavesNeighbours(t *testing.T) {
	g := Geometry{Width: 4, Height: 1, BitsPerPixel: 8}
	mem := make([]byte, g.Size())

	writePixel(mem, g, 1, 0, 0xFF123456)

	if !bytes.Equal(mem, make([]byte, 4)) {
		t.Errorf("8 bpp write changed memory: %x", mem)
	}
}

func TestXRGBBlendReadsColorChannels(t *testing.T) {
	g := XRGB8888.WithSize(1, 1)
	mem := make([]byte, g.Size())

	writePixel(mem, g, 0, 0, 0xFF0000FF)
	writePixel(mem, g, 0, 0, 0x80FF0000)

	r, gr, b, a := readRGB(mem, g)
	if r < 126 || r > 128 || b < 126 || b > 128 || gr != 0 {
		t.Errorf("rgb = %d/%d/%d, want ~127/0/~127", r, gr, b)
	}
	if a != 0xFF {
		t.Errorf("alpha = %#x, want 0xff for a layout without alpha", a)
	}
	if mem[3] != 0 {
		t.Errorf("unused byte = %#x, want 0", mem[3])
	}
}

func TestWritePixelClips(t *testing.T) {
	g := ARGB8888.WithSize(2, 2)
	mem := make([]byte, g.Size())

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		writePixel(mem, g, p[0], p[1], 0xFFFFFFFF)
	}
	if !bytes.Equal(mem, make([]byte, g.Size())) {
		t.Error("out-of-bounds write touched memory")
	}
}

func TestStrideIsRespected(t *testing.T) {
	g := RGB888.WithSize(2, 2)
	g.Stride = 8 // two padding bytes per row
	mem := make([]byte, g.Size())

	writePixel(mem, g, 0, 1, 0xFFAABBCC)

	if !bytes.Equal(mem[8:11], []byte{0xCC, 0xBB, 0xAA}) {
		t.Errorf("row 1 = %x", mem[8:11])
	}
	if mem[6] != 0 || mem[7] != 0 {
		t.Error("padding bytes were written")
	}
}

func TestDrawClipsToScreen(t *testing.T) {
	c := newTestCompositor(t, ARGB8888.WithSize(4, 4))

	surface := models.NewPixelSurface(3, 3, 3)
	for i := range surface.Pixels {
		surface.Pixels[i] = 0xFF
	}

	if err := c.Draw(surface, 2, 2); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	mem, _ := c.Snapshot()
	g := c.Geometry()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := binary.LittleEndian.Uint32(mem[g.offset(x, y):])
			inside := x >= 2 && y >= 2
			if inside && v != 0xFFFFFFFF {
				t.Errorf("(%d,%d) = %#08x, want white", x, y, v)
			}
			if !inside && v != 0 {
				t.Errorf("(%d,%d) = %#08x, want untouched", x, y, v)
			}
		}
	}
}

func TestDrawRGBASurfaceBlends(t *testing.T) {
	c := newTestCompositor(t, RGB888.WithSize(2, 1))
	if err := c.Fill(0xFF000000); err != nil {
		t.Fatal(err)
	}

	surface := &models.PixelSurface{Width: 2, Height: 1, Channels: 4, Pixels: []byte{
		0xFF, 0x00, 0x00, 0x00, // transparent
		0x00, 0xFF, 0x00, 0xFF, // opaque green
	}}
	if err := c.Draw(surface, 0, 0); err != nil {
		t.Fatal(err)
	}

	mem, _ := c.Snapshot()
	if !bytes.Equal(mem, []byte{0, 0, 0, 0x00, 0xFF, 0x00}) {
		t.Errorf("memory = %x", mem)
	}
}

func TestDrawRejectsInvalidInput(t *testing.T) {
	c := newTestCompositor(t, ARGB8888.WithSize(4, 4))
	valid := models.NewPixelSurface(1, 1, 4)

	tests := []struct {
		name    string
		surface *models.PixelSurface
		x, y    int
		want    error
	}{
		{"negative x", valid, -1, 0, ErrNegativeOffset},
		{"negative y", valid, 0, -5, ErrNegativeOffset},
		{"nil surface", nil, 0, 0, ErrEmptySurface},
		{"empty surface", &models.PixelSurface{Channels: 4}, 0, 0, ErrEmptySurface},
		{"short buffer", &models.PixelSurface{Width: 2, Height: 2, Channels: 3, Pixels: []byte{1}}, 0, 0, ErrEmptySurface},
		{"offset beyond width", valid, 4, 0, ErrOutOfBounds},
		{"offset beyond height", valid, 0, 4, ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Draw(tt.surface, tt.x, tt.y); !errors.Is(err, tt.want) {
				t.Errorf("Draw = %v, want %v", err, tt.want)
			}
		})
	}

	mem, _ := c.Snapshot()
	if !bytes.Equal(mem, make([]byte, len(mem))) {
		t.Error("rejected draws touched memory")
	}
}

func TestFillAndClose(t *testing.T) {
	c := newTestCompositor(t, RGB565.WithSize(3, 2))

	if err := c.Fill(0xFFFFFFFF); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	mem, _ := c.Snapshot()
	for i := 0; i < len(mem); i += 2 {
		if v := binary.LittleEndian.Uint16(mem[i:]); v != 0xFFFF {
			t.Fatalf("pixel %d = %#04x, want 0xffff", i/2, v)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := c.Fill(0xFF000000); !errors.Is(err, ErrClosed) {
		t.Errorf("Fill after Close = %v, want ErrClosed", err)
	}
	if err := c.Draw(models.NewPixelSurface(1, 1, 3), 0, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Draw after Close = %v, want ErrClosed", err)
	}
}

func TestMapFailureSurfaces(t *testing.T) {
	g := ARGB8888.WithSize(2, 2)
	c, err := newCompositor("/dev/fbX", g, region{
		mapFn:   func() ([]byte, error) { return nil, errors.New("ENODEV") },
		unmapFn: func([]byte) error { return nil },
		closeFn: func() error { return nil },
	}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Map(); err == nil {
		t.Error("expected map error")
	}
	if err := c.Fill(0xFF000000); err == nil {
		t.Error("expected Fill to report the map error")
	}
}

func TestGeometryValidate(t *testing.T) {
	if _, err := NewMemory(Geometry{Width: 0, Height: 10, BitsPerPixel: 32}, zap.NewNop()); err == nil {
		t.Error("expected error for zero width")
	}
	tests := []struct {
		name string
		geom Geometry
	}{
		{"8 bpp", Geometry{Width: 10, Height: 10, BitsPerPixel: 8}},
		{"offset beyond word", Geometry{Width: 10, Height: 10, BitsPerPixel: 32, RedOffset: 32}},
	}
	for _, tt := range tests {
		if err := tt.geom.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
	if err := XRGB8888.WithSize(10, 10).Validate(); err != nil {
		t.Errorf("xrgb8888: %v", err)
	}

	bad := ARGB8888.WithSize(10, 10)
	bad.Stride = 8
	if err := bad.Validate(); err == nil {
		t.Error("expected error for stride smaller than a row")
	}
}
