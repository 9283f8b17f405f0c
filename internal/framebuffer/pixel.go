package framebuffer

import "encoding/binary"

// errorPixel is written in place of pixels the device encoding cannot express (RGB565 red)
const errorPixel uint16 = 0xF800

func (g Geometry) offset(x, y int) int {
	return y*g.RowStride() + x*g.BytesPerPixel()
}

// writePixel composites one 0xAARRGGBB pixel at (x, y). Coordinates outside the
// screen are clipped. Alpha 0 leaves memory untouched, alpha 255 overwrites and
// anything in between blends against the current destination.
func writePixel(mem []byte, g Geometry, x, y int, pixel uint32) {
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return
	}

	a := (pixel >> 24) & 0xFF
	if a == 0 {
		return
	}

	off := g.offset(x, y)

	switch g.BitsPerPixel {
	case 16, 24, 32:
	default:
		// the sentinel must stay inside the pixel
		if g.BytesPerPixel() >= 2 && off+2 <= len(mem) {
			binary.LittleEndian.PutUint16(mem[off:], errorPixel)
		}
		return
	}

	px := mem[off:]
	if len(px) < g.BytesPerPixel() {
		return
	}

	r := (pixel >> 16) & 0xFF
	gr := (pixel >> 8) & 0xFF
	b := pixel & 0xFF
	da := uint32(0xFF)

	if a != 0xFF {
		dr, dg, db, dstAlpha := readRGB(px, g)
		r = blend(r, dr, a)
		gr = blend(gr, dg, a)
		b = blend(b, db, a)
		da = dstAlpha
	}

	storeRGB(px, g, r, gr, b, da)
}

func blend(src, dst, a uint32) uint32 {
	return (src*a + dst*(255-a)) / 255
}

// storeRGB packs a color into the device encoding
func storeRGB(px []byte, g Geometry, r, gr, b, a uint32) {
	switch g.BitsPerPixel {
	case 16:
		v := uint16((r&0xF8)<<8 | (gr&0xFC)<<3 | b>>3)
		binary.LittleEndian.PutUint16(px, v)
	case 24:
		if g.RedOffset == 16 {
			px[0], px[1], px[2] = byte(b), byte(gr), byte(r)
		} else {
			px[0], px[1], px[2] = byte(r), byte(gr), byte(b)
		}
	case 32:
		v := r<<g.RedOffset | gr<<g.GreenOffset | b<<g.BlueOffset
		if g.hasAlpha() {
			v |= a << g.AlphaOffset
		}
		binary.LittleEndian.PutUint32(px, v)
	}
}

// hasAlpha reports whether a 32-bit layout has an alpha byte of its own.
// XRGB layouts report an alpha offset that overlaps a color channel.
func (g Geometry) hasAlpha() bool {
	switch g.AlphaOffset {
	case g.RedOffset, g.GreenOffset, g.BlueOffset:
		return false
	}
	return true
}

// readRGB unpacks the pixel stored at px
func readRGB(px []byte, g Geometry) (r, gr, b, a uint32) {
	a = 0xFF
	switch g.BitsPerPixel {
	case 16:
		v := uint32(binary.LittleEndian.Uint16(px))
		r5, g6, b5 := (v>>11)&0x1F, (v>>5)&0x3F, v&0x1F
		r = r5<<3 | r5>>2
		gr = g6<<2 | g6>>4
		b = b5<<3 | b5>>2
	case 24:
		if g.RedOffset == 16 {
			b, gr, r = uint32(px[0]), uint32(px[1]), uint32(px[2])
		} else {
			r, gr, b = uint32(px[0]), uint32(px[1]), uint32(px[2])
		}
	case 32:
		v := binary.LittleEndian.Uint32(px)
		r = (v >> g.RedOffset) & 0xFF
		gr = (v >> g.GreenOffset) & 0xFF
		b = (v >> g.BlueOffset) & 0xFF
		if g.hasAlpha() {
			a = (v >> g.AlphaOffset) & 0xFF
		}
	}
	return r, gr, b, a
}
