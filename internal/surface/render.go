package surface

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/koios/eplayer/pkg/models"
)

const (
	lineSpacing = 4
	margin      = 16
)

// InfoScreen describes the identification screen shown at startup
type InfoScreen struct {
	Width      int
	Height     int
	Lines      []string
	QRContent  string // no QR code when empty
	Foreground uint32 // 0xAARRGGBB
	Background uint32
	TextScale  int
}

func argbColor(v uint32) color.NRGBA {
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
}

// Text renders lines with the built-in 7x13 face, enlarged by scale
func Text(lines []string, fg, bg uint32, scale int) *models.PixelSurface {
	return FromImage(textImage(lines, fg, bg, scale))
}

func textImage(lines []string, fg, bg uint32, scale int) *image.NRGBA {
	if scale < 1 {
		scale = 1
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + lineSpacing

	width := 1
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}
	height := max(len(lines)*lineHeight, 1)

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(argbColor(bg)), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(argbColor(fg)),
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.P(0, i*lineHeight+face.Metrics().Ascent.Ceil())
		d.DrawString(line)
	}

	if scale == 1 {
		return img
	}
	scaled := image.NewNRGBA(image.Rect(0, 0, width*scale, height*scale))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return scaled
}

// QRCode renders content as a square QR code of size pixels
func QRCode(content string, size int) (*models.PixelSurface, error) {
	img, err := qrImage(content, size)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

func qrImage(content string, size int) (*image.NRGBA, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	src := qr.Image(size)
	dst := image.NewNRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst, nil
}

// Render composes the text block on the left and the QR code on the right
func (s InfoScreen) Render() (*models.PixelSurface, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid info screen size %dx%d", s.Width, s.Height)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(argbColor(s.Background)), image.Point{}, draw.Src)

	textRight := s.Width
	if s.QRContent != "" {
		size := min(s.Width/2, s.Height) - 2*margin
		if size > 0 {
			qr, err := qrImage(s.QRContent, size)
			if err != nil {
				return nil, err
			}
			at := image.Pt(s.Width-margin-qr.Bounds().Dx(), (s.Height-qr.Bounds().Dy())/2)
			draw.Draw(canvas, qr.Bounds().Add(at), qr, image.Point{}, draw.Src)
			textRight = at.X - margin
		}
	}

	if len(s.Lines) > 0 && textRight > margin {
		text := textImage(s.Lines, s.Foreground, s.Background, s.TextScale)
		at := image.Pt(margin, max((s.Height-text.Bounds().Dy())/2, 0))
		area := image.Rect(at.X, at.Y, textRight, s.Height).Intersect(text.Bounds().Add(at))
		draw.Draw(canvas, area, text, image.Point{}, draw.Over)
	}

	return FromImage(canvas), nil
}
