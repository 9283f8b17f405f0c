package surface

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/koios/eplayer/pkg/models"
)

// Decoder turns an image file into a PixelSurface fitted to a placement rectangle
type Decoder struct{}

// NewDecoder creates a decoder for png, jpeg and webp files
func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeFile reads and decodes path. When rect has a positive size the image
// is scaled to exactly that size.
func (d *Decoder) DecodeFile(path string, rect models.Rect) (*models.PixelSurface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	s, err := Decode(f, rect.Width, rect.Height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Decode decodes any registered image format. Width and height of zero keep
// the source size.
func Decode(r io.Reader, width, height int) (*models.PixelSurface, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty %s image", format)
	}
	if width <= 0 || height <= 0 {
		width, height = b.Dx(), b.Dy()
	}

	sameSize := width == b.Dx() && height == b.Dy()
	if n, ok := img.(*image.NRGBA); ok && sameSize {
		return FromImage(n), nil
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if sameSize {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	}

	return FromImage(dst), nil
}

// FromImage copies an NRGBA image into a 4-channel surface
func FromImage(img *image.NRGBA) *models.PixelSurface {
	b := img.Bounds()
	s := models.NewPixelSurface(b.Dx(), b.Dy(), 4)
	rowBytes := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		start := y * img.Stride
		copy(s.Pixels[y*rowBytes:(y+1)*rowBytes], img.Pix[start:start+rowBytes])
	}
	return s
}
