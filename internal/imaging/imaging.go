// Package imaging decodes raw image buffers and prepares pixel data for analysis.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when a buffer cannot be decoded into a pixel grid.
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes an encoded image buffer (JPEG, PNG, GIF, BMP, TIFF or WebP).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty buffer", ErrInvalidImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, format, nil
}

// Check verifies that the buffer holds a decodable image header without decoding pixels.
func Check(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty buffer", ErrInvalidImage)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return nil
}

// Fit downscales img so that neither side exceeds maxSize, keeping aspect ratio.
// Images already within bounds are returned unchanged.
func Fit(img image.Image, maxSize int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
	} else {
		newHeight = maxSize
		newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Gray is a row-major grayscale pixel grid with luma values in [0,255].
type Gray struct {
	Width  int
	Height int
	Pix    []float64
}

// At returns the luma at (x, y).
func (g *Gray) At(x, y int) float64 {
	return g.Pix[y*g.Width+x]
}

// ToGray converts an image to a luma grid using the ITU-R BT.601 formula.
func ToGray(img image.Image) *Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	g := &Gray{Width: width, Height: height, Pix: make([]float64, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, gr, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			g.Pix[y*width+x] = 0.299*float64(r>>8) + 0.587*float64(gr>>8) + 0.114*float64(b>>8)
		}
	}
	return g
}
