// Package raster provides the opaque RGBA buffer the history engine folds
// operations over. The engine never interprets pixels itself; kernels and
// codecs do.
package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/cespare/xxhash/v2"
)

// Image is a non-premultiplied RGBA buffer, 4 bytes per pixel, rows packed
// with stride 4*Width.
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// New allocates a zeroed image.
func New(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	return &Image{Width: width, Height: height, Pix: make([]byte, 4*width*height)}, nil
}

// FromBytes wraps an existing RGBA buffer after checking its length.
func FromBytes(width, height int, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(pix) != 4*width*height {
		return nil, fmt.Errorf("buffer length %d does not match %dx%d RGBA", len(pix), width, height)
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any image.Image into a packed NRGBA-ordered buffer.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Image{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// NRGBA returns an image.NRGBA view sharing the buffer.
func (img *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    img.Pix,
		Stride: 4 * img.Width,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
}

// Bounds returns the image rectangle anchored at the origin.
func (img *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	return &Image{Width: img.Width, Height: img.Height, Pix: pix}
}

// Equal reports whether both images have the same size and identical bytes.
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	return img.Width == other.Width && img.Height == other.Height && bytes.Equal(img.Pix, other.Pix)
}

// Fingerprint hashes size and pixel bytes. Persisted alongside an edit log
// so a later replay can be checked against the saved result.
func (img *Image) Fingerprint() uint64 {
	d := xxhash.New()
	fmt.Fprintf(d, "%dx%d:", img.Width, img.Height)
	d.Write(img.Pix)
	return d.Sum64()
}

// At returns the pixel at (x, y).
func (img *Image) At(x, y int) color.NRGBA {
	i := 4 * (y*img.Width + x)
	return color.NRGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: img.Pix[i+3]}
}

// Set writes the pixel at (x, y).
func (img *Image) Set(x, y int, c color.NRGBA) {
	i := 4 * (y*img.Width + x)
	img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
}

// Fill sets every pixel to c.
func (img *Image) Fill(c color.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
}
