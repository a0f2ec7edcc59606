package codec

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/fpang/beauty-retouch/internal/raster"
)

// DefaultThumbnailSize is the longest edge of a preview.
const DefaultThumbnailSize = 400

// Thumbnail scales img so its longest edge is at most maxDim, keeping the
// aspect ratio. Images already small enough are copied unscaled.
func Thumbnail(img *raster.Image, maxDim int) *raster.Image {
	if maxDim <= 0 {
		maxDim = DefaultThumbnailSize
	}
	w, h := img.Width, img.Height
	if w <= maxDim && h <= maxDim {
		return img.Clone()
	}

	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img.NRGBA(), img.Bounds(), draw.Src, nil)
	return &raster.Image{Width: w, Height: h, Pix: dst.Pix}
}
