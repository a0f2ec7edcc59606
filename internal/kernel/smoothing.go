package kernel

import (
	"context"
	"image"

	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
)

// Smoothing blurs skin under the brush with a separable box filter.
type Smoothing struct{}

// blurRadius scales with the brush so large brushes smooth wider features.
func blurRadius(tool operation.ToolType, size float32) int {
	div := float32(8)
	switch tool {
	case operation.BlemishRemoval:
		div = 4
	case operation.DarkCircleRemoval:
		div = 6
	}
	r := int(size / div)
	return min(max(r, 1), 12)
}

// Transform implements engine.Kernel.
func (Smoothing) Transform(ctx context.Context, req engine.Request) (*raster.Image, error) {
	weights := brushWeights(req)
	if weights.rect.Empty() {
		return req.Image, nil
	}

	radius := blurRadius(req.Tool, req.Brush.Size)
	src := req.Image
	area := weights.rect.Inset(-radius).Intersect(src.Bounds())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blurred := boxBlur(src, area, radius)
	composite(src, blurred, weights)
	return src, nil
}

// boxBlur returns an NRGBA covering area, blurred with a (2r+1) box in each
// direction. Samples outside area are clamped to its edge.
func boxBlur(src *raster.Image, area image.Rectangle, r int) *image.NRGBA {
	w, h := area.Dx(), area.Dy()
	tmp := make([]uint32, 4*w*h)
	out := image.NewNRGBA(area)
	n := uint32(2*r + 1)

	// horizontal pass into tmp
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [4]uint32
			for k := -r; k <= r; k++ {
				sx := min(max(x+k, 0), w-1)
				c := src.At(area.Min.X+sx, area.Min.Y+y)
				sum[0] += uint32(c.R)
				sum[1] += uint32(c.G)
				sum[2] += uint32(c.B)
				sum[3] += uint32(c.A)
			}
			i := 4 * (y*w + x)
			for c := 0; c < 4; c++ {
				tmp[i+c] = sum[c]
			}
		}
	}

	// vertical pass into out
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum [4]uint32
			for k := -r; k <= r; k++ {
				sy := min(max(y+k, 0), h-1)
				i := 4 * (sy*w + x)
				for c := 0; c < 4; c++ {
					sum[c] += tmp[i+c]
				}
			}
			o := out.PixOffset(area.Min.X+x, area.Min.Y+y)
			for c := 0; c < 4; c++ {
				out.Pix[o+c] = uint8((sum[c] + n*n/2) / (n * n))
			}
		}
	}
	return out
}
