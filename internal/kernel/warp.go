package kernel

import (
	"context"
	"image"
	"math"

	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/raster"
)

// Warp reshapes features. A drag pushes pixels along the stroke direction;
// a tap (no travel) magnifies around the touch point.
type Warp struct{}

const (
	pushStrength  = 0.5 // fraction of the brush radius moved at full weight
	bulgeStrength = 0.3 // magnification at full weight
)

// Transform implements engine.Kernel.
func (Warp) Transform(ctx context.Context, req engine.Request) (*raster.Image, error) {
	weights := brushWeights(req)
	if weights.rect.Empty() {
		return req.Image, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	radius := req.Brush.Radius()
	first, last := req.Stroke[0], req.Stroke[len(req.Stroke)-1]
	dx, dy := last.X-first.X, last.Y-first.Y
	travel := float32(math.Hypot(float64(dx), float64(dy)))

	area := weights.rect.Inset(-int(math.Ceil(float64(radius)))).Intersect(req.Image.Bounds())
	snap := copyRect(req.Image, area)
	dst := req.Image

	for y := weights.rect.Min.Y; y < weights.rect.Max.Y; y++ {
		for x := weights.rect.Min.X; x < weights.rect.Max.X; x++ {
			w := weights.at(x, y)
			if w == 0 {
				continue
			}
			px, py := float32(x)+0.5, float32(y)+0.5
			var sx, sy float32
			if travel < 1 {
				k := 1 - bulgeStrength*w
				sx = first.X + (px-first.X)*k
				sy = first.Y + (py-first.Y)*k
			} else {
				shift := radius * pushStrength * w / travel
				sx = px - dx*shift
				sy = py - dy*shift
			}
			r, g, b, a := bilinear(snap, sx-0.5, sy-0.5)
			i := 4 * (y*dst.Width + x)
			dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, b, a
		}
	}
	return dst, nil
}

// bilinear samples img at (x, y) in pixel-center coordinates, clamping to
// the image bounds.
func bilinear(img *image.NRGBA, x, y float32) (r, g, b, a uint8) {
	bnd := img.Rect
	maxX, maxY := float32(bnd.Max.X-1), float32(bnd.Max.Y-1)
	x = min(max(x, float32(bnd.Min.X)), maxX)
	y = min(max(y, float32(bnd.Min.Y)), maxY)

	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, bnd.Max.X-1), min(y0+1, bnd.Max.Y-1)
	fx, fy := x-float32(x0), y-float32(y0)

	p00 := img.PixOffset(x0, y0)
	p10 := img.PixOffset(x1, y0)
	p01 := img.PixOffset(x0, y1)
	p11 := img.PixOffset(x1, y1)

	var out [4]uint8
	for c := 0; c < 4; c++ {
		top := float32(img.Pix[p00+c])*(1-fx) + float32(img.Pix[p10+c])*fx
		bot := float32(img.Pix[p01+c])*(1-fx) + float32(img.Pix[p11+c])*fx
		out[c] = clamp8(top*(1-fy) + bot*fy)
	}
	return out[0], out[1], out[2], out[3]
}
