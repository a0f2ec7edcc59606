package kernel

import (
	"context"
	"image"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
)

// Brightening lifts tones toward white. Teeth whitening also pulls the
// color toward neutral before lifting.
type Brightening struct{}

// Transform implements engine.Kernel.
func (Brightening) Transform(ctx context.Context, req engine.Request) (*raster.Image, error) {
	weights := brushWeights(req)
	if weights.rect.Empty() {
		return req.Image, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	desaturate := req.Tool == operation.TeethWhitening
	effect := mapPixels(req.Image, weights.rect, func(r, g, b float32) (float32, float32, float32) {
		if desaturate {
			l := luminance(r, g, b)
			r, g, b = l+(r-l)*0.4, l+(g-l)*0.4, l+(b-l)*0.4
		}
		const lift = 0.35
		return r + (255-r)*lift, g + (255-g)*lift, b + (255-b)*lift
	})
	composite(req.Image, effect, weights)
	return req.Image, nil
}

// Color paints a target color, read from the colorR/G/B parameters, using
// the brush blend mode.
type Color struct{}

// Transform implements engine.Kernel.
func (Color) Transform(ctx context.Context, req engine.Request) (*raster.Image, error) {
	weights := brushWeights(req)
	if weights.rect.Empty() {
		return req.Image, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tr := param(req.Parameters, operation.ParamColorR) * 255
	tg := param(req.Parameters, operation.ParamColorG) * 255
	tb := param(req.Parameters, operation.ParamColorB) * 255
	mode := req.Brush.BlendMode

	effect := mapPixels(req.Image, weights.rect, func(r, g, b float32) (float32, float32, float32) {
		if mode == brush.BlendColor {
			// keep the source luminance, take chroma from the target
			d := luminance(r, g, b) - luminance(tr, tg, tb)
			return tr + d, tg + d, tb + d
		}
		return blend(mode, r, tr), blend(mode, g, tg), blend(mode, b, tb)
	})
	composite(req.Image, effect, weights)
	return req.Image, nil
}

// blend combines one channel of base s and target t, both in [0,255].
func blend(mode brush.BlendMode, s, t float32) float32 {
	a, b := s/255, t/255
	var v float32
	switch mode {
	case brush.BlendMultiply:
		v = a * b
	case brush.BlendScreen:
		v = 1 - (1-a)*(1-b)
	case brush.BlendOverlay:
		if a < 0.5 {
			v = 2 * a * b
		} else {
			v = 1 - 2*(1-a)*(1-b)
		}
	case brush.BlendSoftLight:
		v = (1-2*b)*a*a + 2*b*a
	default:
		v = b
	}
	return v * 255
}

func param(p map[string]float32, key string) float32 {
	v := p[key]
	return min(max(v, 0), 1)
}

// mapPixels applies fn to every pixel of src inside r, keeping alpha.
func mapPixels(src *raster.Image, r image.Rectangle, fn func(r, g, b float32) (float32, float32, float32)) *image.NRGBA {
	out := image.NewNRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := src.At(x, y)
			nr, ng, nb := fn(float32(c.R), float32(c.G), float32(c.B))
			o := out.PixOffset(x, y)
			out.Pix[o] = clamp8(nr)
			out.Pix[o+1] = clamp8(ng)
			out.Pix[o+2] = clamp8(nb)
			out.Pix[o+3] = c.A
		}
	}
	return out
}
