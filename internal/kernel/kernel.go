// Package kernel provides deterministic software implementations of the
// four retouching kernel families. Production builds may register GPU
// kernels instead; these keep the CLI and tests self-contained.
//
// Every kernel follows the same shape: compute a per-pixel brush weight
// from the stroke, brush and optional region mask, build the fully applied
// effect inside the stroke bounds, then composite effect over source through
// the weight mask.
package kernel

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// RegisterAll installs the software kernel for every family.
func RegisterAll(r *engine.Registry) *engine.Registry {
	return r.
		Register(operation.FamilySmoothing, Smoothing{}).
		Register(operation.FamilyBrightening, Brightening{}).
		Register(operation.FamilyColor, Color{}).
		Register(operation.FamilyWarp, Warp{})
}

// NewRegistry returns a registry populated with the software kernels.
func NewRegistry() *engine.Registry {
	return RegisterAll(engine.NewRegistry())
}

// weightMap holds brush weights in [0,1] for the pixels of rect.
type weightMap struct {
	rect image.Rectangle
	w    []float32
}

func (m *weightMap) at(x, y int) float32 {
	return m.w[(y-m.rect.Min.Y)*m.rect.Dx()+(x-m.rect.Min.X)]
}

// alpha converts the weights to an 8-bit mask positioned at m.rect.
func (m *weightMap) alpha() *image.Alpha {
	a := image.NewAlpha(m.rect)
	for i, v := range m.w {
		a.Pix[i] = uint8(v*255 + 0.5)
	}
	return a
}

// brushWeights stamps a dab at every spacing interval along the stroke.
// Dabs farther than one radius from the image are never generated.
// Each dab has a flat core of radius hardness*r and a linear falloff to r.
// Overlapping dabs take the maximum so repeated passes inside one stroke do
// not build up. The result is scaled by opacity, flow, intensity and the
// region mask.
func brushWeights(req engine.Request) *weightMap {
	b := req.Brush
	radius := b.Radius()
	bounds := req.Stroke.Bounds(radius).Intersect(req.Image.Bounds())
	m := &weightMap{rect: bounds, w: make([]float32, bounds.Dx()*bounds.Dy())}
	if bounds.Empty() {
		return m
	}

	step := max(1, b.Spacing*b.Size)
	core := radius * b.Hardness
	reach := bounds.Inset(-int(math.Ceil(float64(radius))) - 1)
	for _, dab := range stroke.ResampleWithin(req.Stroke, step, reach) {
		if dab.Pressure <= 0 {
			continue
		}
		r := image.Rect(
			int(math.Floor(float64(dab.X-radius))),
			int(math.Floor(float64(dab.Y-radius))),
			int(math.Ceil(float64(dab.X+radius)))+1,
			int(math.Ceil(float64(dab.Y+radius)))+1,
		).Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				dx := float32(x) + 0.5 - dab.X
				dy := float32(y) + 0.5 - dab.Y
				d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
				if d >= radius {
					continue
				}
				f := float32(1)
				if d > core {
					f = (radius - d) / (radius - core)
				}
				f *= dab.Pressure
				i := (y-bounds.Min.Y)*bounds.Dx() + (x - bounds.Min.X)
				if f > m.w[i] {
					m.w[i] = f
				}
			}
		}
	}

	scale := b.Opacity * b.Flow * req.Intensity
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (y-bounds.Min.Y)*bounds.Dx() + (x - bounds.Min.X)
			v := m.w[i] * scale
			if req.Mask != nil {
				v *= float32(req.Mask.Coverage(x, y)) / 255
			}
			m.w[i] = v
		}
	}
	return m
}

// composite blends effect over dst through the weight mask. effect must
// cover at least weights.rect.
func composite(dst *raster.Image, effect *image.NRGBA, weights *weightMap) {
	if weights.rect.Empty() {
		return
	}
	draw.DrawMask(dst.NRGBA(), weights.rect, effect, weights.rect.Min, weights.alpha(), weights.rect.Min, draw.Over)
}

// copyRect copies src pixels in r into a new NRGBA positioned at r.
func copyRect(src *raster.Image, r image.Rectangle) *image.NRGBA {
	out := image.NewNRGBA(r)
	draw.Copy(out, r.Min, src.NRGBA(), r, draw.Src, nil)
	return out
}

func clamp8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

func luminance(r, g, b float32) float32 {
	return 0.299*r + 0.587*g + 0.114*b
}
