package kernel

import (
	"context"
	"image/color"
	"testing"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// checkerboard returns a 32x32 opaque image alternating dark and light pixels.
func checkerboard(t *testing.T) *raster.Image {
	t.Helper()
	img, err := raster.New(32, 32)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(40)
			if (x+y)%2 == 0 {
				v = 200
			}
			img.Set(x, y, color.NRGBA{R: v, G: v / 2, B: v / 3, A: 255})
		}
	}
	return img
}

func request(img *raster.Image, tool operation.ToolType, s stroke.Stroke) engine.Request {
	b := brush.Default()
	b.Size = 10
	b.Hardness = 1
	b.Opacity = 1
	b.Flow = 1
	return engine.Request{
		Image:     img,
		Tool:      tool,
		Brush:     b,
		Stroke:    s,
		Intensity: 1,
		Parameters: map[string]float32{
			operation.ParamColorR: 0.9,
			operation.ParamColorG: 0.1,
			operation.ParamColorB: 0.3,
		},
	}
}

var centerTap = stroke.Stroke{{X: 16, Y: 16, Pressure: 1}}

func TestKernelsAreDeterministic(t *testing.T) {
	kernels := map[string]struct {
		k    engine.Kernel
		tool operation.ToolType
	}{
		"smoothing":   {Smoothing{}, operation.SkinSmoothing},
		"brightening": {Brightening{}, operation.EyeBrightening},
		"color":       {Color{}, operation.LipColor},
		"warp":        {Warp{}, operation.FaceSlimming},
	}
	drag := stroke.Stroke{{X: 10, Y: 16, Pressure: 1}, {X: 22, Y: 16, Pressure: 0.6}}

	for name, tc := range kernels {
		t.Run(name, func(t *testing.T) {
			src := checkerboard(t)
			a, err := tc.k.Transform(context.Background(), request(src.Clone(), tc.tool, drag))
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			b, err := tc.k.Transform(context.Background(), request(src.Clone(), tc.tool, drag))
			if err != nil {
				t.Fatalf("Transform: %v", err)
			}
			if !a.Equal(b) {
				t.Error("expected identical output for identical input")
			}
			if a.Equal(src) {
				t.Error("expected the kernel to change the image")
			}
			if a.At(0, 0) != src.At(0, 0) || a.At(31, 31) != src.At(31, 31) {
				t.Error("expected pixels far from the stroke to be untouched")
			}
		})
	}
}

func TestZeroIntensityIsIdentity(t *testing.T) {
	src := checkerboard(t)
	req := request(src.Clone(), operation.SkinSmoothing, centerTap)
	req.Intensity = 0

	out, err := Smoothing{}.Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !out.Equal(src) {
		t.Error("expected zero intensity to leave the image unchanged")
	}
}

func TestSmoothingReducesContrast(t *testing.T) {
	src := checkerboard(t)
	out, err := Smoothing{}.Transform(context.Background(), request(src.Clone(), operation.SkinSmoothing, centerTap))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	before := int(src.At(16, 16).R) - int(src.At(17, 16).R)
	after := int(out.At(16, 16).R) - int(out.At(17, 16).R)
	if abs(after) >= abs(before) {
		t.Errorf("expected contrast to drop, before %d after %d", before, after)
	}
}

func TestBrighteningLifts(t *testing.T) {
	src := checkerboard(t)
	out, err := Brightening{}.Transform(context.Background(), request(src.Clone(), operation.EyeBrightening, centerTap))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.At(16, 16).R <= src.At(16, 16).R {
		t.Errorf("expected brighter center, got %d from %d", out.At(16, 16).R, src.At(16, 16).R)
	}
}

func TestColorRespectsRegionMask(t *testing.T) {
	src := checkerboard(t)
	req := request(src.Clone(), operation.LipColor, centerTap)
	// mask covers only the left half of the dab
	req.Mask = faceregion.RasterizePolygon(32, 32, [][2]float32{{0, 0}, {16, 0}, {16, 32}, {0, 32}})

	out, err := Color{}.Transform(context.Background(), req)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.At(15, 16) == src.At(15, 16) {
		t.Error("expected masked-in pixel to change")
	}
	if out.At(17, 16) != src.At(17, 16) {
		t.Error("expected masked-out pixel to stay")
	}
}

func TestBlendModes(t *testing.T) {
	tests := []struct {
		mode brush.BlendMode
		s, t float32
		want float32
	}{
		{brush.BlendNormal, 100, 200, 200},
		{brush.BlendMultiply, 255, 51, 51},
		{brush.BlendScreen, 0, 51, 51},
		{brush.BlendOverlay, 0, 200, 0},
	}
	for _, tt := range tests {
		got := blend(tt.mode, tt.s, tt.t)
		if diff := got - tt.want; diff > 0.01 || diff < -0.01 {
			t.Errorf("%s(%v, %v): expected %v, got %v", tt.mode, tt.s, tt.t, tt.want, got)
		}
	}
}

func TestWarpTapMagnifies(t *testing.T) {
	src := checkerboard(t)
	out, err := Warp{}.Transform(context.Background(), request(src.Clone(), operation.EyeEnlarging, centerTap))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Equal(src) {
		t.Error("expected tap warp to change the image")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Smoothing{}).Transform(ctx, request(checkerboard(t), operation.SkinSmoothing, centerTap)); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestFarOffCanvasStroke(t *testing.T) {
	img := checkerboard(t)
	far := stroke.Stroke{{X: 16, Y: 16, Pressure: 1}, {X: 1e8, Y: 16, Pressure: 1}}
	out, err := (Smoothing{}).Transform(context.Background(), request(img.Clone(), operation.SkinSmoothing, far))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Equal(img) {
		t.Error("expected the on-canvas part of the stroke to paint")
	}
	if out.At(16, 2) != img.At(16, 2) {
		t.Error("expected pixels away from the stroke untouched")
	}
}

func TestRegistryCoversEveryFamily(t *testing.T) {
	r := NewRegistry()
	for _, spec := range operation.Tools() {
		if _, ok := r.Lookup(spec.Family); !ok {
			t.Errorf("no kernel for %s (%s)", spec.Tool, spec.Family)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
