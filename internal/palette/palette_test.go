package palette

import (
	"image/color"
	"reflect"
	"sync"
	"testing"

	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
)

var (
	red  = color.NRGBA{R: 255, A: 255}
	blue = color.NRGBA{B: 255, A: 255}
)

// halves returns a 4x4 image, red on the left and blue on the right.
func halves(t *testing.T) *raster.Image {
	t.Helper()
	img, err := raster.New(4, 4)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if x < 2 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}
	return img
}

func regions(lipsRight float32) *faceregion.Map {
	return faceregion.NewMap(4, 4, map[faceregion.Name]*faceregion.Mask{
		faceregion.Lips: faceregion.RasterizePolygon(4, 4, [][2]float32{{0, 0}, {lipsRight, 0}, {lipsRight, 4}, {0, 4}}),
	})
}

func TestGenerateMissingRegion(t *testing.T) {
	g := NewGenerator()
	p, ok := g.Generate(operation.HairColor, faceregion.Hair, halves(t), regions(4))
	if ok || p != nil {
		t.Errorf("expected no palette, got %+v", p)
	}
	if _, ok := g.Generate(operation.LipColor, faceregion.Lips, halves(t), nil); ok {
		t.Error("expected no palette without a face map")
	}
	if g.Len() != 0 {
		t.Errorf("expected empty cache, got %d", g.Len())
	}
}

func TestGenerateTwoColors(t *testing.T) {
	g := NewGenerator()
	p, ok := g.Generate(operation.LipColor, faceregion.Lips, halves(t), regions(4))
	if !ok {
		t.Fatal("expected a palette")
	}
	if p.Name != "lipColor:lips" {
		t.Errorf("expected name lipColor:lips, got %s", p.Name)
	}
	if len(p.RegionSamples) != 2 {
		t.Fatalf("expected 2 colors, got %+v", p.RegionSamples)
	}
	got := map[string]float32{}
	for _, c := range p.RegionSamples {
		got[c.Hex] = c.Share
	}
	want := map[string]float32{"#FF0000": 0.5, "#0000FF": 0.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestGenerateRespectsMask(t *testing.T) {
	g := NewGenerator()
	p, ok := g.Generate(operation.LipColor, faceregion.Lips, halves(t), regions(2))
	if !ok {
		t.Fatal("expected a palette")
	}
	if len(p.RegionSamples) != 1 || p.RegionSamples[0].Hex != "#FF0000" || p.RegionSamples[0].Share != 1 {
		t.Errorf("expected only red, got %+v", p.RegionSamples)
	}
}

func TestGenerateOrdersByShare(t *testing.T) {
	img := halves(t)
	img.Set(2, 0, red)
	img.Set(3, 0, red)

	p, ok := NewGenerator(WithColors(2)).Generate(operation.LipColor, faceregion.Lips, img, regions(4))
	if !ok {
		t.Fatal("expected a palette")
	}
	if p.RegionSamples[0].Hex != "#FF0000" {
		t.Errorf("expected red first, got %s", p.RegionSamples[0].Hex)
	}
	if p.RegionSamples[0].Share <= p.RegionSamples[1].Share {
		t.Errorf("expected descending shares, got %+v", p.RegionSamples)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	img, err := raster.New(16, 16)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = byte(i * 7)
		img.Pix[i+1] = byte(i * 13)
		img.Pix[i+2] = byte(i * 29)
		img.Pix[i+3] = 255
	}
	m := faceregion.NewMap(16, 16, map[faceregion.Name]*faceregion.Mask{
		faceregion.Skin: faceregion.RasterizePolygon(16, 16, [][2]float32{{0, 0}, {16, 0}, {16, 16}, {0, 16}}),
	})

	a, _ := NewGenerator().Generate(operation.Blush, faceregion.Skin, img, m)
	b, _ := NewGenerator().Generate(operation.Blush, faceregion.Skin, img, m)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected identical palettes, got %+v and %+v", a, b)
	}
	var total float32
	for _, c := range a.RegionSamples {
		total += c.Share
	}
	if total < 0.999 || total > 1.001 {
		t.Errorf("expected shares to sum to 1, got %v", total)
	}
}

func TestSampleStride(t *testing.T) {
	g := NewGenerator(WithMaxSamples(3))
	mask, _ := regions(4).Get(faceregion.Lips)
	if n := len(g.sample(halves(t), mask)); n != 3 {
		t.Errorf("expected 3 samples, got %d", n)
	}
}

func TestCacheAndInvalidate(t *testing.T) {
	g := NewGenerator()
	first, _ := g.Generate(operation.LipColor, faceregion.Lips, halves(t), regions(4))

	// a different image must not change the cached entry
	img := halves(t)
	img.Fill(blue)
	second, _ := g.Generate(operation.LipColor, faceregion.Lips, img, regions(4))
	if first != second {
		t.Error("expected cached palette to be returned")
	}
	if _, ok := g.Cached(operation.LipColor, faceregion.Lips); !ok {
		t.Error("expected palette in cache")
	}

	g.Invalidate()
	if g.Len() != 0 {
		t.Errorf("expected empty cache, got %d", g.Len())
	}
	third, _ := g.Generate(operation.LipColor, faceregion.Lips, img, regions(4))
	if len(third.RegionSamples) != 1 || third.RegionSamples[0].Hex != "#0000FF" {
		t.Errorf("expected regenerated blue palette, got %+v", third.RegionSamples)
	}
}

func TestConcurrentGenerate(t *testing.T) {
	g := NewGenerator()
	img := halves(t)
	m := regions(4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := g.Generate(operation.LipColor, faceregion.Lips, img, m); !ok {
				t.Error("expected a palette")
			}
		}()
	}
	wg.Wait()
	if g.Len() != 1 {
		t.Errorf("expected 1 cached palette, got %d", g.Len())
	}
}

func TestColorInfoParameters(t *testing.T) {
	p := ColorInfo{R: 255, G: 0, B: 51}.Parameters()
	if p[operation.ParamColorR] != 1 || p[operation.ParamColorG] != 0 || p[operation.ParamColorB] != 0.2 {
		t.Errorf("unexpected parameters %v", p)
	}
}
