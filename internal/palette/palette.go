// Package palette derives color suggestions for color-changing tools from
// the pixels under a face region.
//
// Palettes are generated lazily per (tool, region) and cached. Generation is
// deterministic: the same image and mask always produce the same palette, so
// overwriting a cache entry with a regenerated one is harmless.
package palette

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
)

// Defaults for NewGenerator.
const (
	DefaultColors     = 5
	DefaultMaxSamples = 4096
	iterations        = 12
	minCoverage       = 128
)

// ColorInfo is one palette entry.
type ColorInfo struct {
	R     uint8   `json:"r"`
	G     uint8   `json:"g"`
	B     uint8   `json:"b"`
	Share float32 `json:"share"` // fraction of sampled pixels in this cluster
	Hex   string  `json:"hex"`
}

// Parameters returns the color as normalized tool parameters.
func (c ColorInfo) Parameters() map[string]float32 {
	return map[string]float32{
		operation.ParamColorR: float32(c.R) / 255,
		operation.ParamColorG: float32(c.G) / 255,
		operation.ParamColorB: float32(c.B) / 255,
	}
}

// ColorPalette is a read-only list of colors ordered by share, largest first.
type ColorPalette struct {
	Name          string      `json:"name"`
	RegionSamples []ColorInfo `json:"regionSamples"`
}

// Generator builds and caches palettes. It is safe for concurrent use.
type Generator struct {
	colors     int
	maxSamples int

	mu    sync.RWMutex
	cache map[string]*ColorPalette
}

// Option configures a Generator.
type Option func(*Generator)

// WithColors sets the number of clusters per palette.
func WithColors(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.colors = n
		}
	}
}

// WithMaxSamples bounds how many pixels are clustered per palette.
func WithMaxSamples(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxSamples = n
		}
	}
}

// NewGenerator returns a Generator with an empty cache.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		colors:     DefaultColors,
		maxSamples: DefaultMaxSamples,
		cache:      make(map[string]*ColorPalette),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name is the cache key of the palette for tool and region.
func Name(tool operation.ToolType, region faceregion.Name) string {
	return string(tool) + ":" + string(region)
}

// Cached returns a previously generated palette.
func (g *Generator) Cached(tool operation.ToolType, region faceregion.Name) (*ColorPalette, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.cache[Name(tool, region)]
	return p, ok
}

// Generate returns the palette for (tool, region), building it from img on
// first use. It returns (nil, false) when the region is not in regions or
// covers no pixels.
func (g *Generator) Generate(tool operation.ToolType, region faceregion.Name, img *raster.Image, regions *faceregion.Map) (*ColorPalette, bool) {
	if p, ok := g.Cached(tool, region); ok {
		return p, true
	}

	mask, ok := regions.Get(region)
	if !ok || img == nil {
		log.Debug().Str("tool", string(tool)).Str("region", string(region)).Msg("No region for palette")
		return nil, false
	}

	samples := g.sample(img, mask)
	if len(samples) == 0 {
		log.Debug().Str("region", string(region)).Msg("Region covers no pixels")
		return nil, false
	}

	p := &ColorPalette{
		Name:          Name(tool, region),
		RegionSamples: cluster(samples, g.colors),
	}

	g.mu.Lock()
	g.cache[p.Name] = p
	g.mu.Unlock()

	log.Debug().
		Str("palette", p.Name).
		Int("samples", len(samples)).
		Int("colors", len(p.RegionSamples)).
		Msg("Palette generated")
	return p, true
}

// Invalidate drops every cached palette.
func (g *Generator) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache = make(map[string]*ColorPalette)
}

// Len returns the number of cached palettes.
func (g *Generator) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

type rgb [3]float32

// sample collects pixels with coverage >= minCoverage in raster order,
// taking every n-th one so at most maxSamples are returned.
func (g *Generator) sample(img *raster.Image, mask *faceregion.Mask) []rgb {
	area := mask.Bounds.Intersect(img.Bounds())

	eligible := 0
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if mask.Coverage(x, y) >= minCoverage {
				eligible++
			}
		}
	}
	if eligible == 0 {
		return nil
	}

	stride := (eligible + g.maxSamples - 1) / g.maxSamples
	out := make([]rgb, 0, min(eligible, g.maxSamples))
	i := 0
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if mask.Coverage(x, y) < minCoverage {
				continue
			}
			if i%stride == 0 {
				c := img.At(x, y)
				out = append(out, rgb{float32(c.R), float32(c.G), float32(c.B)})
			}
			i++
		}
	}
	return out
}

// cluster runs k-means seeded at luminance quantiles for a fixed number of
// iterations. Ties go to the lower centroid index.
func cluster(samples []rgb, k int) []ColorInfo {
	k = min(k, len(samples))

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return lum(samples[order[a]]) < lum(samples[order[b]])
	})
	centroids := make([]rgb, k)
	for i := range centroids {
		centroids[i] = samples[order[(2*i+1)*len(samples)/(2*k)]]
	}

	assign := make([]int, len(samples))
	counts := make([]int, k)
	for it := 0; it < iterations; it++ {
		for i := range counts {
			counts[i] = 0
		}
		sums := make([]rgb, k)
		for i, s := range samples {
			best, bestD := 0, dist(s, centroids[0])
			for c := 1; c < k; c++ {
				if d := dist(s, centroids[c]); d < bestD {
					best, bestD = c, d
				}
			}
			assign[i] = best
			counts[best]++
			for ch := 0; ch < 3; ch++ {
				sums[best][ch] += s[ch]
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for ch := 0; ch < 3; ch++ {
				centroids[c][ch] = sums[c][ch] / float32(counts[c])
			}
		}
	}

	idx := make([]int, 0, k)
	for c := range centroids {
		if counts[c] > 0 {
			idx = append(idx, c)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return counts[idx[a]] > counts[idx[b]] })

	out := make([]ColorInfo, 0, len(idx))
	for _, c := range idx {
		r, g, b := round8(centroids[c][0]), round8(centroids[c][1]), round8(centroids[c][2])
		out = append(out, ColorInfo{
			R:     r,
			G:     g,
			B:     b,
			Share: float32(counts[c]) / float32(len(samples)),
			Hex:   fmt.Sprintf("#%02X%02X%02X", r, g, b),
		})
	}
	return out
}

func lum(c rgb) float32 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

func dist(a, b rgb) float32 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return dr*dr + dg*dg + db*db
}

func round8(v float32) uint8 {
	return uint8(min(max(v+0.5, 0), 255))
}
