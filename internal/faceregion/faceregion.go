// Package faceregion models the face-region data supplied by an external
// face detector. Region-aware tools (lip color, eye brightening, face
// slimming) and the palette generator read these masks; nothing in the core
// writes them after detection.
package faceregion

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/fpang/beauty-retouch/internal/raster"
)

// Name identifies a semantic face region.
type Name string

// Known regions.
const (
	Face     Name = "face"
	Skin     Name = "skin"
	Eyes     Name = "eyes"
	LeftEye  Name = "leftEye"
	RightEye Name = "rightEye"
	Brows    Name = "brows"
	Nose     Name = "nose"
	Lips     Name = "lips"
	Teeth    Name = "teeth"
	Hair     Name = "hair"
)

// Mask is a coverage mask over the full image. Alpha 0 is outside the
// region, 255 fully inside.
type Mask struct {
	Bounds image.Rectangle // tight bounding box of non-zero coverage
	Alpha  *image.Alpha
}

// Coverage returns the mask value at (x, y), or 0 outside the mask.
func (m *Mask) Coverage(x, y int) uint8 {
	if m == nil || m.Alpha == nil || !(image.Point{X: x, Y: y}).In(m.Alpha.Rect) {
		return 0
	}
	return m.Alpha.AlphaAt(x, y).A
}

// Map is the read-only set of regions detected in one image.
type Map struct {
	width, height int
	regions       map[Name]*Mask
}

// NewMap builds a Map for an image of the given size. Masks are taken as-is;
// callers must not modify them afterwards.
func NewMap(width, height int, regions map[Name]*Mask) *Map {
	m := &Map{width: width, height: height, regions: make(map[Name]*Mask, len(regions))}
	for name, mask := range regions {
		if mask != nil {
			m.regions[name] = mask
		}
	}
	return m
}

// Get returns the mask for a region. A nil Map has no regions.
func (m *Map) Get(name Name) (*Mask, bool) {
	if m == nil {
		return nil, false
	}
	mask, ok := m.regions[name]
	return mask, ok
}

// Names lists the available regions in sorted order.
func (m *Map) Names() []Name {
	if m == nil {
		return nil
	}
	names := make([]Name, 0, len(m.regions))
	for n := range m.regions {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Size returns the dimensions of the image the map was detected on.
func (m *Map) Size() (width, height int) {
	if m == nil {
		return 0, 0
	}
	return m.width, m.height
}

// Detector finds face regions in an image. It returns (nil, nil) when no
// face is present.
type Detector interface {
	Detect(ctx context.Context, img *raster.Image) (*Map, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img *raster.Image) (*Map, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img *raster.Image) (*Map, error) {
	return f(ctx, img)
}

// StaticDetector always returns the same map, after checking it matches the
// image size.
type StaticDetector struct {
	Map *Map
}

// Detect implements Detector.
func (d StaticDetector) Detect(_ context.Context, img *raster.Image) (*Map, error) {
	if d.Map == nil {
		return nil, nil
	}
	if w, h := d.Map.Size(); w != img.Width || h != img.Height {
		return nil, fmt.Errorf("face map is %dx%d but image is %dx%d", w, h, img.Width, img.Height)
	}
	return d.Map, nil
}
