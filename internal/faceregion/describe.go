package faceregion

import (
	"encoding/json"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/vector"
)

// Description is the JSON form of a face map, as produced by an offline
// detector or written by hand for CLI use. Each region is either an axis
// aligned rectangle or a closed polygon in image coordinates.
type Description struct {
	Width   int                 `json:"width"`
	Height  int                 `json:"height"`
	Regions []RegionDescription `json:"regions"`
}

// RegionDescription describes one region's outline.
type RegionDescription struct {
	Name    Name         `json:"name"`
	Rect    *[4]float32  `json:"rect,omitempty"` // x0, y0, x1, y1
	Polygon [][2]float32 `json:"polygon,omitempty"`
}

// ReadDescription decodes a Description from JSON.
func ReadDescription(r io.Reader) (*Description, error) {
	var d Description
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode face description: %w", err)
	}
	return &d, nil
}

// Build rasterizes every region outline into a coverage mask.
func (d *Description) Build() (*Map, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("invalid face map size %dx%d", d.Width, d.Height)
	}

	regions := make(map[Name]*Mask, len(d.Regions))
	for _, rd := range d.Regions {
		if rd.Name == "" {
			return nil, fmt.Errorf("region without a name")
		}
		outline := rd.Polygon
		if rd.Rect != nil {
			r := rd.Rect
			outline = [][2]float32{{r[0], r[1]}, {r[2], r[1]}, {r[2], r[3]}, {r[0], r[3]}}
		}
		if len(outline) < 3 {
			return nil, fmt.Errorf("region %s: need a rect or at least 3 polygon points", rd.Name)
		}
		regions[rd.Name] = RasterizePolygon(d.Width, d.Height, outline)
	}
	return NewMap(d.Width, d.Height, regions), nil
}

// RasterizePolygon fills a closed polygon into a full-image coverage mask
// with anti-aliased edges.
func RasterizePolygon(width, height int, pts [][2]float32) *Mask {
	z := vector.NewRasterizer(width, height)
	z.MoveTo(pts[0][0], pts[0][1])
	for _, p := range pts[1:] {
		z.LineTo(p[0], p[1])
	}
	z.ClosePath()

	alpha := image.NewAlpha(image.Rect(0, 0, width, height))
	z.Draw(alpha, alpha.Bounds(), image.Opaque, image.Point{})
	return &Mask{Bounds: coverageBounds(alpha), Alpha: alpha}
}

func coverageBounds(a *image.Alpha) image.Rectangle {
	var r image.Rectangle
	b := a.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if a.AlphaAt(x, y).A != 0 {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}
