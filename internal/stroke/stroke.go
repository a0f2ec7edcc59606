// Package stroke collects the raw touch samples of a single gesture.
package stroke

import (
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog/log"
)

// Point is one positioned, pressure-weighted touch sample in image
// coordinates.
type Point struct {
	X        float32 `json:"x" dynamodbav:"x"`
	Y        float32 `json:"y" dynamodbav:"y"`
	Pressure float32 `json:"p" dynamodbav:"p"`
}

// Stroke is the ordered sample sequence of one continuous gesture.
type Stroke []Point

// Clone returns an independent copy.
func (s Stroke) Clone() Stroke {
	if s == nil {
		return nil
	}
	out := make(Stroke, len(s))
	copy(out, s)
	return out
}

// Bounds returns the integer rectangle covered by the stroke when each
// sample is painted with the given radius.
func (s Stroke) Bounds(radius float32) image.Rectangle {
	if len(s) == 0 {
		return image.Rectangle{}
	}
	minX, minY := s[0].X, s[0].Y
	maxX, maxY := minX, minY
	for _, p := range s[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(float64(minX-radius))),
		int(math.Floor(float64(minY-radius))),
		int(math.Ceil(float64(maxX+radius)))+1,
		int(math.Ceil(float64(maxY+radius)))+1,
	)
}

// Resample returns dabs spaced step pixels apart along the stroke,
// interpolating pressure linearly. The first and last samples are always
// kept. A single-sample stroke is returned unchanged.
func Resample(s Stroke, step float32) Stroke {
	if len(s) < 2 || step <= 0 {
		return s.Clone()
	}
	return resample(s, float64(step), nil)
}

// ResampleWithin is Resample restricted to dabs inside clip. Dabs keep the
// positions Resample would give them; stretches of the stroke outside clip
// are skipped without visiting each dab.
func ResampleWithin(s Stroke, step float32, clip image.Rectangle) Stroke {
	if len(s) < 2 || step <= 0 {
		var out Stroke
		for _, p := range s {
			if inside(p, clip) {
				out = append(out, p)
			}
		}
		return out
	}
	return resample(s, float64(step), &clip)
}

func inside(p Point, r image.Rectangle) bool {
	return float64(p.X) >= float64(r.Min.X) && float64(p.X) <= float64(r.Max.X) &&
		float64(p.Y) >= float64(r.Min.Y) && float64(p.Y) <= float64(r.Max.Y)
}

// clipSegment returns the parameter range [t0, t1] of a->b inside r, or
// ok=false when the segment misses r.
func clipSegment(a, b Point, r image.Rectangle) (t0, t1 float64, ok bool) {
	ax, ay := float64(a.X), float64(a.Y)
	dx, dy := float64(b.X)-ax, float64(b.Y)-ay
	t0, t1 = 0, 1
	edges := [4][2]float64{
		{-dx, ax - float64(r.Min.X)},
		{dx, float64(r.Max.X) - ax},
		{-dy, ay - float64(r.Min.Y)},
		{dy, float64(r.Max.Y) - ay},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = max(t0, t)
		} else {
			t1 = min(t1, t)
		}
	}
	return t0, t1, t0 <= t1
}

func resample(s Stroke, step float64, clip *image.Rectangle) Stroke {
	keep := func(p Point) bool { return clip == nil || inside(p, *clip) }

	var out Stroke
	if keep(s[0]) {
		out = append(out, s[0])
	}
	carry := 0.0 // distance travelled since the last dab position
	for i := 1; i < len(s); i++ {
		a, b := s[i-1], s[i]
		dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
		seg := math.Hypot(dx, dy)
		if seg == 0 {
			continue
		}
		lo, hi := 0.0, seg
		if clip != nil {
			t0, t1, ok := clipSegment(a, b, *clip)
			if ok {
				lo, hi = t0*seg, t1*seg
			} else {
				lo, hi = seg, -1
			}
		}

		d := step - carry
		if lo > d {
			d += math.Ceil((lo-d)/step) * step
		}
		for ; d <= hi && d <= seg; d += step {
			t := d / seg
			out = append(out, Point{
				X:        float32(float64(a.X) + dx*t),
				Y:        float32(float64(a.Y) + dy*t),
				Pressure: float32(float64(a.Pressure) + float64(b.Pressure-a.Pressure)*t),
			})
		}
		if d <= seg {
			d += (math.Floor((seg-d)/step) + 1) * step
		}
		carry = seg - (d - step)
	}

	if last := s[len(s)-1]; keep(last) && (len(out) == 0 || out[len(out)-1] != last) {
		out = append(out, last)
	}
	return out
}

// Accumulator gathers samples between Begin and End. It has its own lock so
// touch input can continue while an earlier operation is still applying.
type Accumulator struct {
	mu     sync.Mutex
	active bool
	points Stroke
}

// Begin discards any previous samples and starts a new gesture.
func (a *Accumulator) Begin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.points = nil
}

// AddPoint appends a sample to the active gesture. Pressure is clamped to
// [0,1]. Calls outside a gesture are dropped.
func (a *Accumulator) AddPoint(x, y, pressure float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		log.Debug().Float32("x", x).Float32("y", y).Msg("Touch sample outside gesture dropped")
		return
	}
	a.points = append(a.points, Point{X: x, Y: y, Pressure: clampUnit(pressure)})
}

// End returns the accumulated stroke and resets the accumulator. The stroke
// is empty when no samples were added; rejecting it is the caller's job.
func (a *Accumulator) End() Stroke {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.points
	a.points = nil
	a.active = false
	return s
}

// Active reports whether a gesture is in progress.
func (a *Accumulator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Len returns the number of samples collected so far.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.points)
}

func clampUnit(v float32) float32 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
