// Package brush holds the brush configuration attached to every retouching
// operation. Configuration is a plain value type: copying it is how an
// operation captures the session's current brush.
package brush

import (
	"fmt"
	"math"
	"strings"

	"github.com/fpang/beauty-retouch/internal/editerr"
)

// BlendMode controls how a kernel composites its result under the brush.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendSoftLight
	BlendColor
)

var blendNames = []string{"normal", "multiply", "screen", "overlay", "softLight", "color"}

func (m BlendMode) String() string {
	if m < 0 || int(m) >= len(blendNames) {
		return fmt.Sprintf("BlendMode(%d)", int(m))
	}
	return blendNames[m]
}

// ParseBlendMode resolves a blend mode by name (case-insensitive).
func ParseBlendMode(s string) (BlendMode, error) {
	for i, name := range blendNames {
		if strings.EqualFold(s, name) {
			return BlendMode(i), nil
		}
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m BlendMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(blendNames) {
		return nil, fmt.Errorf("unknown blend mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *BlendMode) UnmarshalText(b []byte) error {
	v, err := ParseBlendMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Configuration describes the brush used for one stroke.
type Configuration struct {
	Size      float32   `json:"size" yaml:"size" dynamodbav:"size"`
	Hardness  float32   `json:"hardness" yaml:"hardness" dynamodbav:"hardness"`
	Opacity   float32   `json:"opacity" yaml:"opacity" dynamodbav:"opacity"`
	Flow      float32   `json:"flow" yaml:"flow" dynamodbav:"flow"`
	Spacing   float32   `json:"spacing" yaml:"spacing" dynamodbav:"spacing"`
	BlendMode BlendMode `json:"blendMode" yaml:"blendMode" dynamodbav:"blendMode"`
}

// Default returns the brush a new editing session starts with.
func Default() Configuration {
	return Configuration{
		Size:      40,
		Hardness:  0.5,
		Opacity:   1,
		Flow:      0.8,
		Spacing:   0.25,
		BlendMode: BlendNormal,
	}
}

// Radius is half the brush size.
func (c Configuration) Radius() float32 { return c.Size / 2 }

// Validate returns an *editerr.InputError naming the first out-of-range field.
func (c Configuration) Validate() error {
	if !positive(c.Size) {
		return editerr.Input("brush.size", "must be > 0, got %v", c.Size)
	}
	if !unit(c.Hardness) {
		return editerr.Input("brush.hardness", "must be in [0,1], got %v", c.Hardness)
	}
	if !unit(c.Opacity) {
		return editerr.Input("brush.opacity", "must be in [0,1], got %v", c.Opacity)
	}
	if !unit(c.Flow) {
		return editerr.Input("brush.flow", "must be in [0,1], got %v", c.Flow)
	}
	if !positive(c.Spacing) {
		return editerr.Input("brush.spacing", "must be > 0, got %v", c.Spacing)
	}
	if c.BlendMode < 0 || int(c.BlendMode) >= len(blendNames) {
		return editerr.Input("brush.blendMode", "unknown mode %d", int(c.BlendMode))
	}
	return nil
}

func positive(v float32) bool {
	return v > 0 && !math.IsInf(float64(v), 0) && !math.IsNaN(float64(v))
}

func unit(v float32) bool {
	return v >= 0 && v <= 1
}
