package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/session"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// Script step actions.
const (
	actionStroke = "stroke"
	actionUndo   = "undo"
	actionRedo   = "redo"
	actionReset  = "reset"
)

// Script is a recorded editing session: the gestures and history commands a
// UI would have sent, in order.
type Script struct {
	Steps []Step `json:"steps"`
}

// Step is one script entry. Settings fields are applied before a stroke and
// stay in effect for later strokes, the way a UI keeps its tool settings.
type Step struct {
	Action     string               `json:"action,omitempty"` // default stroke
	Tool       operation.ToolType   `json:"tool,omitempty"`
	Category   operation.Category   `json:"category,omitempty"`
	Brush      *brush.Configuration `json:"brush,omitempty"`
	Intensity  *float32             `json:"intensity,omitempty"`
	Region     faceregion.Name      `json:"region,omitempty"`
	Parameters map[string]float32   `json:"parameters,omitempty"`
	// PaletteColor picks the n-th color (1-based) of the region palette.
	PaletteColor int           `json:"paletteColor,omitempty"`
	Stroke       stroke.Stroke `json:"stroke,omitempty"`
}

// ReadScript decodes a Script from JSON.
func ReadScript(r io.Reader) (*Script, error) {
	var s Script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode edit script: %w", err)
	}
	return &s, nil
}

// ReadScriptFile reads a Script from path.
func ReadScriptFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edit script: %w", err)
	}
	defer f.Close()
	return ReadScript(f)
}

// Run drives c through every step. Strokes are fed point by point through
// the gesture accumulator.
func (s *Script) Run(ctx context.Context, c *session.Controller) error {
	for i, step := range s.Steps {
		if err := step.run(ctx, c); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.action(), err)
		}
		log.Debug().Int("step", i+1).Str("action", step.action()).Int("operations", c.OperationCount()).Msg("Script step done")
	}
	return nil
}

func (st Step) action() string {
	if st.Action == "" {
		return actionStroke
	}
	return st.Action
}

func (st Step) run(ctx context.Context, c *session.Controller) error {
	switch st.action() {
	case actionUndo:
		return c.Undo(ctx)
	case actionRedo:
		return c.Redo(ctx)
	case actionReset:
		return c.Reset()
	case actionStroke:
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}

	if err := st.applySettings(ctx, c); err != nil {
		return err
	}
	c.BeginStroke()
	for _, p := range st.Stroke {
		c.AddPoint(p.X, p.Y, p.Pressure)
	}
	_, err := c.EndStroke(ctx)
	return err
}

func (st Step) applySettings(ctx context.Context, c *session.Controller) error {
	if st.Category != "" {
		if err := c.SelectCategory(st.Category); err != nil {
			return err
		}
	}
	if st.Tool != "" {
		if err := c.SelectTool(st.Tool); err != nil {
			return err
		}
	}
	if st.Brush != nil {
		if err := c.SetBrush(*st.Brush); err != nil {
			return err
		}
	}
	if st.Intensity != nil {
		if err := c.SetIntensity(*st.Intensity); err != nil {
			return err
		}
	}
	if st.Region != "" {
		c.SetRegion(st.Region)
	}
	for k, v := range st.Parameters {
		if err := c.SetParameter(k, v); err != nil {
			return err
		}
	}
	if st.PaletteColor > 0 {
		p, err := c.Palette(ctx, "")
		if err != nil {
			return err
		}
		if p == nil || st.PaletteColor > len(p.RegionSamples) {
			return fmt.Errorf("palette color %d not available for region %s", st.PaletteColor, c.Region())
		}
		c.UsePaletteColor(p.RegionSamples[st.PaletteColor-1])
	}
	return nil
}
