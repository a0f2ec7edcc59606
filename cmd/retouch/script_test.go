package main

import (
	"context"
	"image/color"
	"strings"
	"testing"

	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/kernel"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/session"
)

func testSession(t *testing.T, opts ...session.Option) *session.Controller {
	t.Helper()
	img, err := raster.New(24, 24)
	if err != nil {
		t.Fatalf("raster.New: %v", err)
	}
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			v := uint8(60 + 6*x)
			img.Set(x, y, color.NRGBA{R: v, G: 255 - v, B: uint8(8 * y), A: 255})
		}
	}
	c, err := session.New(engine.New(kernel.NewRegistry()), img, opts...)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return c
}

func TestReadScriptRejectsUnknownFields(t *testing.T) {
	if _, err := ReadScript(strings.NewReader(`{"steps": [{"tol": "blush"}]}`)); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := ReadScript(strings.NewReader(`{"steps": [`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestScriptRun(t *testing.T) {
	script, err := ReadScript(strings.NewReader(`{"steps": [
		{"tool": "skinSmoothing", "intensity": 0.7, "stroke": [{"x": 10, "y": 10, "p": 1}, {"x": 14, "y": 12, "p": 0.5}]},
		{"category": "mouth", "tool": "teethWhitening", "brush": {"size": 12, "hardness": 1, "opacity": 1, "flow": 1, "spacing": 0.5, "blendMode": "screen"},
		 "stroke": [{"x": 5, "y": 5, "p": 1}]},
		{"action": "undo"},
		{"action": "redo"},
		{"action": "undo"}
	]}`))
	if err != nil {
		t.Fatalf("ReadScript: %v", err)
	}

	c := testSession(t)
	if err := script.Run(context.Background(), c); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.OperationCount() != 1 || !c.CanRedo() {
		t.Errorf("expected one applied and one redoable operation, got %d", c.OperationCount())
	}
	if c.Tool() != operation.TeethWhitening || c.Intensity() != 0.7 || c.Brush().Size != 12 {
		t.Errorf("expected settings to persist, got %s %v %+v", c.Tool(), c.Intensity(), c.Brush())
	}
	op := c.Operations()[0]
	if op.Tool() != operation.SkinSmoothing || op.StrokeLen() != 2 {
		t.Errorf("unexpected operation %s", op)
	}
}

func TestScriptRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"unknown action", `{"steps": [{"action": "rotate"}]}`, "unknown action"},
		{"empty stroke", `{"steps": [{"tool": "blush"}]}`, "stroke"},
		{"nothing to undo", `{"steps": [{"action": "undo"}]}`, "nothing to undo"},
		{"bad intensity", `{"steps": [{"intensity": 3, "stroke": [{"x": 1, "y": 1, "p": 1}]}]}`, "intensity"},
		{"palette without faces", `{"steps": [{"tool": "lipColor", "paletteColor": 1, "stroke": [{"x": 1, "y": 1, "p": 1}]}]}`, "palette color 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			script, err := ReadScript(strings.NewReader(tt.script))
			if err != nil {
				t.Fatalf("ReadScript: %v", err)
			}
			err = script.Run(context.Background(), testSession(t))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
			if err != nil && !strings.HasPrefix(err.Error(), "step 1") {
				t.Errorf("expected error to name the step, got %v", err)
			}
		})
	}
}

func TestScriptPaletteColor(t *testing.T) {
	lips := faceregion.RasterizePolygon(24, 24, [][2]float32{{0, 12}, {24, 12}, {24, 24}, {0, 24}})
	det := faceregion.StaticDetector{Map: faceregion.NewMap(24, 24, map[faceregion.Name]*faceregion.Mask{faceregion.Lips: lips})}
	c := testSession(t, session.WithDetector(det))

	script, err := ReadScript(strings.NewReader(`{"steps": [
		{"tool": "lipColor", "paletteColor": 1, "stroke": [{"x": 12, "y": 18, "p": 1}]}
	]}`))
	if err != nil {
		t.Fatalf("ReadScript: %v", err)
	}
	if err := script.Run(context.Background(), c); err != nil {
		t.Fatalf("Run: %v", err)
	}
	op := c.Operations()[0]
	if _, ok := op.Parameter(operation.ParamColorR); !ok {
		t.Errorf("expected color parameters from the palette, got %v", op.Parameters())
	}
	if op.Region() != faceregion.Lips {
		t.Errorf("expected lips region, got %s", op.Region())
	}
}
