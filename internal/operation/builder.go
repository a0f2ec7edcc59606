package operation

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// Request gathers what the session knows when a gesture ends.
type Request struct {
	Tool       ToolType
	Brush      brush.Configuration
	Stroke     stroke.Stroke
	Intensity  float32
	Parameters map[string]float32
	// Region overrides the tool's default region. Empty means default.
	Region faceregion.Name
}

// Builder converts finished gestures into Operations.
type Builder struct {
	newID func() uuid.UUID
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithIDSource replaces the UUID generator, mainly for deterministic tests.
func WithIDSource(fn func() uuid.UUID) BuilderOption {
	return func(b *Builder) { b.newID = fn }
}

// NewBuilder returns a Builder that assigns random (v4) IDs.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{newID: uuid.New}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build validates the request and returns a new Operation. Empty strokes,
// unknown tools and out-of-range values are rejected with an
// *editerr.InputError; no Operation is created for them.
func (b *Builder) Build(req Request) (*Operation, error) {
	if err := validateFields(req.Tool, req.Brush, req.Stroke, req.Intensity, req.Parameters); err != nil {
		log.Debug().
			Err(err).
			Str("tool", string(req.Tool)).
			Int("points", len(req.Stroke)).
			Msg("Rejected stroke")
		return nil, err
	}

	region := req.Region
	if region == "" {
		spec, _ := req.Tool.Spec()
		region = spec.Region
	}

	return &Operation{
		id:        b.newID(),
		tool:      req.Tool,
		brush:     req.Brush,
		stroke:    req.Stroke.Clone(),
		intensity: req.Intensity,
		params:    cloneParams(req.Parameters),
		region:    region,
	}, nil
}
