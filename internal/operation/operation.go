// Package operation defines the immutable record of one applied retouching
// edit and the builder that turns a finished gesture into one.
//
// An Operation captures everything a raster kernel needs to reproduce the
// edit: tool, brush, the full stroke, intensity and tool parameters. The
// history engine relies on replaying the same Operation over the same bytes
// producing the same output, so nothing here may change after construction.
package operation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/editerr"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// Well-known parameter keys. Color channels are normalized to [0,1].
const (
	ParamColorR = "colorR"
	ParamColorG = "colorG"
	ParamColorB = "colorB"
)

// Operation is one immutable, ordered edit. Use Builder to create one.
type Operation struct {
	id             uuid.UUID
	tool           ToolType
	brush          brush.Configuration
	stroke         stroke.Stroke
	intensity      float32
	params         map[string]float32
	region         faceregion.Name
	processingTime time.Duration
}

func (o *Operation) ID() uuid.UUID              { return o.id }
func (o *Operation) Tool() ToolType             { return o.tool }
func (o *Operation) Brush() brush.Configuration { return o.brush }
func (o *Operation) Intensity() float32         { return o.intensity }
func (o *Operation) Region() faceregion.Name    { return o.region }

// ProcessingTime is how long the engine took to apply the operation the
// first time. Zero until the operation has been applied.
func (o *Operation) ProcessingTime() time.Duration { return o.processingTime }

// Stroke returns a copy of the stroke samples.
func (o *Operation) Stroke() stroke.Stroke { return o.stroke.Clone() }

// StrokeLen returns the number of samples without copying them.
func (o *Operation) StrokeLen() int { return len(o.stroke) }

// Parameters returns a copy of the tool parameters.
func (o *Operation) Parameters() map[string]float32 { return cloneParams(o.params) }

// Parameter looks up a single tool parameter.
func (o *Operation) Parameter(key string) (float32, bool) {
	v, ok := o.params[key]
	return v, ok
}

// Equal compares operations by identity.
func (o *Operation) Equal(other *Operation) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.id == other.id
}

// WithProcessingTime returns a copy of o carrying the measured duration.
// The copy shares o's identity.
func (o *Operation) WithProcessingTime(d time.Duration) *Operation {
	c := *o
	c.processingTime = d
	return &c
}

// Validate re-checks the invariants a Builder enforces. Operations decoded
// from storage go through it before they are replayed.
func (o *Operation) Validate() error {
	if o.id == uuid.Nil {
		return editerr.Input("id", "must not be nil")
	}
	return validateFields(o.tool, o.brush, o.stroke, o.intensity, o.params)
}

func (o *Operation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s intensity=%.2f points=%d", o.id, o.tool, o.intensity, len(o.stroke))
	if o.region != "" {
		fmt.Fprintf(&sb, " region=%s", o.region)
	}
	keys := make([]string, 0, len(o.params))
	for k := range o.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%.3f", k, o.params[k])
	}
	return sb.String()
}

// Record is the persisted form of an Operation. Field order and content are
// the contract for resuming an edit later.
type Record struct {
	ID               string              `json:"id" dynamodbav:"id"`
	Tool             ToolType            `json:"tool" dynamodbav:"tool"`
	Brush            brush.Configuration `json:"brush" dynamodbav:"brush"`
	Stroke           stroke.Stroke       `json:"stroke" dynamodbav:"stroke"`
	Intensity        float32             `json:"intensity" dynamodbav:"intensity"`
	Parameters       map[string]float32  `json:"parameters,omitempty" dynamodbav:"parameters,omitempty"`
	Region           faceregion.Name     `json:"region,omitempty" dynamodbav:"region,omitempty"`
	ProcessingTimeMs float64             `json:"processingTimeMs" dynamodbav:"processingTimeMs"`
}

// Record converts o to its persisted form.
func (o *Operation) Record() Record {
	return Record{
		ID:               o.id.String(),
		Tool:             o.tool,
		Brush:            o.brush,
		Stroke:           o.stroke.Clone(),
		Intensity:        o.intensity,
		Parameters:       cloneParams(o.params),
		Region:           o.region,
		ProcessingTimeMs: float64(o.processingTime) / float64(time.Millisecond),
	}
}

// FromRecord rebuilds and validates an Operation from its persisted form.
func FromRecord(r Record) (*Operation, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, editerr.Input("id", "%v", err)
	}
	op := &Operation{
		id:             id,
		tool:           r.Tool,
		brush:          r.Brush,
		stroke:         r.Stroke.Clone(),
		intensity:      r.Intensity,
		params:         cloneParams(r.Parameters),
		region:         r.Region,
		processingTime: time.Duration(r.ProcessingTimeMs * float64(time.Millisecond)),
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// MarshalJSON encodes the operation as its Record.
func (o *Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Record())
}

// UnmarshalJSON decodes and validates a Record.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	op, err := FromRecord(r)
	if err != nil {
		return err
	}
	*o = *op
	return nil
}

// Records converts a sequence of operations, preserving order.
func Records(ops []*Operation) []Record {
	out := make([]Record, len(ops))
	for i, op := range ops {
		out[i] = op.Record()
	}
	return out
}

// FromRecords converts persisted records back, preserving order.
func FromRecords(recs []Record) ([]*Operation, error) {
	out := make([]*Operation, len(recs))
	for i, r := range recs {
		op, err := FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out[i] = op
	}
	return out, nil
}

func validateFields(tool ToolType, b brush.Configuration, s stroke.Stroke, intensity float32, params map[string]float32) error {
	if !tool.Known() {
		return editerr.Input("tool", "unknown tool %q", tool)
	}
	if len(s) == 0 {
		return editerr.Input("stroke", "stroke has no points")
	}
	for i, p := range s {
		if !finite(p.X) || !finite(p.Y) {
			return editerr.Input("stroke", "point %d is not finite", i)
		}
		if p.Pressure < 0 || p.Pressure > 1 {
			return editerr.Input("stroke", "point %d pressure %v outside [0,1]", i, p.Pressure)
		}
	}
	if !(intensity >= 0 && intensity <= 1) {
		return editerr.Input("intensity", "must be in [0,1], got %v", intensity)
	}
	if err := b.Validate(); err != nil {
		return err
	}
	for k, v := range params {
		if !finite(v) {
			return editerr.Input("parameters", "%s is not finite", k)
		}
	}
	return nil
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func cloneParams(p map[string]float32) map[string]float32 {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]float32, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
