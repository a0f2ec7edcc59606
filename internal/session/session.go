// Package session ties one photo's editing state together: the selected
// tool and brush, the in-progress gesture, the operation history, face
// regions, palettes and persistence. It is the surface a UI or the CLI
// drives.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/codec"
	"github.com/fpang/beauty-retouch/internal/editerr"
	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/history"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/palette"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/store"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// DefaultIntensity is the intensity a new session starts with.
const DefaultIntensity float32 = 0.5

// ErrNoStore is returned by Save and Resume when no edit store is set.
var ErrNoStore = errors.New("no edit store configured")

// Controller is one editing session. Mutations of the image are serialized
// by the history manager; settings and touch input may change at any time.
type Controller struct {
	history  *history.Manager
	engine   *engine.Engine
	detector faceregion.Detector
	store    store.EditStore
	palette  *palette.Generator
	builder  *operation.Builder
	metrics  *metrics.Sink
	now      func() time.Time

	ref        string
	format     string
	sourcePath string
	source     *codec.Metadata
	initBrush  brush.Configuration

	acc stroke.Accumulator

	mu        sync.Mutex
	tool      operation.ToolType
	brush     brush.Configuration
	intensity float32
	params    map[string]float32
	region    faceregion.Name

	faceMu   sync.Mutex
	detected bool

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

// WithDetector sets the face detector used by DetectFaces.
func WithDetector(d faceregion.Detector) Option {
	return func(c *Controller) { c.detector = d }
}

// WithStore sets where Save and Resume persist the session.
func WithStore(s store.EditStore) Option {
	return func(c *Controller) { c.store = s }
}

// WithPalette replaces the default palette generator.
func WithPalette(g *palette.Generator) Option {
	return func(c *Controller) { c.palette = g }
}

// WithBuilder replaces the default operation builder.
func WithBuilder(b *operation.Builder) Option {
	return func(c *Controller) { c.builder = b }
}

// WithFormat sets the encoding of the saved working image.
func WithFormat(format string) Option {
	return func(c *Controller) { c.format = format }
}

// WithSource records where the original came from and its EXIF metadata.
// meta may be nil.
func WithSource(path string, meta *codec.Metadata) Option {
	return func(c *Controller) {
		c.sourcePath = path
		c.source = meta
	}
}

// WithBrush sets the starting brush.
func WithBrush(cfg brush.Configuration) Option {
	return func(c *Controller) { c.initBrush = cfg }
}

// WithMetrics sets the EMF sink for history and save metrics.
func WithMetrics(sink *metrics.Sink) Option {
	return func(c *Controller) { c.metrics = sink }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New starts a session over original with an empty history.
func New(eng *engine.Engine, original *raster.Image, opts ...Option) (*Controller, error) {
	if eng == nil {
		return nil, errors.New("session: nil engine")
	}
	c := &Controller{
		engine:    eng,
		now:       time.Now,
		format:    codec.FormatPNG,
		initBrush: brush.Default(),
		intensity: DefaultIntensity,
		tool:      operation.SkinSmoothing,
		subs:      make(map[int]func(Event)),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.initBrush.Validate(); err != nil {
		return nil, err
	}
	c.brush = c.initBrush
	if c.palette == nil {
		c.palette = palette.NewGenerator()
	}
	if c.builder == nil {
		c.builder = operation.NewBuilder()
	}
	if c.metrics == nil {
		c.metrics = metrics.Discard()
	}

	h, err := history.New(eng, original, history.WithMetrics(c.metrics), history.WithClock(c.now))
	if err != nil {
		return nil, err
	}
	c.history = h
	c.ref = store.RefFor(original.Fingerprint())

	log.Debug().
		Str("ref", c.ref).
		Int("width", original.Width).
		Int("height", original.Height).
		Msg("Session started")
	return c, nil
}

// Ref identifies the original image in the edit store.
func (c *Controller) Ref() string { return c.ref }

// --- tool settings ---

// SelectTool makes t the current tool. Parameters and any region override
// belong to the previous tool and are cleared.
func (c *Controller) SelectTool(t operation.ToolType) error {
	if !t.Known() {
		return editerr.Input("tool", "unknown tool %q", t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tool != t {
		c.params = nil
		c.region = ""
	}
	c.tool = t
	log.Debug().Str("tool", string(t)).Msg("Tool selected")
	return nil
}

// SelectCategory selects the first tool of a menu category.
func (c *Controller) SelectCategory(cat operation.Category) error {
	tools := operation.ToolsIn(cat)
	if len(tools) == 0 {
		return editerr.Input("category", "unknown category %q", cat)
	}
	return c.SelectTool(tools[0].Tool)
}

// Tool returns the current tool.
func (c *Controller) Tool() operation.ToolType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

// Brush returns the current brush.
func (c *Controller) Brush() brush.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brush
}

// SetBrush replaces the current brush. Operations already built keep the
// brush they were built with.
func (c *Controller) SetBrush(cfg brush.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush = cfg
	return nil
}

// Intensity returns the current intensity.
func (c *Controller) Intensity() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intensity
}

// SetIntensity sets the strength of the next operations, in [0,1].
func (c *Controller) SetIntensity(v float32) error {
	if !(v >= 0 && v <= 1) {
		return editerr.Input("intensity", "must be in [0,1], got %v", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intensity = v
	return nil
}

// SetParameter sets a tool parameter for the next operations.
func (c *Controller) SetParameter(key string, v float32) error {
	if key == "" {
		return editerr.Input("parameter", "name must not be empty")
	}
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return editerr.Input("parameters."+key, "must be finite")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		c.params = make(map[string]float32)
	}
	c.params[key] = v
	return nil
}

// UsePaletteColor sets the color parameters from a palette entry.
func (c *Controller) UsePaletteColor(info palette.ColorInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.params == nil {
		c.params = make(map[string]float32)
	}
	for k, v := range info.Parameters() {
		c.params[k] = v
	}
}

// Parameters returns a copy of the current tool parameters.
func (c *Controller) Parameters() map[string]float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float32, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// SetRegion overrides the region of the next operations. An empty name
// restores the tool's default region.
func (c *Controller) SetRegion(name faceregion.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = name
}

// Region returns the region the next operation will be scoped to.
func (c *Controller) Region() faceregion.Name {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveRegion()
}

// effectiveRegion must be called with c.mu held.
func (c *Controller) effectiveRegion() faceregion.Name {
	if c.region != "" {
		return c.region
	}
	spec, _ := c.tool.Spec()
	return spec.Region
}

// --- gestures ---

// BeginStroke starts collecting touch samples.
func (c *Controller) BeginStroke() { c.acc.Begin() }

// AddPoint records a touch sample. Samples outside a gesture are dropped.
func (c *Controller) AddPoint(x, y, pressure float32) { c.acc.AddPoint(x, y, pressure) }

// StrokeActive reports whether a gesture is in progress.
func (c *Controller) StrokeActive() bool { return c.acc.Active() }

// EndStroke finishes the gesture and applies it with the current settings.
func (c *Controller) EndStroke(ctx context.Context) (*operation.Operation, error) {
	return c.ApplyStroke(ctx, c.acc.End())
}

// ApplyStroke builds an operation from s and the current settings and
// applies it. An empty stroke is rejected without touching the history.
func (c *Controller) ApplyStroke(ctx context.Context, s stroke.Stroke) (*operation.Operation, error) {
	if len(s) == 0 {
		return nil, editerr.Input("stroke", "must contain at least one point")
	}

	c.mu.Lock()
	req := operation.Request{
		Tool:       c.tool,
		Brush:      c.brush,
		Stroke:     s,
		Intensity:  c.intensity,
		Parameters: c.params,
		Region:     c.effectiveRegion(),
	}
	op, err := c.builder.Build(req)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if op.Region() != "" {
		if _, err := c.DetectFaces(ctx); err != nil {
			return nil, err
		}
	}

	if err := c.history.Apply(ctx, op); err != nil {
		return nil, err
	}
	c.notify(EventApplied)
	return op, nil
}

// --- history ---

// Undo reverts the most recent operation.
func (c *Controller) Undo(ctx context.Context) error {
	if err := c.history.Undo(ctx); err != nil {
		return err
	}
	c.notify(EventUndone)
	return nil
}

// Redo re-applies the most recently undone operation.
func (c *Controller) Redo(ctx context.Context) error {
	if err := c.history.Redo(ctx); err != nil {
		return err
	}
	c.notify(EventRedone)
	return nil
}

// Reset drops every operation and returns to the original.
func (c *Controller) Reset() error {
	if err := c.history.Reset(); err != nil {
		return err
	}
	c.notify(EventReset)
	return nil
}

// HasChanges reports whether any operation is applied.
func (c *Controller) HasChanges() bool { return c.history.Len() > 0 }

// OperationCount is the number of applied operations.
func (c *Controller) OperationCount() int { return c.history.Len() }

func (c *Controller) CanUndo() bool { return c.history.CanUndo() }

func (c *Controller) CanRedo() bool { return c.history.CanRedo() }

// Working returns a copy of the current working image.
func (c *Controller) Working() *raster.Image { return c.history.Working() }

// Original returns a copy of the original image.
func (c *Controller) Original() *raster.Image { return c.history.Original() }

// Operations returns the applied operations, oldest first.
func (c *Controller) Operations() []*operation.Operation { return c.history.Applied() }

// State reports the history state.
func (c *Controller) State() history.State { return c.history.State() }

// --- face regions and palettes ---

// DetectFaces runs the detector over the original image once per session.
// Later calls return the cached result. Without a detector the engine's
// existing regions are kept. A failed detection is not cached.
func (c *Controller) DetectFaces(ctx context.Context) (*faceregion.Map, error) {
	c.faceMu.Lock()
	if c.detected {
		c.faceMu.Unlock()
		return c.engine.Regions(), nil
	}

	if c.detector == nil {
		c.detected = true
		c.faceMu.Unlock()
		log.Debug().Msg("No face detector configured")
		return c.engine.Regions(), nil
	}

	start := c.now()
	m, err := c.detector.Detect(ctx, c.history.Original())
	if err != nil {
		c.faceMu.Unlock()
		log.Warn().Err(err).Msg("Face detection failed")
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	c.engine.SetRegions(m)
	c.palette.Invalidate()
	c.detected = true
	c.faceMu.Unlock()

	names := m.Names()
	regions := make([]string, len(names))
	for i, n := range names {
		regions[i] = string(n)
	}
	log.Info().
		Strs("regions", regions).
		Dur("elapsed", c.now().Sub(start)).
		Msg("Face regions detected")
	c.notify(EventFacesDetected)
	return m, nil
}

// Palette returns the color palette for the current tool over region (the
// current region when empty), sampled from the original image. It returns
// nil when the region was not detected.
func (c *Controller) Palette(ctx context.Context, region faceregion.Name) (*palette.ColorPalette, error) {
	c.mu.Lock()
	tool := c.tool
	if region == "" {
		region = c.effectiveRegion()
	}
	c.mu.Unlock()
	if region == "" {
		return nil, editerr.Input("region", "tool %s has no default region", tool)
	}

	regions, err := c.DetectFaces(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := c.palette.Generate(tool, region, c.history.Original(), regions)
	if !ok {
		return nil, nil
	}
	return p, nil
}

// --- persistence ---

// Save writes the working image and applied log to the edit store.
func (c *Controller) Save(ctx context.Context) (*store.EditRecord, error) {
	if c.store == nil {
		return nil, ErrNoStore
	}
	start := c.now()

	working, ops, err := c.history.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := codec.EncodeBytes(working, c.format)
	if err != nil {
		return nil, err
	}

	rec := &store.EditRecord{
		Ref:                c.ref,
		SourcePath:         c.sourcePath,
		Width:              working.Width,
		Height:             working.Height,
		Format:             c.format,
		WorkingFingerprint: fingerprintHex(working),
		Provenance:         provenance(c.source),
		SavedAt:            c.now().UTC(),
		Operations:         operation.Records(ops),
	}
	if err := c.store.Save(ctx, rec, data); err != nil {
		return nil, fmt.Errorf("failed to save edit %s: %w", c.ref, err)
	}

	elapsed := c.now().Sub(start)
	c.metrics.New().
		Dimension("Store", fmt.Sprintf("%T", c.store)).
		Duration("SaveLatency", elapsed).
		Metric("SavedBytes", float64(len(data)), metrics.UnitBytes).
		Metric("SavedOperations", float64(len(ops)), metrics.UnitCount).
		Flush()
	log.Info().
		Str("ref", c.ref).
		Int("operations", len(ops)).
		Int("bytes", len(data)).
		Dur("elapsed", elapsed).
		Msg("Edit saved")
	c.notify(EventSaved)
	return rec, nil
}

// Resume loads the saved log for this image and replays it. It returns
// false when nothing was saved. A working image that replays differently
// from the saved one is logged, not rejected.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, ErrNoStore
	}
	rec, _, err := c.store.Load(ctx, c.ref)
	if err != nil {
		return false, fmt.Errorf("failed to load edit %s: %w", c.ref, err)
	}
	if rec == nil {
		log.Debug().Str("ref", c.ref).Msg("No saved edit to resume")
		return false, nil
	}

	ops, err := operation.FromRecords(rec.Operations)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.Region() != "" {
			if _, err := c.DetectFaces(ctx); err != nil {
				return false, err
			}
			break
		}
	}
	if err := c.history.Restore(ctx, ops); err != nil {
		return false, err
	}

	got := fingerprintHex(c.history.Working())
	if rec.WorkingFingerprint != "" && got != rec.WorkingFingerprint {
		log.Warn().
			Str("ref", c.ref).
			Str("saved", rec.WorkingFingerprint).
			Str("replayed", got).
			Msg("Replayed image differs from saved image")
	}
	log.Info().Str("ref", c.ref).Int("operations", len(ops)).Msg("Edit resumed")
	c.notify(EventRestored)
	return true, nil
}

// Discard drops the log and working image and any gesture in progress.
// The original and anything already saved are untouched.
func (c *Controller) Discard() error {
	if err := c.history.Reset(); err != nil {
		return err
	}
	c.acc.End()
	c.notify(EventDiscarded)
	return nil
}

// --- change notifications ---

// EventKind names what changed.
type EventKind string

const (
	EventApplied       EventKind = "applied"
	EventUndone        EventKind = "undone"
	EventRedone        EventKind = "redone"
	EventReset         EventKind = "reset"
	EventRestored      EventKind = "restored"
	EventSaved         EventKind = "saved"
	EventDiscarded     EventKind = "discarded"
	EventFacesDetected EventKind = "facesDetected"
)

// Event is delivered to subscribers after a change.
type Event struct {
	Kind           EventKind
	OperationCount int
	CanUndo        bool
	CanRedo        bool
}

// Subscribe registers fn for change events and returns a func that
// removes it. fn runs on the goroutine that made the change, in
// subscription order.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) notify(kind EventKind) {
	c.subMu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event), len(ids))
	for i, id := range ids {
		fns[i] = c.subs[id]
	}
	c.subMu.Unlock()

	if len(fns) == 0 {
		return
	}
	evt := Event{
		Kind:           kind,
		OperationCount: c.history.Len(),
		CanUndo:        c.history.CanUndo(),
		CanRedo:        c.history.CanRedo(),
	}
	for _, fn := range fns {
		fn(evt)
	}
}

func fingerprintHex(img *raster.Image) string {
	return fmt.Sprintf("%016x", img.Fingerprint())
}

func provenance(m *codec.Metadata) *store.Provenance {
	if m == nil {
		return nil
	}
	p := &store.Provenance{CameraMake: m.CameraMake, CameraModel: m.CameraModel}
	if m.HasDate {
		t := m.DateTaken.UTC()
		p.TakenAt = &t
	}
	if m.HasGPS {
		p.Latitude = m.Latitude
		p.Longitude = m.Longitude
	}
	return p
}
