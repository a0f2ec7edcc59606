// Package engine applies a single Operation to an image buffer.
//
// The engine owns no pixels. Its job is validation, dispatch of the
// operation to the raster kernel registered for the tool's family, timing,
// and wrapping every failure as an *editerr.ApplicationError. Kernels get a
// private copy of the input, so the caller's buffer (in particular the
// session's original image) is never modified. Given identical bytes and an
// identical Operation the result is identical; undo-by-replay depends on it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/brush"
	"github.com/fpang/beauty-retouch/internal/editerr"
	"github.com/fpang/beauty-retouch/internal/faceregion"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
	"github.com/fpang/beauty-retouch/internal/stroke"
)

// Request is everything a kernel may read. Image is a private copy the
// kernel may modify and return.
type Request struct {
	Image      *raster.Image
	Tool       operation.ToolType
	Brush      brush.Configuration
	Stroke     stroke.Stroke
	Intensity  float32
	Parameters map[string]float32
	// Mask is the resolved face region, or nil when the operation is not
	// region-scoped or the region was not detected.
	Mask *faceregion.Mask
}

// Kernel is a deterministic, stateless raster transform for one tool family.
type Kernel interface {
	Transform(ctx context.Context, req Request) (*raster.Image, error)
}

// KernelFunc adapts a function to the Kernel interface.
type KernelFunc func(ctx context.Context, req Request) (*raster.Image, error)

// Transform calls f.
func (f KernelFunc) Transform(ctx context.Context, req Request) (*raster.Image, error) {
	return f(ctx, req)
}

// Registry maps tool families to kernels.
type Registry struct {
	mu      sync.RWMutex
	kernels map[operation.Family]Kernel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[operation.Family]Kernel)}
}

// Register installs k for family f, replacing any previous kernel.
func (r *Registry) Register(f operation.Family, k Kernel) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[f] = k
	return r
}

// Lookup returns the kernel for f.
func (r *Registry) Lookup(f operation.Family) (Kernel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[f]
	return k, ok
}

// Result is a successful application.
type Result struct {
	Image   *raster.Image
	Elapsed time.Duration
}

// Engine validates, dispatches and times operations.
type Engine struct {
	registry *Registry
	regions  atomic.Pointer[faceregion.Map]
	metrics  *metrics.Sink
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sends one EMF record per application to sink.
func WithMetrics(sink *metrics.Sink) Option {
	return func(e *Engine) { e.metrics = sink }
}

// WithClock replaces time.Now for timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRegions sets the initial face-region map.
func WithRegions(m *faceregion.Map) Option {
	return func(e *Engine) { e.regions.Store(m) }
}

// New returns an Engine dispatching through registry.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{registry: registry, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetRegions replaces the face-region map used to scope region-aware tools.
// Sessions set it once, before the first region-scoped operation, so that
// replays see the same masks as the original application.
func (e *Engine) SetRegions(m *faceregion.Map) {
	e.regions.Store(m)
}

// Regions returns the current face-region map, which may be nil.
func (e *Engine) Regions() *faceregion.Map {
	return e.regions.Load()
}

// Apply runs op against img and returns the new image and elapsed time.
// img is not modified.
func (e *Engine) Apply(ctx context.Context, img *raster.Image, op *operation.Operation) (Result, error) {
	start := e.now()

	res, err := e.apply(ctx, img, op)
	elapsed := e.now().Sub(start)
	e.record(op, elapsed, err)

	if err != nil {
		return Result{}, err
	}
	res.Elapsed = elapsed
	return res, nil
}

func (e *Engine) apply(ctx context.Context, img *raster.Image, op *operation.Operation) (Result, error) {
	if op == nil {
		return Result{}, &editerr.ApplicationError{Kind: editerr.KindInvalidParameters, Err: errors.New("nil operation")}
	}
	fail := func(kind editerr.ApplicationErrorKind, err error) (Result, error) {
		return Result{}, &editerr.ApplicationError{
			Kind:        kind,
			Tool:        string(op.Tool()),
			OperationID: op.ID().String(),
			Err:         err,
		}
	}

	if img == nil || len(img.Pix) != 4*img.Width*img.Height {
		return fail(editerr.KindInvalidParameters, errors.New("missing or malformed input image"))
	}
	if !op.Tool().Known() {
		return fail(editerr.KindUnsupportedTool, fmt.Errorf("unknown tool %q", op.Tool()))
	}
	if err := op.Validate(); err != nil {
		return fail(editerr.KindInvalidParameters, err)
	}

	spec, _ := op.Tool().Spec()
	kernel, ok := e.registry.Lookup(spec.Family)
	if !ok {
		return fail(editerr.KindUnsupportedTool, fmt.Errorf("no kernel registered for family %q", spec.Family))
	}

	var mask *faceregion.Mask
	if op.Region() != "" {
		mask, _ = e.regions.Load().Get(op.Region())
	}
	if spec.RequiresRegion && mask == nil {
		return fail(editerr.KindInvalidParameters, fmt.Errorf("region %q not detected", op.Region()))
	}

	if err := ctx.Err(); err != nil {
		return fail(editerr.KindCancelled, err)
	}

	out, err := kernel.Transform(ctx, Request{
		Image:      img.Clone(),
		Tool:       op.Tool(),
		Brush:      op.Brush(),
		Stroke:     op.Stroke(),
		Intensity:  op.Intensity(),
		Parameters: op.Parameters(),
		Mask:       mask,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(editerr.KindCancelled, ctxErr)
		}
		return fail(editerr.KindKernelFailure, err)
	}
	if out == nil || out.Width != img.Width || out.Height != img.Height || len(out.Pix) != len(img.Pix) {
		return fail(editerr.KindKernelFailure, errors.New("kernel returned an image of the wrong size"))
	}
	// The caller stopped waiting; the result will be discarded.
	if err := ctx.Err(); err != nil {
		return fail(editerr.KindCancelled, err)
	}
	return Result{Image: out}, nil
}

func (e *Engine) record(op *operation.Operation, elapsed time.Duration, err error) {
	tool := ""
	if op != nil {
		tool = string(op.Tool())
	}

	rec := e.metrics.New().
		Dimension("Tool", tool).
		Duration("ApplyLatency", elapsed)

	if err != nil {
		kind := "unknown"
		var appErr *editerr.ApplicationError
		if errors.As(err, &appErr) {
			kind = appErr.Kind.String()
		}
		rec.Count("ApplyFailed").Property("errorKind", kind).Flush()
		log.Warn().
			Err(err).
			Str("tool", tool).
			Str("kind", kind).
			Dur("elapsed", elapsed).
			Msg("Operation application failed")
		return
	}

	rec.Count("Applied").Property("operationId", op.ID().String()).Flush()
	log.Debug().
		Str("tool", tool).
		Str("op", op.ID().String()).
		Int("points", op.StrokeLen()).
		Dur("elapsed", elapsed).
		Msg("Operation applied")
}
