// Package history owns the operation log of one editing session and keeps
// the working image equal to the fold of that log over the original.
//
// Apply and Redo extend the working image by one engine call. Undo cannot
// subtract a brush stroke, so it replays every remaining operation from the
// original image and swaps the result in only if the whole replay succeeds.
// Exactly one mutation may be in flight; anything requested while the
// manager is busy fails with an *editerr.ConcurrencyError and changes
// nothing.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/editerr"
	"github.com/fpang/beauty-retouch/internal/engine"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/operation"
	"github.com/fpang/beauty-retouch/internal/raster"
)

// State is the manager's position in its state machine.
type State int

const (
	Idle State = iota
	Applying
	Replaying
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Applying:
		return "applying"
	case Replaying:
		return "replaying"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Applier applies one operation to an image without modifying the input.
// *engine.Engine satisfies it.
type Applier interface {
	Apply(ctx context.Context, img *raster.Image, op *operation.Operation) (engine.Result, error)
}

// Manager is the single writer of a session's working image.
type Manager struct {
	applier Applier
	metrics *metrics.Sink
	now     func() time.Time

	mu       sync.Mutex
	state    State
	original *raster.Image
	working  *raster.Image
	applied  []*operation.Operation
	redo     []*operation.Operation
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records replay length and latency to sink.
func WithMetrics(sink *metrics.Sink) Option {
	return func(m *Manager) { m.metrics = sink }
}

// WithClock replaces time.Now for replay timing.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New starts an empty history over original. The manager keeps its own
// copy, so later changes to original have no effect.
func New(applier Applier, original *raster.Image, opts ...Option) (*Manager, error) {
	if applier == nil {
		return nil, errors.New("history: nil applier")
	}
	if original == nil || len(original.Pix) != 4*original.Width*original.Height || original.Width <= 0 || original.Height <= 0 {
		return nil, editerr.Input("original", "missing or malformed image")
	}
	orig := original.Clone()
	m := &Manager{
		applier:  applier,
		now:      time.Now,
		original: orig,
		working:  orig,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Apply runs op against the working image. On success the working image is
// replaced, op (stamped with its processing time) is appended and the redo
// stack is cleared. On failure or cancellation nothing changes.
func (m *Manager) Apply(ctx context.Context, op *operation.Operation) error {
	if op == nil {
		return editerr.Input("operation", "must not be nil")
	}

	m.mu.Lock()
	if m.state != Idle {
		defer m.mu.Unlock()
		return m.busy("apply")
	}
	m.state = Applying
	working := m.working
	m.mu.Unlock()

	res, err := m.run(ctx, working, op)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	if err != nil {
		return err
	}
	m.working = res.Image
	m.applied = append(m.applied, op.WithProcessingTime(res.Elapsed))
	if len(m.redo) > 0 {
		log.Debug().Int("discarded", len(m.redo)).Msg("Redo stack cleared by new operation")
	}
	m.redo = nil
	return nil
}

// Undo drops the last applied operation by replaying the rest from the
// original image. The replay is all-or-nothing: on failure the log, redo
// stack and working image keep their previous values and a
// *editerr.ReplayError is returned. Undo ignores cancellation of ctx.
func (m *Manager) Undo(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if m.state != Idle {
		defer m.mu.Unlock()
		return m.busy("undo")
	}
	n := len(m.applied)
	if n == 0 {
		m.mu.Unlock()
		return editerr.ErrNothingToUndo
	}
	m.state = Replaying
	keep := append([]*operation.Operation(nil), m.applied[:n-1]...)
	popped := m.applied[n-1]
	original := m.original
	m.mu.Unlock()

	img, err := m.replay(ctx, "undo", original, keep)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	if err != nil {
		return err
	}
	m.working = img
	m.applied = keep
	m.redo = append(m.redo, popped)
	return nil
}

// Redo re-applies the most recently undone operation as a single step.
// On failure the operation stays on the redo stack. Redo ignores
// cancellation of ctx.
func (m *Manager) Redo(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	m.mu.Lock()
	if m.state != Idle {
		defer m.mu.Unlock()
		return m.busy("redo")
	}
	n := len(m.redo)
	if n == 0 {
		m.mu.Unlock()
		return editerr.ErrNothingToRedo
	}
	m.state = Applying
	op := m.redo[n-1]
	working := m.working
	m.mu.Unlock()

	res, err := m.run(ctx, working, op)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	if err != nil {
		return err
	}
	m.working = res.Image
	m.applied = append(m.applied, op)
	m.redo = m.redo[:n-1]
	return nil
}

// Reset discards every operation and returns the working image to the
// original. Calling it again is a no-op.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return m.busy("reset")
	}
	m.applied = nil
	m.redo = nil
	m.working = m.original
	return nil
}

// Restore replaces the log with ops, replaying them from the original
// image. Like Undo it either fully succeeds or leaves the manager untouched.
// Cancelling ctx aborts the replay without changing state.
func (m *Manager) Restore(ctx context.Context, ops []*operation.Operation) error {
	for i, op := range ops {
		if op == nil {
			return editerr.Input(fmt.Sprintf("operations[%d]", i), "must not be nil")
		}
	}

	m.mu.Lock()
	if m.state != Idle {
		defer m.mu.Unlock()
		return m.busy("restore")
	}
	m.state = Replaying
	original := m.original
	m.mu.Unlock()

	keep := append([]*operation.Operation(nil), ops...)
	img, err := m.replay(ctx, "restore", original, keep)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	if err != nil {
		return err
	}
	m.working = img
	m.applied = keep
	m.redo = nil
	return nil
}

// State reports the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Working returns a copy of the working image.
func (m *Manager) Working() *raster.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.working.Clone()
}

// Original returns a copy of the original image.
func (m *Manager) Original() *raster.Image {
	return m.original.Clone()
}

// Applied returns the applied operations, oldest first.
func (m *Manager) Applied() []*operation.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*operation.Operation(nil), m.applied...)
}

// Redoable returns the redo stack, oldest undo first; the next Redo takes
// the last element.
func (m *Manager) Redoable() []*operation.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*operation.Operation(nil), m.redo...)
}

// Snapshot returns the working image and applied log as one consistent
// pair. It fails with a ConcurrencyError while a mutation is in flight.
func (m *Manager) Snapshot() (*raster.Image, []*operation.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return nil, nil, m.busy("snapshot")
	}
	return m.working.Clone(), append([]*operation.Operation(nil), m.applied...), nil
}

// Len is the number of applied operations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Idle && len(m.applied) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Idle && len(m.redo) > 0
}

// busy must be called with m.mu held.
func (m *Manager) busy(requested string) error {
	log.Debug().Str("requested", requested).Str("state", m.state.String()).Msg("Rejected request while busy")
	return &editerr.ConcurrencyError{Requested: requested, State: m.state.String()}
}

type outcome struct {
	res engine.Result
	err error
}

// run calls the applier on its own goroutine and waits for the result or
// for ctx to end. A cancelled run leaves the goroutine to finish on its
// own; its result is dropped.
func (m *Manager) run(ctx context.Context, img *raster.Image, op *operation.Operation) (engine.Result, error) {
	done := make(chan outcome, 1)
	go func() {
		res, err := m.applier.Apply(ctx, img, op)
		if ctx.Err() != nil {
			log.Debug().Str("op", op.ID().String()).Err(err).Msg("Dropped result of cancelled apply")
		}
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && o.res.Image == nil {
			return engine.Result{}, &editerr.ApplicationError{
				Kind:        editerr.KindKernelFailure,
				Tool:        string(op.Tool()),
				OperationID: op.ID().String(),
				Err:         errors.New("applier returned no image"),
			}
		}
		return o.res, o.err
	case <-ctx.Done():
		log.Info().Str("op", op.ID().String()).Str("tool", string(op.Tool())).Msg("Apply cancelled")
		return engine.Result{}, &editerr.ApplicationError{
			Kind:        editerr.KindCancelled,
			Tool:        string(op.Tool()),
			OperationID: op.ID().String(),
			Err:         ctx.Err(),
		}
	}
}

// replay folds ops over original. The returned image is never original
// itself when ops is non-empty.
func (m *Manager) replay(ctx context.Context, reason string, original *raster.Image, ops []*operation.Operation) (*raster.Image, error) {
	start := m.now()
	img := original
	var err error
	for i, op := range ops {
		var res engine.Result
		res, err = m.run(ctx, img, op)
		if err != nil {
			err = &editerr.ReplayError{Index: i, OperationID: op.ID().String(), Err: err}
			break
		}
		img = res.Image
	}
	elapsed := m.now().Sub(start)

	rec := m.metrics.New().
		Dimension("Replay", reason).
		Metric("ReplayLength", float64(len(ops)), metrics.UnitCount).
		Duration("ReplayLatency", elapsed)
	if err != nil {
		rec.Count("ReplayFailed").Flush()
		log.Warn().Err(err).Str("reason", reason).Int("operations", len(ops)).Msg("Replay failed, history unchanged")
		return nil, err
	}
	rec.Count("Replayed").Flush()
	log.Debug().Str("reason", reason).Int("operations", len(ops)).Dur("elapsed", elapsed).Msg("Replay complete")
	return img, nil
}
