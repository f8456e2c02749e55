package ast

import (
	"context"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
)

// Base is the embeddable runtime state every AST implementation carries:
// the pause/cancel gate and event reporting. It is not persisted — it
// exists only for the lifetime of one execution. Per-item screenshots are
// NOT stored here; see ScreenshotSink.
//
// The pause gate generalizes the checked-callback idiom (a loop polls a
// "should I stop" predicate at each boundary) into a blocking gate: instead
// of busy-polling, WaitIfPaused parks the caller on a channel that Resume or
// Cancel closes, so a paused executor consumes no CPU between pause and
// resume/cancel.
type Base struct {
	mu          sync.Mutex
	paused      bool
	cancelled   bool
	resumeCh    chan struct{}
	executionID string

	bus       *events.Bus
	sessionID string
}

// Init binds the runtime state to one execution. Called once by the Runner
// before dispatching to an executor.
func (b *Base) Init(executionID, sessionID string, bus *events.Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executionID = executionID
	b.sessionID = sessionID
	b.bus = bus
	b.paused = false
	b.cancelled = false
	b.resumeCh = nil
}

// ExecutionID returns the execution this runtime state is bound to.
func (b *Base) ExecutionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executionID
}

// Pause requests the AST to suspend at its next boundary check.
func (b *Base) Pause() {
	b.mu.Lock()
	if !b.paused && !b.cancelled {
		b.paused = true
		b.resumeCh = make(chan struct{})
	}
	paused := b.paused
	b.mu.Unlock()

	if paused {
		b.publishPauseState(true)
	}
}

// Resume releases a pending pause.
func (b *Base) Resume() {
	b.mu.Lock()
	wasPaused := b.paused
	if b.paused {
		b.paused = false
		close(b.resumeCh)
	}
	b.mu.Unlock()

	if wasPaused {
		b.publishPauseState(false)
	}
}

// Cancel sets the cancellation flag and releases any pending pause gate.
func (b *Base) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	if b.paused {
		b.paused = false
		close(b.resumeCh)
	}
	b.mu.Unlock()
}

// IsCancelled reports whether Cancel has been called.
func (b *Base) IsCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// WaitIfPaused blocks while paused and returns false immediately (or upon
// wake) if the run has been cancelled. A zero timeout waits indefinitely.
func (b *Base) WaitIfPaused(timeout time.Duration) bool {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return false
	}
	if !b.paused {
		b.mu.Unlock()
		return true
	}
	ch := b.resumeCh
	b.mu.Unlock()

	if timeout <= 0 {
		<-ch
	} else {
		select {
		case <-ch:
		case <-time.After(timeout):
		}
	}

	return !b.IsCancelled()
}

// screenshotSinkKey is the context key under which a ScreenshotSink is
// stashed for the duration of one ProcessSingleItem/Logoff call.
type screenshotSinkKey struct{}

// ScreenshotSink accumulates the screenshots captured during one call into
// an AST (one item's ProcessSingleItem, or one worker's Logoff). It is
// created fresh per call and threaded through ctx rather than stored on
// Base, so concurrent parallel workers driving the same AST instance never
// share a buffer.
type ScreenshotSink struct {
	mu    sync.Mutex
	shots []string
}

func (s *ScreenshotSink) capture(shot string) {
	s.mu.Lock()
	s.shots = append(s.shots, shot)
	s.mu.Unlock()
}

// Snapshot returns a copy of the screenshots captured so far.
func (s *ScreenshotSink) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.shots))
	copy(out, s.shots)
	return out
}

// WithScreenshotSink returns ctx carrying a fresh ScreenshotSink, along with
// the sink itself so the caller can read back what was captured once the
// call using ctx returns.
func WithScreenshotSink(ctx context.Context) (context.Context, *ScreenshotSink) {
	s := &ScreenshotSink{}
	return context.WithValue(ctx, screenshotSinkKey{}, s), s
}

// CaptureScreenshot snapshots the emulator's current formatted screen under
// label and appends it to the ScreenshotSink carried by ctx, if any. Returns
// the captured text regardless.
func (b *Base) CaptureScreenshot(ctx context.Context, emu emulator.Facade, label string) string {
	shot := label + ":\n" + emu.GetFormattedScreen()
	if s, ok := ctx.Value(screenshotSinkKey{}).(*ScreenshotSink); ok {
		s.capture(shot)
	}
	return shot
}

// ReportStatus publishes an ast.status event, if a bus is attached.
func (b *Base) ReportStatus(astName string, state events.RunState, errMsg string) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.NewTypedEventWithSession(events.SourceExecution, events.StatusPayload{
		ExecutionID: b.ExecutionID(),
		ASTName:     astName,
		State:       state,
		Error:       errMsg,
	}, b.sessionID))
}

// ReportProgress publishes an ast.progress event, if a bus is attached.
func (b *Base) ReportProgress(current, total int, currentItemID string, itemStatus ItemStatus, terminal bool) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.NewTypedEventWithSession(events.SourceExecution, events.ProgressPayload{
		ExecutionID: b.ExecutionID(),
		ItemID:      currentItemID,
		Completed:   current,
		Total:       total,
		Terminal:    terminal,
	}, b.sessionID))
}

// ReportItemResult publishes an ast.itemResult event, if a bus is attached.
func (b *Base) ReportItemResult(r ItemResult) {
	if b.bus == nil {
		return
	}
	var shots []string
	if r.Data != nil {
		if s, ok := r.Data["screenshots"].([]string); ok {
			shots = s
		}
	}
	b.bus.Publish(events.NewTypedEventWithSession(events.SourceExecution, events.ItemResultPayload{
		ExecutionID: b.ExecutionID(),
		ItemID:      r.ItemID,
		Success:     r.Status == ItemSuccess,
		Error:       r.Error,
		Screenshots: shots,
		Output:      r.Data,
		DurationMS:  r.DurationMS,
	}, b.sessionID))
}

func (b *Base) publishPauseState(paused bool) {
	if b.bus == nil {
		return
	}
	b.bus.Publish(events.NewTypedEventWithSession(events.SourceExecution, events.PauseStatePayload{
		ExecutionID: b.ExecutionID(),
		Paused:      paused,
	}, b.sessionID))
}
