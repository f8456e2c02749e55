package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/persistence"
)

// recorder owns the single mutex covering shared-slice append + persistence
// write + event emission for one item, satisfying the spec's requirement
// that itemResult emission and the shared-slice append happen atomically and
// that the itemResult event is published strictly before its terminal
// progress event. It is used by both executors — the SequentialExecutor has
// no real contention on it, but sharing the type keeps the ordering
// invariant enforced in exactly one place.
type recorder struct {
	mu    sync.Mutex
	store persistence.Store
}

func (r *recorder) record(a ast.AST, res *ast.ExecutionResult, ir ast.ItemResult, current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res.ItemResults = append(res.ItemResults, ir)

	if r.store != nil {
		if err := r.store.PutItemResult(persistence.ItemResultRecord{
			ExecutionID: res.ExecutionID,
			ItemID:      ir.ItemID,
			Status:      ir.Status,
			StartedAt:   ir.StartedAt,
			CompletedAt: ir.CompletedAt,
			DurationMS:  ir.DurationMS,
			Error:       ir.Error,
			Data:        ir.Data,
		}); err != nil {
			slog.Warn("persist item result failed", "execution_id", res.ExecutionID, "item_id", ir.ItemID, "error", err)
		}
	}

	a.Runtime().ReportItemResult(ir)
	a.Runtime().ReportProgress(current, total, ir.ItemID, ir.Status, true)
}

// processItem runs the common per-item body shared by both executors:
// validate, process under a fresh per-call screenshot accumulator, and build
// the ItemResult with captured screenshots / error screen attached to its
// data map. Each call gets its own ast.ScreenshotSink (via ctx) rather than
// an accumulator shared on the AST instance, so concurrent parallel workers
// driving the same AST instance never clobber each other's screenshots.
func processItem(ctx context.Context, a ast.AST, emu emulator.Facade, item ast.Item, index, total int) ast.ItemResult {
	itemID := a.GetItemID(item)
	startedAt := time.Now()

	if !a.ValidateItem(item) {
		return ast.ItemResult{
			ItemID:      itemID,
			Status:      ast.ItemSkipped,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
			Error:       "Invalid item",
		}
	}

	itemCtx, sink := ast.WithScreenshotSink(ctx)
	ok, errMsg, data := safeProcessSingleItem(itemCtx, a, emu, item, index, total)
	completedAt := time.Now()

	ir := ast.ItemResult{
		ItemID:      itemID,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMS:  completedAt.Sub(startedAt).Milliseconds(),
		Data:        data,
	}

	if ok {
		ir.Status = ast.ItemSuccess
		if shots := sink.Snapshot(); len(shots) > 0 {
			if ir.Data == nil {
				ir.Data = map[string]any{}
			}
			ir.Data["screenshots"] = shots
		}
		return ir
	}

	ir.Status = ast.ItemFailed
	ir.Error = errMsg
	if ir.Data == nil {
		ir.Data = map[string]any{}
	}
	ir.Data["errorScreen"] = emu.GetFormattedScreen()
	if shots := sink.Snapshot(); len(shots) > 0 {
		ir.Data["screenshots"] = shots
	}
	return ir
}

// safeProcessSingleItem calls the AST's per-item body with a recover guard:
// spec §7 requires every per-item exception to be caught, classified, and
// converted to a failed ItemResult, never to abort the run. A panic inside
// one AST's ProcessSingleItem must not take down the worker goroutine (or,
// in the sequential case, the whole execution).
func safeProcessSingleItem(ctx context.Context, a ast.AST, emu emulator.Facade, item ast.Item, index, total int) (ok bool, errMsg string, data map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("process single item panicked", "ast", a.Name(), "item_id", a.GetItemID(item), "panic", rec)
			ok = false
			errMsg = fmt.Sprintf("panic: %v", rec)
			data = nil
		}
	}()
	return a.ProcessSingleItem(ctx, emu, item, index, total)
}

// failedResult synthesizes an ItemResult for an item that could never be
// attempted (e.g. its worker's session never came up).
func failedResult(a ast.AST, item ast.Item, errMsg string) ast.ItemResult {
	now := time.Now()
	return ast.ItemResult{
		ItemID:      a.GetItemID(item),
		Status:      ast.ItemFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       errMsg,
	}
}

// putInitial writes the initial EXECUTION record (status=running) and emits
// the corresponding start-of-run ast.status event.
func putInitial(a ast.AST, store persistence.Store, res *ast.ExecutionResult, itemCount int) {
	if store != nil {
		if err := store.PutExecution(persistence.ExecutionRecord{
			SessionID:   res.SessionID,
			ExecutionID: res.ExecutionID,
			ASTName:     res.ASTName,
			Status:      res.Status,
			StartedAt:   res.StartedAt,
			ItemCount:   itemCount,
		}); err != nil {
			slog.Warn("persist initial execution record failed", "execution_id", res.ExecutionID, "error", err)
		}
	}
	a.Runtime().ReportStatus(res.ASTName, events.RunStateRunning, "")
}

// finalize tallies counts, writes the terminal execution record, and emits
// the terminal ast.status event.
func finalize(a ast.AST, store persistence.Store, res *ast.ExecutionResult) {
	res.Tally()
	now := time.Now()
	res.CompletedAt = &now

	if store != nil {
		if err := store.UpdateExecution(res.SessionID, res.ExecutionID, persistence.ExecutionPatch{
			Status:       res.Status,
			CompletedAt:  res.CompletedAt,
			Message:      res.Message,
			Error:        res.Error,
			SuccessCount: res.SuccessCount,
			FailedCount:  res.FailedCount,
			SkippedCount: res.SkippedCount,
		}); err != nil {
			slog.Warn("persist terminal execution record failed", "execution_id", res.ExecutionID, "error", err)
		}
	}

	state := events.RunStateCompleted
	switch res.Status {
	case ast.ExecFailed:
		state = events.RunStateFailed
	case ast.ExecCancelled:
		state = events.RunStateCancelled
	}
	a.Runtime().ReportStatus(res.ASTName, state, res.Error)
}
