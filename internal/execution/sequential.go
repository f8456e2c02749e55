package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
)

// SequentialExecutor drives one attached emulator through login-once →
// iterate → logoff-once over the execution's items, in input order.
type SequentialExecutor struct {
	rec recorder
}

// Run executes ec sequentially over emu. Preconditions: emu is non-nil.
func (e *SequentialExecutor) Run(ctx context.Context, ec Context, emu emulator.Facade) (*ast.ExecutionResult, error) {
	a := ec.AST
	e.rec.store = ec.Store

	res := &ast.ExecutionResult{
		SessionID:   ec.SessionID,
		ExecutionID: ec.ExecutionID,
		ASTName:     a.Name(),
		Status:      ast.ExecRunning,
		StartedAt:   time.Now(),
	}
	putInitial(a, ec.Store, res, len(ec.Items))

	if len(ec.Items) == 0 {
		res.Status = ast.ExecSuccess
		res.Message = "No items to process"
		finalize(a, ec.Store, res)
		return res, nil
	}

	if ok, errMsg := a.Authenticate(ctx, emu, ec.Username, ec.Password); !ok {
		res.Status = ast.ExecFailed
		res.Error = errMsg
		finalize(a, ec.Store, res)
		return res, fmt.Errorf("authenticate: %s", errMsg)
	}

	total := len(ec.Items)
	for i, item := range ec.Items {
		if !a.Runtime().WaitIfPaused(0) {
			break
		}

		ir := processItem(ctx, a, emu, item, i+1, total)
		e.rec.record(a, res, ir, i+1, total)
	}

	logoffCtx, _ := ast.WithScreenshotSink(ctx)
	if ok, errMsg := a.Logoff(logoffCtx, emu); !ok {
		slog.Warn("logoff failed", "ast", a.Name(), "execution_id", ec.ExecutionID, "error", errMsg)
	}

	if a.Runtime().IsCancelled() {
		res.Status = ast.ExecCancelled
	} else {
		res.Status = ast.ExecSuccess
	}
	finalize(a, ec.Store, res)
	return res, nil
}
