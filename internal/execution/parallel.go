package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/ast"
)

// ParallelExecutor partitions the execution's items round-robin across N
// independent worker sessions, each logging in, draining its partition, and
// logging off on its own emulator. A worker that fails to come up (session
// creation or authentication failure) marks only its own partition's items
// as failed; the rest of the run proceeds unaffected.
type ParallelExecutor struct {
	rec recorder
}

// partition splits items round-robin into n buckets, preserving relative
// order within each bucket (item i lands in bucket i%n).
func partition(items []ast.Item, n int) [][]ast.Item {
	buckets := make([][]ast.Item, n)
	for i, item := range items {
		b := i % n
		buckets[b] = append(buckets[b], item)
	}
	return buckets
}

// Run executes ec across min(ec.MaxSessions, number of valid items) parallel
// workers; invalid items are recorded as skipped before partitioning.
func (e *ParallelExecutor) Run(ctx context.Context, ec Context) (*ast.ExecutionResult, error) {
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

	total := len(ec.Items)
	var completed progressCounter

	// Classify invalid items as skipped before partitioning, per spec §4.6
	// steps 2-3: the per-worker balance invariant ("differ by at most 1")
	// is about the valid subset, and an invalid item must never reach a
	// worker, where a session failure would misrecord it as failed.
	valid := make([]ast.Item, 0, len(ec.Items))
	for _, item := range ec.Items {
		if a.ValidateItem(item) {
			valid = append(valid, item)
			continue
		}
		now := time.Now()
		e.rec.record(a, res, ast.ItemResult{
			ItemID:      a.GetItemID(item),
			Status:      ast.ItemSkipped,
			StartedAt:   now,
			CompletedAt: now,
			Error:       "Invalid item",
		}, completed.incr(), total)
	}

	n := ec.MaxSessions
	if n <= 0 {
		n = 1
	}
	if n > len(valid) {
		n = len(valid)
	}
	buckets := partition(valid, n)

	var wg sync.WaitGroup
	for workerIdx, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		wg.Add(1)
		go func(workerIdx int, bucket []ast.Item) {
			defer wg.Done()
			e.runWorker(ctx, ec, a, workerIdx, bucket, res, total, &completed)
		}(workerIdx, bucket)
	}
	wg.Wait()

	if a.Runtime().IsCancelled() {
		res.Status = ast.ExecCancelled
	} else {
		res.Status = ast.ExecSuccess
	}
	finalize(a, ec.Store, res)
	return res, nil
}

func (e *ParallelExecutor) runWorker(ctx context.Context, ec Context, a ast.AST, workerIdx int, bucket []ast.Item, res *ast.ExecutionResult, total int, completed *progressCounter) {
	if ec.NewEmulator == nil {
		for _, item := range bucket {
			e.rec.record(a, res, failedResult(a, item, "no emulator factory configured"), completed.incr(), total)
		}
		return
	}

	emu := ec.NewEmulator()
	if err := emu.Open(fmt.Sprintf("%s-w%d", ec.ExecutionID, workerIdx), ec.EmulatorConfig); err != nil {
		slog.Warn("worker session open failed", "ast", a.Name(), "execution_id", ec.ExecutionID, "worker", workerIdx, "error", err)
		for _, item := range bucket {
			e.rec.record(a, res, failedResult(a, item, "session unavailable: "+err.Error()), completed.incr(), total)
		}
		return
	}
	defer emu.Drop()

	if ok, errMsg := a.Authenticate(ctx, emu, ec.Username, ec.Password); !ok {
		slog.Warn("worker authenticate failed", "ast", a.Name(), "execution_id", ec.ExecutionID, "worker", workerIdx, "error", errMsg)
		for _, item := range bucket {
			e.rec.record(a, res, failedResult(a, item, "authenticate failed: "+errMsg), completed.incr(), total)
		}
		return
	}

	for _, item := range bucket {
		if !a.Runtime().WaitIfPaused(0) {
			break
		}
		ir := processItem(ctx, a, emu, item, completed.peek()+1, total)
		e.rec.record(a, res, ir, completed.incr(), total)
	}

	logoffCtx, _ := ast.WithScreenshotSink(ctx)
	if ok, errMsg := a.Logoff(logoffCtx, emu); !ok {
		slog.Warn("worker logoff failed", "ast", a.Name(), "execution_id", ec.ExecutionID, "worker", workerIdx, "error", errMsg)
	}
}

// progressCounter is a tiny mutex-guarded counter used only to compute the
// "completed so far" figure reported alongside each item across workers
// running concurrently; it carries no ordering guarantee beyond that one use.
type progressCounter struct {
	mu sync.Mutex
	n  int
}

func (c *progressCounter) incr() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *progressCounter) peek() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
