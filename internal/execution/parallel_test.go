package execution

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
)

func TestPartition_SevenItemsThreeWorkers(t *testing.T) {
	items := make([]ast.Item, 7)
	for i := range items {
		items[i] = fmt.Sprintf("%d", i+1)
	}

	buckets := partition(items, 3)
	want := [][]string{
		{"1", "4", "7"},
		{"2", "5"},
		{"3", "6"},
	}
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}
	for i, b := range buckets {
		got := make([]string, len(b))
		for j, item := range b {
			got[j] = item.(string)
		}
		if len(got) != len(want[i]) {
			t.Fatalf("bucket %d: want %v, got %v", i, want[i], got)
		}
		for j := range got {
			if got[j] != want[i][j] {
				t.Fatalf("bucket %d: want %v, got %v", i, want[i], got)
			}
		}
	}
}

func TestRunner_ParallelHappyPath(t *testing.T) {
	r := testRunner(t)
	r.NewEmulator = func() emulator.Facade { return stub.New(stub.DefaultScript()) }

	policyNumbers := make([]any, 7)
	for i := range policyNumbers {
		policyNumbers[i] = fmt.Sprintf("%09d", i+1)
	}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:     "policy_log",
		Username:    "u",
		Password:    "p",
		SessionID:   "sess-1",
		Parallel:    true,
		MaxSessions: 3,
		Params:      map[string]any{"policyNumbers": policyNumbers},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ast.ExecSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.SuccessCount != 7 {
		t.Fatalf("expected 7 successes, got %d", res.SuccessCount)
	}
}

// failingOpenFacade fails Open for any session name containing a marked
// worker suffix, simulating a worker whose session never comes up.
type failingOpenFacade struct {
	*stub.Facade
	failSuffix string
}

func (f *failingOpenFacade) Open(name string, cfg emulator.Config) error {
	if strings.Contains(name, f.failSuffix) {
		return fmt.Errorf("simulated session creation failure for %s", name)
	}
	return f.Facade.Open(name, cfg)
}

func TestRunner_ParallelWorkerCrashIsolated(t *testing.T) {
	r := testRunner(t)
	r.NewEmulator = func() emulator.Facade {
		return &failingOpenFacade{Facade: stub.New(stub.DefaultScript()), failSuffix: "-w1"}
	}

	policyNumbers := make([]any, 7)
	for i := range policyNumbers {
		policyNumbers[i] = fmt.Sprintf("%09d", i+1)
	}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:     "policy_log",
		Username:    "u",
		Password:    "p",
		SessionID:   "sess-1",
		Parallel:    true,
		MaxSessions: 3,
		Params:      map[string]any{"policyNumbers": policyNumbers},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Worker 1 (items 2 and 5, 0-indexed bucket 1) never comes up; its 2
	// items are recorded failed, the other 5 items across workers 0 and 2
	// still succeed.
	if res.FailedCount != 2 {
		t.Fatalf("expected 2 failed items from the crashed worker, got %d", res.FailedCount)
	}
	if res.SuccessCount != 5 {
		t.Fatalf("expected 5 successes from the surviving workers, got %d", res.SuccessCount)
	}
	if res.Status != ast.ExecSuccess {
		t.Fatalf("expected overall status success despite one worker's failure, got %s", res.Status)
	}
	if len(res.ItemResults) != 7 {
		t.Fatalf("expected 7 total item results, got %d", len(res.ItemResults))
	}
}

func TestRunner_ParallelInvalidItemsSkippedBeforePartition(t *testing.T) {
	r := testRunner(t)
	r.NewEmulator = func() emulator.Facade { return stub.New(stub.DefaultScript()) }

	// 6 valid items + 1 invalid, 3 workers: the invalid item must be recorded
	// skipped without ever reaching a worker, and the valid items must split
	// evenly (2/2/2), not 3/2/2 (which is what partitioning all 7 first would
	// produce).
	res, err := r.Run(context.Background(), RunParams{
		ASTName:     "policy_log",
		Username:    "u",
		Password:    "p",
		SessionID:   "sess-1",
		Parallel:    true,
		MaxSessions: 3,
		Params: map[string]any{"policyNumbers": []any{
			"100000001", "100000002", "short", "100000003", "100000004", "100000005", "100000006",
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SkippedCount != 1 {
		t.Fatalf("expected 1 skipped item, got %d", res.SkippedCount)
	}
	if res.SuccessCount != 6 {
		t.Fatalf("expected 6 successes, got %d", res.SuccessCount)
	}
	for _, ir := range res.ItemResults {
		if ir.ItemID == "short" && ir.Status != ast.ItemSkipped {
			t.Fatalf("expected invalid item skipped, got %+v", ir)
		}
	}
}

func TestRunner_ParallelUnsupportedFallsBackToSequential(t *testing.T) {
	reg := ast.NewRegistry()
	if err := reg.Register(func() ast.AST { return &nonParallelAST{PolicyLogAST: &ast.PolicyLogAST{}} }); err != nil {
		t.Fatal(err)
	}
	r := &Runner{Registry: reg}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "no_parallel",
		Username:  "u",
		Password:  "p",
		SessionID: "sess-1",
		Parallel:  true,
		Emulator:  stub.New(stub.DefaultScript()),
		Params:    map[string]any{"policyNumbers": []any{"123456789"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ast.ExecSuccess {
		t.Fatalf("expected fallback sequential run to succeed, got %s (%s)", res.Status, res.Error)
	}
}

type nonParallelAST struct {
	*ast.PolicyLogAST
}

func (a *nonParallelAST) Name() string          { return "no_parallel" }
func (a *nonParallelAST) SupportsParallel() bool { return false }
