package execution

import (
	"context"
	"testing"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
	"github.com/dohr-michael/iast-gateway/internal/events"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	reg := ast.NewRegistry()
	if err := reg.Register(ast.NewPolicyLogAST); err != nil {
		t.Fatal(err)
	}
	return &Runner{
		Registry: reg,
		Bus:      events.NewBus(64),
	}
}

func TestRunner_SequentialHappyPath(t *testing.T) {
	r := testRunner(t)
	emu := stub.New(stub.DefaultScript())

	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "policy_log",
		Username:  "user1",
		Password:  "pass1",
		SessionID: "sess-1",
		Emulator:  emu,
		Params:    map[string]any{"policyNumbers": []any{"123456789", "987654321"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ast.ExecSuccess {
		t.Fatalf("expected success, got %s (%s)", res.Status, res.Error)
	}
	if res.SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", res.SuccessCount)
	}
	if len(res.ItemResults) != 2 {
		t.Fatalf("expected 2 item results, got %d", len(res.ItemResults))
	}
	if res.ItemResults[0].ItemID != "123456789" || res.ItemResults[1].ItemID != "987654321" {
		t.Fatalf("items out of order: %+v", res.ItemResults)
	}
}

func TestRunner_SequentialInvalidMixedWithValid(t *testing.T) {
	r := testRunner(t)
	emu := stub.New(stub.DefaultScript())

	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "policy_log",
		Username:  "user1",
		Password:  "pass1",
		SessionID: "sess-1",
		Emulator:  emu,
		Params:    map[string]any{"policyNumbers": []any{"123456789", "short", "987654321"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuccessCount != 2 || res.SkippedCount != 1 {
		t.Fatalf("expected 2 success/1 skipped, got success=%d skipped=%d", res.SuccessCount, res.SkippedCount)
	}
	if res.ItemResults[1].Status != ast.ItemSkipped || res.ItemResults[1].Error != "Invalid item" {
		t.Fatalf("expected middle item skipped with 'Invalid item', got %+v", res.ItemResults[1])
	}
}

func TestRunner_UnknownAST(t *testing.T) {
	r := testRunner(t)
	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "does_not_exist",
		Username:  "u",
		Password:  "p",
		SessionID: "sess-1",
		Emulator:  stub.New(stub.DefaultScript()),
	})
	if err != ErrUnknownAST {
		t.Fatalf("expected ErrUnknownAST, got %v", err)
	}
	if res.Status != ast.ExecFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
}

func TestRunner_MissingCredentials(t *testing.T) {
	r := testRunner(t)
	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "policy_log",
		SessionID: "sess-1",
		Emulator:  stub.New(stub.DefaultScript()),
	})
	if err != ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if res.Status != ast.ExecFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
}

func TestRunner_NoEmulatorSequential(t *testing.T) {
	r := testRunner(t)
	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "policy_log",
		Username:  "u",
		Password:  "p",
		SessionID: "sess-1",
	})
	if err != ErrNoEmulator {
		t.Fatalf("expected ErrNoEmulator, got %v", err)
	}
	if res.Status != ast.ExecFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
}

func TestRunner_PauseThenCancel(t *testing.T) {
	r := testRunner(t)
	reg := r.Registry
	a := reg.New("policy_log")
	a.Runtime().Init("exec-pause", "sess-1", r.Bus)

	a.Runtime().Pause()
	a.Runtime().Cancel()

	// Cancelling a paused run must unblock WaitIfPaused within one cycle.
	if ok := a.Runtime().WaitIfPaused(0); ok {
		t.Fatal("expected WaitIfPaused to report cancellation, got ok=true")
	}
	if !a.Runtime().IsCancelled() {
		t.Fatal("expected IsCancelled to be true")
	}
}
