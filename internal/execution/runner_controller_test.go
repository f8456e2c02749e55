package execution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
)

// fakeController is a minimal Controller double that records the AST bound
// to it, so tests can assert the Runner hands back the *real* resolved
// instance rather than leaving the slot empty.
type fakeController struct {
	mu      sync.Mutex
	busy    bool
	bound   ast.AST
	started int
	finished int
}

var errFakeBusy = errors.New("AST_BUSY")

func (f *fakeController) TryStartAST(a ast.AST, cancel func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return errFakeBusy
	}
	f.busy = true
	f.bound = a
	f.started++
	return nil
}

func (f *fakeController) FinishAST() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	f.bound = nil
	f.finished++
}

func TestRunner_BindsRealASTToController(t *testing.T) {
	r := testRunner(t)
	emu := stub.New(stub.DefaultScript())
	fc := &fakeController{}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:    "policy_log",
		Username:   "u",
		Password:   "p",
		SessionID:  "sess-1",
		Emulator:   emu,
		Controller: fc,
		Params:     map[string]any{"policyNumbers": []any{"123456789"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != ast.ExecSuccess {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if fc.started != 1 || fc.finished != 1 {
		t.Fatalf("expected one claim and one release, got started=%d finished=%d", fc.started, fc.finished)
	}
}

func TestRunner_ASTBusyReturnsFailureWithoutRunning(t *testing.T) {
	r := testRunner(t)
	fc := &fakeController{busy: true}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:    "policy_log",
		Username:   "u",
		Password:   "p",
		SessionID:  "sess-1",
		Emulator:   stub.New(stub.DefaultScript()),
		Controller: fc,
		Params:     map[string]any{"policyNumbers": []any{"123456789"}},
	})
	if !errors.Is(err, errFakeBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if res.Status != ast.ExecFailed {
		t.Fatalf("expected failed status, got %s", res.Status)
	}
	if fc.finished != 0 {
		t.Fatalf("FinishAST must not be called when the claim itself failed, got %d calls", fc.finished)
	}
}
