package execution

import (
	"context"
	"testing"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
)

// panickingAST raises out of ProcessSingleItem for every item, exercising
// the requirement that a per-item panic is caught and converted to a failed
// ItemResult rather than taking down the run.
type panickingAST struct {
	*ast.PolicyLogAST
}

func (a *panickingAST) Name() string { return "panicking" }

func (a *panickingAST) ProcessSingleItem(ctx context.Context, emu emulator.Facade, item ast.Item, index, total int) (bool, string, map[string]any) {
	panic("boom")
}

func TestRunner_PanicInProcessSingleItemBecomesFailedItem(t *testing.T) {
	reg := ast.NewRegistry()
	if err := reg.Register(func() ast.AST { return &panickingAST{PolicyLogAST: &ast.PolicyLogAST{}} }); err != nil {
		t.Fatal(err)
	}
	r := &Runner{Registry: reg}

	res, err := r.Run(context.Background(), RunParams{
		ASTName:   "panicking",
		Username:  "u",
		Password:  "p",
		SessionID: "sess-1",
		Emulator:  stub.New(stub.DefaultScript()),
		Params:    map[string]any{"policyNumbers": []any{"123456789"}},
	})
	if err != nil {
		t.Fatalf("Run itself must not error on a per-item panic: %v", err)
	}
	if len(res.ItemResults) != 1 {
		t.Fatalf("expected 1 item result, got %d", len(res.ItemResults))
	}
	ir := res.ItemResults[0]
	if ir.Status != ast.ItemFailed {
		t.Fatalf("expected failed status, got %s", ir.Status)
	}
	if ir.Error == "" {
		t.Fatal("expected a non-empty error captured from the panic")
	}
}
