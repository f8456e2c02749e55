package session

import (
	"context"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
)

// nopAST is a minimal ast.AST stand-in for registry/controller tests that
// only need to exercise the "one AST at a time" slot, not real AST behavior.
// Always used via *nopAST so Runtime() consistently addresses one Base.
type nopAST struct {
	ast.Base
}

func (*nopAST) Name() string                  { return "nop" }
func (*nopAST) Description() string           { return "no-op test AST" }
func (*nopAST) SupportsParallel() bool        { return false }
func (*nopAST) AuthExpectedKeywords() []string { return nil }
func (*nopAST) AuthApplication() string       { return "" }
func (*nopAST) AuthGroup() string             { return "" }
func (a *nopAST) Runtime() *ast.Base          { return &a.Base }
func (*nopAST) GetItemID(item ast.Item) string { return "" }
func (*nopAST) ValidateItem(item ast.Item) bool { return true }

func (*nopAST) PrepareItems(ctx context.Context, params map[string]any) ([]ast.Item, error) {
	return nil, nil
}

func (*nopAST) Authenticate(ctx context.Context, emu emulator.Facade, user, password string) (bool, string) {
	return true, ""
}

func (*nopAST) ProcessSingleItem(ctx context.Context, emu emulator.Facade, item ast.Item, index, total int) (bool, string, map[string]any) {
	return true, "", nil
}

func (*nopAST) Logoff(ctx context.Context, emu emulator.Facade) (bool, string) { return true, "" }
