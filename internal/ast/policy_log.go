package ast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/netstore"
)

// PolicyLogAST is a minimal, real, registered AST: it logs each policy
// number after login/logoff. Grounded directly on
// original_source/gateway/src/ast/policy_log.py.
type PolicyLogAST struct {
	Base
}

// NewPolicyLogAST constructs a fresh PolicyLogAST, suitable as an ast.Factory.
func NewPolicyLogAST() AST {
	return &PolicyLogAST{}
}

func (a *PolicyLogAST) Name() string        { return "policy_log" }
func (a *PolicyLogAST) Description() string { return "Login, log each policy number, and log off" }
func (a *PolicyLogAST) SupportsParallel() bool { return true }

func (a *PolicyLogAST) AuthExpectedKeywords() []string { return []string{"TSO Applications Menu"} }
func (a *PolicyLogAST) AuthApplication() string        { return "" }
func (a *PolicyLogAST) AuthGroup() string              { return "" }

func (a *PolicyLogAST) Runtime() *Base { return &a.Base }

// PrepareItems reads policyNumbers (or items) straight out of params when
// present. Failing that, if params names a netstoreRoot/office/department,
// it falls back to reading policy numbers off the configured file-share
// drop location (internal/netstore) — the successor to the original's
// overnight-batch Access-database drop files.
func (a *PolicyLogAST) PrepareItems(ctx context.Context, params map[string]any) ([]Item, error) {
	raw, ok := params["policyNumbers"]
	if !ok {
		raw = params["items"]
	}
	if list, ok := raw.([]any); ok {
		items := make([]Item, len(list))
		for i, v := range list {
			items[i] = v
		}
		return items, nil
	}

	root, _ := params["netstoreRoot"].(string)
	office, _ := params["office"].(string)
	department, _ := params["department"].(string)
	if root == "" || office == "" || department == "" {
		return nil, nil
	}

	pattern, _ := params["dropFileGlob"].(string)
	if pattern == "" {
		pattern = "*.txt"
	}

	numbers, err := netstore.LoadPolicyNumbers(root, office, department, pattern)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(numbers))
	for i, n := range numbers {
		items[i] = n
	}
	return items, nil
}

// ValidateItem requires a 9-character policy number, matching
// validate_policy_number's convention in the original Python gateway. This is
// PolicyLogAST's own choice, not a constraint the core AST contract imposes.
func (a *PolicyLogAST) ValidateItem(item Item) bool {
	s, ok := item.(string)
	if !ok {
		return false
	}
	return len(s) == 9
}

func (a *PolicyLogAST) Authenticate(ctx context.Context, emu emulator.Facade, user, password string) (bool, string) {
	return DefaultAuthenticate(emu, user, password, a.AuthExpectedKeywords(), a.AuthApplication(), a.AuthGroup())
}

func (a *PolicyLogAST) ProcessSingleItem(ctx context.Context, emu emulator.Facade, item Item, index, total int) (bool, string, map[string]any) {
	policyNumber := a.GetItemID(item)
	slog.Info("logging policy", "policy", policyNumber, "index", index, "total", total)
	return true, "", map[string]any{"policyNumber": policyNumber, "status": "logged"}
}

// Logoff drives PF3 → wait for the TSO menu-terminated text → capture a
// screenshot → type "logoff" + submit → capture a screenshot. It is not
// idempotent: on a screen already past the logged-off state, PF3 does not
// bring up the menu-terminated text, so a second call returns false with
// "Failed to exit TSO Applications" after the 30 s wait.
func (a *PolicyLogAST) Logoff(ctx context.Context, emu emulator.Facade) (bool, string) {
	if err := emu.ProgramFunction(3); err != nil {
		return false, fmt.Sprintf("pf3: %v", err)
	}

	if !emu.WaitForText("TSO Applications Menu terminated", 30*time.Second) {
		return false, "Failed to exit TSO Applications"
	}
	a.CaptureScreenshot(ctx, emu, "Menu Terminated")

	if err := emu.TypeText("logoff"); err != nil {
		return false, fmt.Sprintf("type logoff: %v", err)
	}
	if err := emu.Submit(); err != nil {
		return false, fmt.Sprintf("submit logoff: %v", err)
	}
	a.CaptureScreenshot(ctx, emu, "After Logoff")

	return true, ""
}

func (a *PolicyLogAST) GetItemID(item Item) string {
	if s, ok := item.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", item)
}
