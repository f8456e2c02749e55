package ast

import (
	"context"
	"fmt"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
)

// AST is a polymorphic script that drives a 3270 emulator through a
// multi-screen workflow for each of a list of items.
type AST interface {
	// Static metadata.
	Name() string
	Description() string
	SupportsParallel() bool
	AuthExpectedKeywords() []string
	AuthApplication() string
	AuthGroup() string

	// PrepareItems resolves the work list for one run. May fetch from an
	// external source; a fatal error aborts the run, an empty result
	// completes trivially.
	PrepareItems(ctx context.Context, params map[string]any) ([]Item, error)

	// ValidateItem reports whether item is well-formed. false causes the
	// item to be recorded as skipped with error "Invalid item".
	ValidateItem(item Item) bool

	// Authenticate drives the login sequence. Idempotent: returns ok if
	// already past login.
	Authenticate(ctx context.Context, emu emulator.Facade, user, password string) (ok bool, errMsg string)

	// ProcessSingleItem is the per-item body. May call Runtime().CaptureScreenshot
	// any number of times.
	ProcessSingleItem(ctx context.Context, emu emulator.Facade, item Item, index, total int) (ok bool, errMsg string, data map[string]any)

	// Logoff must be idempotent. May call Runtime().CaptureScreenshot.
	Logoff(ctx context.Context, emu emulator.Facade) (ok bool, errMsg string)

	// GetItemID returns a loggable identifier for item.
	GetItemID(item Item) string

	// Runtime returns the embedded pause/cancel/screenshot state.
	Runtime() *Base
}

// DefaultAuthenticate drives the standard screen-login sequence shared by
// every AST: fill userid/password, submit, and wait for one of the AST's
// expected post-login keywords to appear. Concrete ASTs call this from their
// Authenticate hook rather than reimplementing login by hand.
func DefaultAuthenticate(emu emulator.Facade, user, password string, expectedKeywords []string, application, group string) (bool, string) {
	for _, kw := range expectedKeywords {
		if emu.ScreenContains(kw) {
			return true, "" // already past login
		}
	}

	if err := emu.FillFieldByLabel("USERID", user); err != nil {
		return false, fmt.Sprintf("fill userid: %v", err)
	}
	if err := emu.FillFieldByLabel("PASSWORD", password); err != nil {
		return false, fmt.Sprintf("fill password: %v", err)
	}
	if err := emu.Submit(); err != nil {
		return false, fmt.Sprintf("submit login: %v", err)
	}

	if application != "" {
		if err := emu.TypeText(application); err != nil {
			return false, fmt.Sprintf("type application: %v", err)
		}
		_ = emu.Submit()
	}
	if group != "" {
		if err := emu.TypeText(group); err != nil {
			return false, fmt.Sprintf("type group: %v", err)
		}
		_ = emu.Submit()
	}

	for _, kw := range expectedKeywords {
		if emu.WaitForText(kw, 30*time.Second) {
			return true, ""
		}
	}
	return false, "login did not reach an expected screen"
}
