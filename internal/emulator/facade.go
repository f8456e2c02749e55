// Package emulator defines the contract the AST execution core consumes from
// a 3270 terminal emulator. The wire protocol and screen-buffer internals are
// out of scope; this package only pins down the capability surface a worker
// needs to drive one emulator session through a login/process/logoff cycle.
package emulator

import "time"

// Config describes how to open a new emulator session.
type Config struct {
	Host      string
	Port      int
	Secure    bool
	MaxWait   time.Duration
	WaitSleep time.Duration
}

// Facade is a single live 3270 connection plus its action verbs. Nothing
// about the underlying screen buffer or protocol timing is exposed.
type Facade interface {
	// Open establishes the connection under the given name and waits for the
	// first signon screen to appear, honoring cfg.MaxWait/WaitSleep.
	Open(name string, cfg Config) error

	// Drop tears down the connection. Idempotent.
	Drop() error

	// WaitForText blocks until needle appears on screen or timeout elapses.
	WaitForText(needle string, timeout time.Duration) bool

	// ScreenContains reports whether needle currently appears on screen.
	ScreenContains(needle string) bool

	// FillFieldByLabel locates a labeled input field and writes value into it.
	FillFieldByLabel(label, value string) error

	// FillFieldAtPosition writes value at the given 1-based row/col.
	FillFieldAtPosition(row, col int, value string) error

	// TypeText types literal keystrokes at the current cursor position.
	TypeText(text string) error

	// Submit sends ENTER.
	Submit() error

	// ProgramFunction sends PFn (or PAn, by convention of n) to the host.
	ProgramFunction(n int) error

	// GetFormattedScreen returns the current screen as plain text, row by row.
	GetFormattedScreen() string
}
