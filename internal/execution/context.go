// Package execution implements the Runner and the two executors
// (SequentialExecutor, ParallelExecutor) that drive an ast.AST through one
// run: login once, process every item, log off, and record progress and
// results through the event bus and the persistence store.
package execution

import (
	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/persistence"
)

// Context is the immutable per-run bundle an executor consumes.
type Context struct {
	AST         ast.AST
	Username    string
	Password    string
	UserID      string
	SessionID   string
	ExecutionID string
	Items       []ast.Item

	Store persistence.Store
	Bus   *events.Bus

	// EmulatorConfig and NewEmulator are only consulted by the
	// ParallelExecutor, which opens one emulator session per worker rather
	// than reusing a single attached one. MaxSessions bounds worker count.
	EmulatorConfig emulator.Config
	NewEmulator    func() emulator.Facade
	MaxSessions    int
}
