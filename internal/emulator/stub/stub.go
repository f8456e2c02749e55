// Package stub provides a scripted emulator.Facade implementation for local
// development and tests, standing in for a real 3270 wire client.
package stub

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
)

// Screen is one named, scripted screen in a session's script.
type Screen struct {
	Name string
	Text []string // lines of screen content, searched verbatim by WaitForText/ScreenContains
}

// Script is the ordered sequence of screens a Facade walks through as it
// processes Submit/ProgramFunction calls. The last screen repeats once reached.
type Script struct {
	Screens []Screen
}

// DefaultScript returns a minimal signon → menu → terminated script, enough
// to exercise the standard login/logoff sequence used by PolicyLogAST.
func DefaultScript() Script {
	return Script{
		Screens: []Screen{
			{Name: "Signon", Text: []string{"TSO/E LOGON", "Enter USERID:"}},
			{Name: "Menu", Text: []string{"TSO Applications Menu"}},
			{Name: "Terminated", Text: []string{"TSO Applications Menu terminated"}},
			{Name: "LoggedOff", Text: []string{"LOGOFF"}},
		},
	}
}

// Facade is a scripted emulator.Facade implementation. It is not safe for
// concurrent use from multiple goroutines on the same instance — callers
// should open one Facade per worker, matching the spec's per-worker ownership
// model.
type Facade struct {
	mu     sync.Mutex
	name   string
	cfg    emulator.Config
	script Script
	cursor int
	fields map[string]string
	open   bool
}

// New creates a Facade that will walk through script as it is driven.
func New(script Script) *Facade {
	return &Facade{script: script, fields: make(map[string]string)}
}

func (f *Facade) Open(name string, cfg emulator.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.name = name
	f.cfg = cfg
	f.cursor = 0
	f.open = true

	if cfg.WaitSleep > 0 {
		time.Sleep(cfg.WaitSleep)
	}
	return nil
}

func (f *Facade) Drop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *Facade) current() Screen {
	if f.cursor >= len(f.script.Screens) {
		return f.script.Screens[len(f.script.Screens)-1]
	}
	return f.script.Screens[f.cursor]
}

func (f *Facade) WaitForText(needle string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f.ScreenContains(needle) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Facade) ScreenContains(needle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, line := range f.current().Text {
		if strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

func (f *Facade) FillFieldByLabel(label, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("emulator %s not open", f.name)
	}
	f.fields[label] = value
	return nil
}

func (f *Facade) FillFieldAtPosition(row, col int, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("emulator %s not open", f.name)
	}
	f.fields[fmt.Sprintf("%d,%d", row, col)] = value
	return nil
}

func (f *Facade) TypeText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("emulator %s not open", f.name)
	}
	f.fields["typed"] = text
	return nil
}

func (f *Facade) Submit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("emulator %s not open", f.name)
	}
	if f.cursor < len(f.script.Screens)-1 {
		f.cursor++
	}
	return nil
}

func (f *Facade) ProgramFunction(n int) error {
	return f.Submit()
}

func (f *Facade) GetFormattedScreen() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.current().Text, "\n")
}
