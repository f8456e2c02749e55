package ast

import (
	"context"
	"testing"
	"time"

	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
)

func TestBase_PauseResume(t *testing.T) {
	var b Base
	b.Init("exec-1", "sess-1", nil)

	b.Pause()

	done := make(chan bool, 1)
	go func() {
		done <- b.WaitIfPaused(0)
	}()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned before Resume")
	case <-time.After(20 * time.Millisecond):
	}

	b.Resume()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected WaitIfPaused to return true after Resume")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not unblock after Resume")
	}
}

func TestBase_CancelUnblocksPause(t *testing.T) {
	var b Base
	b.Init("exec-1", "sess-1", nil)
	b.Pause()

	done := make(chan bool, 1)
	go func() {
		done <- b.WaitIfPaused(0)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected WaitIfPaused to return false after Cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not unblock after Cancel")
	}

	if !b.IsCancelled() {
		t.Fatal("expected IsCancelled() == true")
	}
}

func TestBase_WaitIfPausedNotPaused(t *testing.T) {
	var b Base
	b.Init("exec-1", "sess-1", nil)

	if !b.WaitIfPaused(time.Millisecond) {
		t.Fatal("expected true when not paused")
	}
}

func TestBase_WaitIfPausedTimeout(t *testing.T) {
	var b Base
	b.Init("exec-1", "sess-1", nil)
	b.Pause()

	// Times out without resume/cancel; still not cancelled, so returns true.
	if !b.WaitIfPaused(10 * time.Millisecond) {
		t.Fatal("expected true on timeout without cancellation")
	}
}

func TestBase_ScreenshotSinkPerCall(t *testing.T) {
	var b Base
	b.Init("exec-1", "sess-1", nil)

	emu := stub.New(stub.DefaultScript())
	if err := emu.Open("test", emulator.Config{}); err != nil {
		t.Fatal(err)
	}

	ctx1, sink1 := WithScreenshotSink(context.Background())
	b.CaptureScreenshot(ctx1, emu, "one")
	b.CaptureScreenshot(ctx1, emu, "two")

	ctx2, sink2 := WithScreenshotSink(context.Background())
	b.CaptureScreenshot(ctx2, emu, "three")

	if got := sink1.Snapshot(); len(got) != 2 {
		t.Fatalf("expected 2 captures on sink1, got %v", got)
	}
	if got := sink2.Snapshot(); len(got) != 1 {
		t.Fatalf("expected 1 capture on sink2, got %v", got)
	}

	// A call with no sink in ctx must not panic.
	b.CaptureScreenshot(context.Background(), emu, "no-sink")
}
