package coprocrt

import (
	"testing"

	"github.com/basalt-run/coprocrt/pkg/activation"
)

func TestStateRunnablePartitionsRunningAndBlocked(t *testing.T) {
	runnable := []State{StateRunning, StateCallingHost, StateFailing}
	blocked := []State{StateBlockedExited, StateBlockedReading, StateBlockedWriting}
	for _, s := range runnable {
		if !s.runnable() {
			t.Fatalf("%v.runnable() = false, want true", s)
		}
	}
	for _, s := range blocked {
		if s.runnable() {
			t.Fatalf("%v.runnable() = true, want false", s)
		}
	}
}

func TestStateStringCoversEveryConstant(t *testing.T) {
	states := []State{
		StateRunning, StateCallingHost, StateFailing,
		StateBlockedExited, StateBlockedReading, StateBlockedWriting,
	}
	for _, s := range states {
		if s.String() == "unknown" {
			t.Fatalf("State(%d).String() = %q, want a real name", s, s.String())
		}
	}
}

func TestNewProcNamesFromEntrySymbol(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(func(ctx *activation.GuestContext) {})

	if p.Name == "" || p.Name == "unstarted" {
		t.Fatalf("p.Name = %q, want a derived closure symbol", p.Name)
	}
}

func TestNewProcWithNilEntryIsNamedUnstarted(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	if p.Name != "unstarted" {
		t.Fatalf("p.Name = %q, want unstarted", p.Name)
	}
}

func TestGrowRespectsMinGrowBytesFloor(t *testing.T) {
	host := newFakeHost()
	cfg := testConfig()
	cfg.Stack.MinGrowBytes = 4096
	rt := NewRuntime(cfg, host)
	p := rt.NewRootProc(nil)

	before := p.chainBytes()
	p.grow(16, 16)
	after := p.chainBytes()

	if after-before < cfg.Stack.MinGrowBytes {
		t.Fatalf("chain grew by %d bytes, want at least MinGrowBytes=%d", after-before, cfg.Stack.MinGrowBytes)
	}
}

func TestGrowFatalsPastMaxBytesCeiling(t *testing.T) {
	host := newFakeHost()
	cfg := testConfig()
	cfg.Stack.MaxBytes = cfg.Stack.InitialBytes
	rt := NewRuntime(cfg, host)
	p := rt.NewRootProc(nil)

	before := p.chainBytes()
	p.grow(16, cfg.Stack.InitialBytes)
	after := p.chainBytes()

	if len(host.fatals) == 0 {
		t.Fatal("expected grow past MaxBytes to report a Fatal")
	}
	if after != before {
		t.Fatalf("chain size changed despite the ceiling being hit: before=%d after=%d", before, after)
	}
}

func TestTeardownFreesStackSegment(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)
	rt.newPort(p, 8)

	registersBefore := host.registers
	p.teardown()

	if host.registers != registersBefore-1 {
		t.Fatalf("host.registers = %d, want %d after freeing the proc's one stack segment", host.registers, registersBefore-1)
	}
}

func TestFailTransitionsToFailing(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	p.fail()

	if p.state != StateFailing {
		t.Fatalf("p.state = %v, want failing", p.state)
	}
}
