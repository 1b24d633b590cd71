package coprocrt

import (
	"testing"

	"github.com/basalt-run/coprocrt/pkg/activation"
)

func TestEncodeDecodeStringArgsRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "exactly seven data words (56 bytes) fit snugly in here!!"}
	for _, s := range cases {
		if len(s) > maxInlineStringBytes {
			t.Fatalf("test case %q longer than maxInlineStringBytes=%d", s, maxInlineStringBytes)
		}
		args := encodeStringArgs(s)
		got := decodeStringArgs(args)
		if got != s {
			t.Fatalf("round trip: encodeStringArgs(%q) -> decodeStringArgs = %q", s, got)
		}
	}
}

func TestEncodeStringArgsTruncatesOverlongStrings(t *testing.T) {
	long := make([]byte, maxInlineStringBytes+10)
	for i := range long {
		long[i] = 'x'
	}
	args := encodeStringArgs(string(long))
	got := decodeStringArgs(args)
	if len(got) != maxInlineStringBytes {
		t.Fatalf("decoded length = %d, want %d", len(got), maxInlineStringBytes)
	}
}

func TestNewStrAndLookupStringRoundTrip(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	handle := p.newString("a proc-local string")
	if got := p.lookupString(handle); got != "a proc-local string" {
		t.Fatalf("lookupString(%d) = %q, want original", handle, got)
	}
}

func TestLookupStringOutOfRangeIsEmpty(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	if got := p.lookupString(99); got != "" {
		t.Fatalf("lookupString(99) on empty table = %q, want empty", got)
	}
}

func TestDispatchMallocFreeRoundTrip(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	var args [activation.NArgs]uint64
	args[0] = 128
	// The root proc's stack segment is already one tracked allocation.
	result := rt.dispatch(p, uint64(CodeMalloc), args)
	if host.allocs != 2 {
		t.Fatalf("host.allocs = %d after malloc, want 2 (stack segment + malloc, tracked by count, not bytes, in this fake)", host.allocs)
	}

	var freeArgs [activation.NArgs]uint64
	freeArgs[0] = result[0]
	rt.dispatch(p, uint64(CodeFree), freeArgs)
	if host.allocs != 1 {
		t.Fatalf("host.allocs = %d after free, want 1 (only the stack segment left)", host.allocs)
	}
}

func TestDispatchFreeOnUnknownHandleIsRecoverable(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	var args [activation.NArgs]uint64
	args[0] = 12345
	rt.dispatch(p, uint64(CodeFree), args)

	if host.allocs != 1 {
		t.Fatalf("host.allocs = %d, want 1 (the root proc's stack segment; free on an unknown handle should be a no-op)", host.allocs)
	}
}

func TestDispatchNewProcSpawnsRegisteredEntry(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(func(ctx *activation.GuestContext) {})

	ran := false
	rt.RegisterEntry(7, func(ctx *activation.GuestContext) { ran = true })

	var args [activation.NArgs]uint64
	args[0] = 7
	result := rt.dispatch(p, uint64(CodeNewProc), args)

	child, ok := rt.procsByID[result[0]]
	if !ok {
		t.Fatalf("dispatch did not register the spawned child under id %d", result[0])
	}
	if err := rt.Run(); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !ran {
		t.Fatal("registered entry never actually ran")
	}
	_ = child
}

func TestDispatchNewProcUnregisteredEntryIsFatal(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	p := rt.NewRootProc(nil)

	var args [activation.NArgs]uint64
	args[0] = 404
	rt.dispatch(p, uint64(CodeNewProc), args)

	if len(host.fatals) == 0 {
		t.Fatal("expected a Fatal for an unregistered entry id")
	}
}

func TestDispatchDelProcDecrementsRefcountBeforeReaping(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	root := rt.NewRootProc(nil)
	child := rt.Spawn(root, nil, nil)
	child.refcnt = 2

	var args [activation.NArgs]uint64
	args[0] = child.id
	rt.dispatch(root, uint64(CodeDelProc), args)

	if _, ok := rt.procsByID[child.id]; !ok {
		t.Fatal("child was reaped despite refcnt not reaching zero")
	}

	rt.dispatch(root, uint64(CodeDelProc), args)
	if _, ok := rt.procsByID[child.id]; ok {
		t.Fatal("child was not reaped once refcnt reached zero")
	}
}
