package coprocrt

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/basalt-run/coprocrt/internal/stack"
	"github.com/basalt-run/coprocrt/pkg/activation"
)

// State is a proc's scheduling state, matching proc_state_t exactly.
type State int

const (
	StateRunning State = iota
	StateCallingHost
	StateFailing
	StateBlockedExited
	StateBlockedReading
	StateBlockedWriting
)

var stateNames = [...]string{
	StateRunning:        "running",
	StateCallingHost:    "calling-host",
	StateFailing:        "failing",
	StateBlockedExited:  "blocked-exited",
	StateBlockedReading: "blocked-reading",
	StateBlockedWriting: "blocked-writing",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// runnable reports whether a proc in this state belongs in the
// scheduler's running set rather than its blocked set.
func (s State) runnable() bool {
	switch s {
	case StateRunning, StateCallingHost, StateFailing:
		return true
	default:
		return false
	}
}

// Proc is one cooperatively scheduled process: a segmented shadow stack
// for GC/invariant bookkeeping, an activation.Glue driving its actual
// guest code, and the upcall scratch space the host and guest rendezvous
// through.
type Proc struct {
	id    uint64
	rt    *Runtime
	state State
	index int // PtrVector slot, maintained by SetIndex/Index

	// Name is cosmetic, for log readability only — no invariant depends
	// on it. Derived from entry's symbol, the closest Go analogue of the
	// reference implementation's per-proc debug name.
	Name string

	stk *stack.Segment
	sp  stack.Pointer

	glue activation.Glue

	chans map[*Port]*Channel // outgoing channel per destination port
	ports *refSet           // ports this proc owns as a reader, for teardown

	allocs allocChain

	upcallCode uint64
	upcallArgs [activation.NArgs]uint64

	refcnt int

	// strings backs new_str/log_str/trace_str: guest code has no
	// addressable memory to build a string in, so new_str hands back an
	// index into this table instead.
	strings []string
}

func (p *Proc) SetIndex(i int) { p.index = i }
func (p *Proc) Index() int     { return p.index }

// refSet is a tiny owning set, used for a proc's port list; ports are few
// enough per proc that a map is simpler than another PtrVector instance.
type refSet struct {
	m map[*Port]struct{}
}

func newRefSet() *refSet { return &refSet{m: make(map[*Port]struct{})} }

func (r *refSet) add(p *Port) { r.m[p] = struct{}{} }

func (r *refSet) remove(p *Port) { delete(r.m, p) }

func (r *refSet) each(fn func(*Port)) {
	for p := range r.m {
		fn(p)
	}
}

// entrySymbol names entry for logging, the way a compiled guest's symbol
// table would. A nil entry (the reader half of Ping/Backpressure, whose
// real entry is attached later via glue.Start) reports "unstarted".
func entrySymbol(entry func(*activation.GuestContext)) string {
	if entry == nil {
		return "unstarted"
	}
	name := runtime.FuncForPC(reflect.ValueOf(entry).Pointer()).Name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// newProc allocates a proc's stack and synthesizes its two activation
// frames, but does not add it to the scheduler's state vectors — callers
// (NewRootProc, Runtime.Spawn) do that once construction succeeds.
func newProc(rt *Runtime, id uint64, spawner *Proc, entry func(*activation.GuestContext), argBytes []byte) *Proc {
	p := &Proc{
		id:     id,
		rt:     rt,
		state:  StateRunning,
		Name:   entrySymbol(entry),
		chans:  make(map[*Port]*Channel),
		ports:  newRefSet(),
		refcnt: 1,
		glue:   activation.NewGoroutineGlue(),
	}

	p.stk = stack.New(rt.host, rt.cfg.Stack.InitialBytes)

	var spawnerSP *stack.Pointer
	if spawner != nil {
		spawnerSP = &spawner.sp
	}
	p.sp = stack.SpawnFrames(p.stk, p, "exit-proc-glue", "spawnee-entry", spawnerSP, argBytes)

	p.glue.Start(entry)
	return p
}

// grow transplants p's current call region onto a larger segment,
// matching upcall_grow_proc. nCallBytes/nFrameBytes are in bytes, as the
// guest would report them.
func (p *Proc) grow(nCallBytes, nFrameBytes int) {
	if min := p.rt.cfg.Stack.MinGrowBytes; nFrameBytes < min {
		nFrameBytes = min
	}
	if max := p.rt.cfg.Stack.MaxBytes; max > 0 && p.chainBytes()+nFrameBytes > max {
		p.rt.host.Fatal("proc %d: stack growth to %d bytes would exceed the %d byte ceiling", p.id, p.chainBytes()+nFrameBytes, max)
		return
	}
	p.rt.host.Log(CatMemory, "proc %d growing stack: call=%d frame=%d", p.id, nCallBytes, nFrameBytes)
	p.sp = stack.Grow(p.rt.host, p.stk, p.sp, nCallBytes, nFrameBytes)
	p.stk = p.sp.Seg
}

// chainBytes sums the capacity of every segment in p's stack chain,
// walking to the bottom-most segment first the same way stack.FreeChain
// does, so Config.Stack.MaxBytes bounds the whole chain rather than just
// the current segment.
func (p *Proc) chainBytes() int {
	s := p.stk
	for s.Prev != nil {
		s = s.Prev
	}
	total := 0
	for s != nil {
		total += len(s.Data)
		s = s.Next
	}
	return total
}

// fail transitions p into the failing state, the terminal path upcall_fail
// routes through. del_proc does not call it (see Runtime.delProc).
func (p *Proc) fail() {
	p.rt.transition(p, StateFailing)
}

// teardown releases p's stack chain and tears down its per-destination
// channel table and owned-port list, matching ~rust_proc.
func (p *Proc) teardown() {
	p.logFrameChain()
	p.logAllocChain()
	stack.FreeChain(p.stk)
	for port := range p.chans {
		delete(p.chans, port)
	}
	p.ports.each(func(port *Port) {
		p.rt.delPort(port)
	})
}

// logFrameChain walks the frame-pointer chain still suspended at p's
// stack pointer and logs each frame's glue descriptor — the same walk a
// precise collector would run to find every live frame, run here purely
// for debug visibility into whether the chain the runtime maintained
// stays walkable right up to destruction. It marks or collects nothing;
// per FrameGlue's contract that work is compiler-emitted and out of this
// runtime's scope.
func (p *Proc) logFrameChain() {
	fp := stack.GetFP(p.sp)
	for fp != 0 {
		glue, _ := stack.GetFrameGlueFns(p.sp.Seg, fp).(*FrameGlue)
		p.rt.host.Log(CatMemory, "proc %d frame fp=0x%x glue=%v", p.id, fp, glue)
		fp = stack.GetPreviousFP(p.sp.Seg, fp)
	}
}

// logAllocChain walks p's GC allocation chain and logs each header's
// mark bit. With no collector ever running, every header reaches
// teardown exactly as unmarked as push left it; the walk exists so the
// chain itself — not a collector that doesn't exist yet — is exercised.
func (p *Proc) logAllocChain() {
	p.allocs.walk(func(h *Header) {
		p.rt.host.Log(CatMemory, "proc %d alloc chain: header marked=%v", p.id, h.Marked())
	})
}
