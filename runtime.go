package coprocrt

import (
	"math/rand/v2"

	"github.com/basalt-run/coprocrt/internal/container"
	"github.com/basalt-run/coprocrt/pkg/activation"
)

// Runtime owns one scheduler's worth of state: every live proc, every
// live port, and the configuration knobs that size new stacks and
// channels. It is the Go analogue of rust_rt plus the global state
// rust_scheduler threaded through every upcall handler.
type Runtime struct {
	host Host
	cfg  Config
	rng  *rand.Rand

	running *container.PtrVector[*Proc]
	blocked *container.PtrVector[*Proc]
	ports   *container.PtrVector[*Port]

	nextProcID uint64
	procsByID  map[uint64]*Proc

	// entries is the function table new_proc upcalls index into: the Go
	// reframing has no code pointers a guest word could name directly, so
	// a spawnable entry point is registered ahead of time and referenced
	// by table index instead.
	entries map[uint64]func(*activation.GuestContext)

	// portHandles/allocHandles stand in for the reference implementation's
	// bare pointer values: any proc holding a handle — however it came by
	// it — can hand it back in a later upcall, exactly as any proc holding
	// a rust_port* or void* could. A single runtime-wide table (rather
	// than one per proc) is what makes that cross-proc sharing possible.
	nextHandle   uint64
	portHandles  map[uint64]*Port
	allocHandles map[uint64]*Header
	allocSizes   map[uint64]int

	channelMaxBytes     int
	channelInitialUnits int
}

// NewRuntime builds a Runtime against host, sized by cfg. cfg.Channel.MaxBytes
// bounds every channel this runtime ever creates.
func NewRuntime(cfg Config, host Host) *Runtime {
	return &Runtime{
		host:            host,
		cfg:             cfg,
		rng:             rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		running:         container.NewPtrVector[*Proc](),
		blocked:         container.NewPtrVector[*Proc](),
		ports:           container.NewPtrVector[*Port](),
		procsByID:       make(map[uint64]*Proc),
		entries:         make(map[uint64]func(*activation.GuestContext)),
		portHandles:     make(map[uint64]*Port),
		allocHandles:    make(map[uint64]*Header),
		allocSizes:          make(map[uint64]int),
		channelMaxBytes:     cfg.Channel.MaxBytes,
		channelInitialUnits: cfg.Channel.InitialUnits,
	}
}

// allocPortHandle registers port under a fresh runtime-wide handle.
func (rt *Runtime) allocPortHandle(port *Port) uint64 {
	h := rt.nextHandle
	rt.nextHandle++
	rt.portHandles[h] = port
	return h
}

// resolvePortHandle looks up the *Port a previous new_port upcall handed
// back to some proc as h. Any proc may resolve any handle — handles are
// not scoped to their creator, matching a raw pointer's portability.
func (rt *Runtime) resolvePortHandle(h uint64) *Port {
	return rt.portHandles[h]
}

// allocAllocHandle registers h under a fresh handle, recording nbytes so
// a later free can report the right size back to host.TrackFree.
func (rt *Runtime) allocAllocHandle(h *Header, nbytes int) uint64 {
	handle := rt.nextHandle
	rt.nextHandle++
	rt.allocHandles[handle] = h
	rt.allocSizes[handle] = nbytes
	return handle
}

// RegisterEntry adds entry to the spawn function table under id, so a
// running proc's new_proc upcall can name it by that id. Entries are
// meant to be registered once at program setup, before Run.
func (rt *Runtime) RegisterEntry(id uint64, entry func(*activation.GuestContext)) {
	rt.entries[id] = entry
}

func (rt *Runtime) allocProcID() uint64 {
	id := rt.nextProcID
	rt.nextProcID++
	return id
}

// randIndex returns a uniformly random index in [0, n), matching the
// reference implementation's rand(&rctx) %% length pattern used to pick
// a proc to schedule or a writer to drain.
func (rt *Runtime) randIndex(n int) int {
	return int(rt.rng.Uint64() % uint64(n))
}

// NewRootProc spawns the first proc in rt, with no spawner and therefore
// no inherited call arguments — the entry point rust_main_loop builds
// before it does anything else.
func (rt *Runtime) NewRootProc(entry func(*activation.GuestContext)) *Proc {
	p := newProc(rt, rt.allocProcID(), nil, entry, nil)
	rt.running.Push(p)
	rt.procsByID[p.id] = p
	rt.host.Log(CatProc, "spawned root proc %d", p.id)
	return p
}

// Spawn creates a new proc owned by this runtime whose first frame
// inherits argBytes from spawner's current call site, matching
// upcall_new_proc.
func (rt *Runtime) Spawn(spawner *Proc, entry func(*activation.GuestContext), argBytes []byte) *Proc {
	p := newProc(rt, rt.allocProcID(), spawner, entry, argBytes)
	rt.running.Push(p)
	rt.procsByID[p.id] = p
	rt.host.Log(CatProc, "proc %d spawned proc %d", spawner.id, p.id)
	return p
}

// transition moves proc to newState, relocating it between the running
// and blocked PtrVectors whenever the state change crosses that
// boundary. Matches proc_state_transition's remove-then-add bookkeeping,
// minus the redundant shuffle when the proc stays in the same group.
func (rt *Runtime) transition(p *Proc, newState State) {
	rt.host.Log(CatProc, "proc %d (%s) state %s -> %s", p.id, p.Name, p.state, newState)

	wasRunnable := p.state.runnable()
	isRunnable := newState.runnable()
	p.state = newState

	if wasRunnable == isRunnable {
		return
	}
	if wasRunnable {
		rt.running.SwapDelete(p)
		rt.running.Trim(rt.running.Len())
		rt.blocked.Push(p)
	} else {
		rt.blocked.SwapDelete(p)
		rt.blocked.Trim(rt.blocked.Len())
		rt.running.Push(p)
	}
}

// removeProc drops p from whichever state vector currently holds it,
// used when a proc has fully exited and is being reaped.
func (rt *Runtime) removeProc(p *Proc) {
	if p.state.runnable() {
		rt.running.SwapDelete(p)
		rt.running.Trim(rt.running.Len())
	} else {
		rt.blocked.SwapDelete(p)
		rt.blocked.Trim(rt.blocked.Len())
	}
}

// nLiveProcs reports how many procs rt is still tracking across both
// state vectors, matching rust_scheduler's live-proc count the main
// loop's termination check relies on.
func (rt *Runtime) nLiveProcs() int {
	return rt.running.Len() + rt.blocked.Len()
}
