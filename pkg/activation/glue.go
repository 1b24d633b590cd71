// Package activation abstracts the one piece of the runtime that is
// fundamentally architecture-specific in the reference implementation:
// the stack switch that hands control from the host's scheduler loop to a
// suspended proc's guest code, and back again when the guest makes an
// upcall or exits.
//
// Go has no supported way to splice a goroutine onto an arbitrary machine
// stack, so Glue is implemented here as a one-shot continuation: each
// proc's guest code runs on its own goroutine, permanently parked on a
// pair of unbuffered rendezvous channels, handing control back to the
// host exactly at the points the reference implementation would have
// executed a stack switch. The fiber/goroutine-per-continuation shape
// mirrors a ResumeChan/CompleteChan rendezvous used elsewhere for
// suspending and resuming execution.
package activation

// YieldKind distinguishes why guest code handed control back to the host.
type YieldKind int

const (
	// YieldUpcall means the guest wrote an upcall code and arguments and
	// is now blocked waiting for the host to answer it.
	YieldUpcall YieldKind = iota
	// YieldExited means the guest ran off the end of its entry function.
	YieldExited
)

// NArgs is the number of argument words a guest can pack into a single
// upcall, matching the reference implementation's fixed upcall_args array.
const NArgs = 8

// Yield is what guest code hands back to the host at an activation
// boundary.
type Yield struct {
	Kind YieldKind
	Code uint64
	Args [NArgs]uint64
}

// Glue is the activation mechanism a proc uses to hand control to its
// guest code and get it back. Implementations are not required to be
// goroutine-based; GoroutineGlue is the only one this module ships, but
// the interface is what lets proc.go stay agnostic of how control
// transfer actually happens.
type Glue interface {
	// Start begins running entry on whatever underlies this Glue. It must
	// be called exactly once, before the first Activate.
	Start(entry func(*GuestContext))
	// Activate hands control to the guest and blocks until it yields
	// back. result carries the answer to the guest's previous upcall (the
	// upcall return words); it is ignored on the first call after Start,
	// which has no previous upcall to answer.
	Activate(result [NArgs]uint64) Yield
}

// GuestContext is the guest-facing half of the rendezvous: the only way
// guest code (in this module, always a Go closure standing in for
// compiler-emitted code) can ask the host for anything.
type GuestContext struct {
	toHost  chan Yield
	toGuest chan [NArgs]uint64
}

// Upcall writes code and args into the rendezvous channel the same way
// the reference implementation's guest code would write them into its
// proc's upcall scratch space, then blocks for the host's answer.
func (c *GuestContext) Upcall(code uint64, args [NArgs]uint64) [NArgs]uint64 {
	c.toHost <- Yield{Kind: YieldUpcall, Code: code, Args: args}
	return <-c.toGuest
}

// GoroutineGlue is the idiomatic-Go activation mechanism: guest code runs
// on a dedicated goroutine, parked on toHost/toGuest between activations.
//
// The goroutine is not actually launched until the first Activate call,
// not at Start. This matters: a freshly spawned proc's guest code must
// not observe any of the host-side setup (port creation, handle
// registration) that happens between construction and the proc's first
// turn on the scheduler — deferring the launch means entry never runs
// concurrently with that setup.
type GoroutineGlue struct {
	toHost  chan Yield
	toGuest chan [NArgs]uint64
	entry   func(*GuestContext)
	started bool
}

// NewGoroutineGlue allocates a Glue whose guest code has not yet started.
func NewGoroutineGlue() *GoroutineGlue {
	return &GoroutineGlue{
		toHost:  make(chan Yield),
		toGuest: make(chan [NArgs]uint64),
	}
}

// Start records entry to run once this Glue is first activated.
func (g *GoroutineGlue) Start(entry func(*GuestContext)) {
	g.entry = entry
}

// Activate launches entry on its first call, then on every later call
// hands the previous upcall's result words to the guest goroutine waiting
// on them and blocks until the guest's next yield.
func (g *GoroutineGlue) Activate(result [NArgs]uint64) Yield {
	if !g.started {
		g.started = true
		ctx := &GuestContext{toHost: g.toHost, toGuest: g.toGuest}
		entry := g.entry
		go func() {
			entry(ctx)
			g.toHost <- Yield{Kind: YieldExited}
		}()
		return <-g.toHost
	}

	g.toGuest <- result
	return <-g.toHost
}
