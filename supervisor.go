package coprocrt

import (
	"context"

	"github.com/basalt-run/coprocrt/pkg/activation"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs independent Runtimes concurrently, one native OS
// thread's worth of scheduling each — the Go analogue of
// upcall_new_thread, which the reference implementation uses to start a
// second rust_scheduler on its own pthread. Each ThreadHandle's Runtime
// is fully independent: there is no cross-runtime port or channel
// traffic, matching upcall_new_thread's own behavior of returning NULL
// rather than wiring the new scheduler's procs to the caller's.
type Supervisor struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewSupervisor builds a Supervisor whose SpawnThread calls share ctx;
// canceling ctx does not stop an in-flight Runtime.Run (the scheduler
// has no cancellation hook of its own), and Wait still waits for every
// spawned Run to return.
func NewSupervisor(ctx context.Context) *Supervisor {
	g, gctx := errgroup.WithContext(ctx)
	return &Supervisor{group: g, ctx: gctx}
}

// ThreadHandle is a running scheduler thread's externally visible handle.
type ThreadHandle struct {
	rt *Runtime
}

// Runtime returns the handle's Runtime, for registering additional
// spawnable entries before the root proc starts calling new_proc.
func (h *ThreadHandle) Runtime() *Runtime { return h.rt }

// SpawnThread builds a new Runtime against host/cfg, spawns entry as its
// root proc, and runs that Runtime's scheduler loop on its own goroutine.
// The root proc is spawned synchronously, before SpawnThread returns, so
// there is no race between this call and the goroutine's first
// scheduling tick.
func (s *Supervisor) SpawnThread(cfg Config, host Host, entry func(*activation.GuestContext)) *ThreadHandle {
	rt := NewRuntime(cfg, host)
	rt.NewRootProc(entry)
	handle := &ThreadHandle{rt: rt}
	s.group.Go(func() error {
		return rt.Run()
	})
	return handle
}

// Wait blocks until every thread spawned via SpawnThread has returned,
// propagating the first non-nil error (typically a FatalError out of one
// runtime's main loop).
func (s *Supervisor) Wait() error {
	return s.group.Wait()
}
