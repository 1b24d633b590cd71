package coprocrt

import "github.com/basalt-run/coprocrt/pkg/activation"

// Run drives rt's main scheduling loop: while any proc is runnable, pick
// one uniformly at random, activate it, and answer whatever it yielded
// back. This is rust_main_loop stripped of its platform stack-switch —
// the random pick, the upcall/exit dispatch, and the leaked-memory check
// at shutdown all match it directly.
func (rt *Runtime) Run() error {
	for rt.running.Len() > 0 {
		if err := rt.tick(); err != nil {
			return err
		}
	}

	rt.teardownRemaining()

	if n := rt.host.LiveAllocs(); n != 0 {
		return Fatalf("leaked %d allocation(s) at shutdown", n)
	}
	return nil
}

// teardownRemaining reaps every proc still sitting in rt.blocked — procs
// parked forever on a recv/send that will never be satisfied, which the
// main loop above never visits since it only drains rt.running — and
// then forces every still-registered port closed, regardless of
// refcount. Matches del_all_procs(running_procs)/del_all_procs(blocked_procs)
// plus the dangling-port sweep rust_main_loop runs before checking
// live_allocs: without this, a deadlocked proc's still-tracked stack
// segments read as a leak even though nothing guest-visible leaked.
func (rt *Runtime) teardownRemaining() {
	for rt.running.Len() > 0 {
		rt.reap(rt.running.At(rt.running.Len()-1), "runtime shutdown")
	}
	for rt.blocked.Len() > 0 {
		rt.reap(rt.blocked.At(rt.blocked.Len()-1), "runtime shutdown")
	}
	for rt.ports.Len() > 0 {
		port := rt.ports.At(rt.ports.Len() - 1)
		port.liveRefcnt = 0
		port.weakRefcnt = 0
		rt.delPort(port)
	}
}

// Step runs a single scheduling tick and reports whether any proc is
// still runnable afterward. It does not perform Run's end-of-run leak
// check, since a caller stepping interactively may stop well before the
// runtime is actually done. Intended for interactive single-stepping,
// not for driving a runtime to completion — callers that don't need to
// observe intermediate state should use Run instead.
func (rt *Runtime) Step() (more bool, err error) {
	if rt.running.Len() == 0 {
		return false, nil
	}
	if err := rt.tick(); err != nil {
		return false, err
	}
	return rt.running.Len() > 0, nil
}

// tick activates one randomly chosen runnable proc and answers whatever
// it yielded back, reaping it if it exited or failed in the process.
func (rt *Runtime) tick() error {
	i := rt.randIndex(rt.running.Len())
	p := rt.running.At(i)

	if p.sp.Off < 0 || p.sp.Off >= len(p.sp.Seg.Data) {
		return Fatalf("proc %d stack pointer out of bounds: off=%d limit=%d", p.id, p.sp.Off, len(p.sp.Seg.Data))
	}

	yield := p.glue.Activate(p.upcallArgs)

	switch yield.Kind {
	case activation.YieldUpcall:
		rt.transition(p, StateCallingHost)
		result := rt.dispatch(p, yield.Code, yield.Args)
		p.upcallArgs = result
		// dispatch may already have moved p elsewhere (blocked
		// reading/writing, or failing); only force it back to
		// running if it's still sitting in calling-host.
		if p.state == StateCallingHost {
			rt.transition(p, StateRunning)
		}

	case activation.YieldExited:
		rt.reap(p, "exited")

	default:
		return Fatalf("proc %d: unrecognized yield kind %d", p.id, yield.Kind)
	}

	if p.state == StateFailing {
		rt.reap(p, "failed")
	}
	return nil
}

// reap retires p: it moves to blocked-exited (the reference
// implementation's proc destructor runs from this same state, reached
// either by a normal return or by unwinding out of failing — both paths
// converge here rather than being kept distinct), tears down its stack
// and owned ports, and drops it from every table that was tracking it.
func (rt *Runtime) reap(p *Proc, reason string) {
	rt.transition(p, StateBlockedExited)
	p.teardown()
	rt.removeProc(p)
	delete(rt.procsByID, p.id)
	rt.host.Log(CatProc, "proc %d %s", p.id, reason)
}
