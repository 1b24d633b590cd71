package coprocrt

import "github.com/basalt-run/coprocrt/internal/container"

// Port is a typed rendezvous point owned by the proc that reads from it.
// Any number of other procs may hold a Channel (a buffered, per-sender
// queue) targeting this port; Port itself just tracks who may currently
// write to it (writers) and how many live/weak references keep it alive.
type Port struct {
	index int

	proc     *Proc // the reading/owning proc
	unitSize int

	liveRefcnt int
	weakRefcnt int

	writers *container.PtrVector[*Channel]
}

func (p *Port) SetIndex(i int) { p.index = i }
func (p *Port) Index() int     { return p.index }

// newPort allocates a port owned by proc, registers it in the runtime's
// port list, and records it on the proc's owned-port set for teardown —
// matching upcall_new_port plus the bookkeeping rust_proc's destructor
// and the runtime's dangling-ports sweep rely on.
func (rt *Runtime) newPort(proc *Proc, unitSize int) *Port {
	port := &Port{
		proc:       proc,
		unitSize:   unitSize,
		liveRefcnt: 1,
		writers:    container.NewPtrVector[*Channel](),
	}
	rt.ports.Push(port)
	proc.ports.add(port)
	rt.host.Log(CatCommunication, "new port unit_sz=%d owner=%d", unitSize, proc.id)
	return port
}

// delPort drops port once both its live and weak reference counts have
// reached zero, matching upcall_del_port's refcount-gated delete.
func (rt *Runtime) delPort(port *Port) {
	if port.liveRefcnt != 0 || port.weakRefcnt != 0 {
		return
	}
	rt.ports.SwapDelete(port)
	rt.ports.Trim(rt.ports.Len())
	if port.proc != nil {
		port.proc.ports.remove(port)
	}
}
