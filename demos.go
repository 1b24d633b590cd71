package coprocrt

import "github.com/basalt-run/coprocrt/pkg/activation"

// This file builds the worked scenarios a runtime can be exercised
// against — useful both as smoke tests and as the coprocrt CLI's
// built-in demo programs, since this module has no guest compiler of
// its own to source real programs from.

// HelloWorld spawns a single root proc that logs a line and exits.
func HelloWorld(rt *Runtime) *Proc {
	return rt.NewRootProc(func(ctx *activation.GuestContext) {
		LogStr(ctx, "hello, world")
	})
}

// Ping spawns a reader proc that opens a 4-byte-unit port and a writer
// proc that sends it one value, then returns both so a caller can
// inspect the outcome after Run. received is filled in by the reader's
// own Recv call, so it must only be read after Run has returned — the
// write and the read are ordered by the same toHost/toGuest rendezvous
// that carries every other activation boundary.
func Ping(rt *Runtime, value uint64) (reader, writer *Proc, received *uint64) {
	reader = rt.NewRootProc(nil) // entry filled in below, once the port handle exists
	port := rt.newPort(reader, 4)
	handle := rt.allocPortHandle(port)
	received = new(uint64)

	reader.glue.Start(func(ctx *activation.GuestContext) {
		*received = Recv(ctx, handle)
	})

	writer = rt.Spawn(reader, func(ctx *activation.GuestContext) {
		Send(ctx, handle, value)
	}, nil)

	return reader, writer, received
}

// Backpressure spawns two senders targeting the same port and a reader
// that receives twice. The scheduler picks among the three at random, so
// the reader may issue its first Recv before either send; nothing here
// forces both sends to be queued first. received holds both
// delivered words in whatever order the reader's two Recv calls actually
// drained them, which attempt_transmission's uniform-random writer pick
// leaves unspecified — callers should compare it as a set against
// {v1, v2}, not position by position.
func Backpressure(rt *Runtime, v1, v2 uint64) (reader, s1, s2 *Proc, received *[2]uint64) {
	reader = rt.NewRootProc(nil)
	port := rt.newPort(reader, 8)
	handle := rt.allocPortHandle(port)
	received = new([2]uint64)

	s1 = rt.Spawn(reader, func(ctx *activation.GuestContext) {
		Send(ctx, handle, v1)
	}, nil)
	s2 = rt.Spawn(reader, func(ctx *activation.GuestContext) {
		Send(ctx, handle, v2)
	}, nil)

	reader.glue.Start(func(ctx *activation.GuestContext) {
		received[0] = Recv(ctx, handle)
		received[1] = Recv(ctx, handle)
	})

	return reader, s1, s2, received
}

// LeakyAlloc spawns a root proc that mallocs and returns without ever
// freeing, so Run's leaked-allocation check at shutdown fires.
func LeakyAlloc(rt *Runtime, nbytes int) *Proc {
	return rt.NewRootProc(func(ctx *activation.GuestContext) {
		var args [activation.NArgs]uint64
		args[0] = uint64(nbytes)
		ctx.Upcall(uint64(CodeMalloc), args)
	})
}

// PortTeardown spawns an owner proc that opens a port, two procs that
// queue sends against it without the owner ever draining them, and then
// exits — exercising Port/Channel cleanup when a proc with outstanding
// queued writers is reaped.
func PortTeardown(rt *Runtime) (owner, s1, s2 *Proc) {
	owner = rt.NewRootProc(func(ctx *activation.GuestContext) {})
	port := rt.newPort(owner, 8)
	handle := rt.allocPortHandle(port)

	s1 = rt.Spawn(owner, func(ctx *activation.GuestContext) {
		Send(ctx, handle, 1)
	}, nil)
	s2 = rt.Spawn(owner, func(ctx *activation.GuestContext) {
		Send(ctx, handle, 2)
	}, nil)

	return owner, s1, s2
}
