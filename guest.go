package coprocrt

import "github.com/basalt-run/coprocrt/pkg/activation"

// The functions in this file are what an entry function passed to
// RegisterEntry/NewRootProc actually calls: typed wrappers around
// ctx.Upcall that pack and unpack the untyped argument words so guest
// code never has to know the layout dispatch expects. They are the Go
// reframing's stand-in for what a compiler would have emitted directly
// against the upcall ABI.

// LogInt upcalls log_int with an integer value.
func LogInt(ctx *activation.GuestContext, v int64) {
	var args [activation.NArgs]uint64
	args[0] = uint64(v)
	ctx.Upcall(uint64(CodeLogInt), args)
}

// NewStr allocates a guest string handle, truncating to
// maxInlineStringBytes if s is longer.
func NewStr(ctx *activation.GuestContext, s string) uint64 {
	result := ctx.Upcall(uint64(CodeNewStr), encodeStringArgs(s))
	return result[0]
}

// LogStr upcalls log_str, allocating a handle for s first.
func LogStr(ctx *activation.GuestContext, s string) {
	var args [activation.NArgs]uint64
	args[0] = NewStr(ctx, s)
	ctx.Upcall(uint64(CodeLogStr), args)
}

// TraceWord upcalls trace_word.
func TraceWord(ctx *activation.GuestContext, v uint64) {
	var args [activation.NArgs]uint64
	args[0] = v
	ctx.Upcall(uint64(CodeTraceWord), args)
}

// TraceStr upcalls trace_str, allocating a handle for s first.
func TraceStr(ctx *activation.GuestContext, s string) {
	var args [activation.NArgs]uint64
	args[0] = NewStr(ctx, s)
	ctx.Upcall(uint64(CodeTraceStr), args)
}

// NewPort upcalls new_port and returns the handle the guest uses to
// refer to it in later Send/Recv/DelPort calls.
func NewPort(ctx *activation.GuestContext, unitSize int) uint64 {
	var args [activation.NArgs]uint64
	args[0] = uint64(unitSize)
	result := ctx.Upcall(uint64(CodeNewPort), args)
	return result[0]
}

// DelPort upcalls del_port.
func DelPort(ctx *activation.GuestContext, port uint64) {
	var args [activation.NArgs]uint64
	args[0] = port
	ctx.Upcall(uint64(CodeDelPort), args)
}

// Send upcalls send: args[0] names the port, args[1] carries the value —
// matching the asymmetric slot layout recv uses in reverse.
func Send(ctx *activation.GuestContext, port uint64, value uint64) {
	var args [activation.NArgs]uint64
	args[0] = port
	args[1] = value
	ctx.Upcall(uint64(CodeSend), args)
}

// Recv upcalls recv — args[1] names the port — and returns the value
// delivered once a transmission completes. Recv blocks the calling
// goroutine (not the host) until some later send completes it; there is
// no timeout.
func Recv(ctx *activation.GuestContext, port uint64) uint64 {
	var args [activation.NArgs]uint64
	args[1] = port
	result := ctx.Upcall(uint64(CodeRecv), args)
	return result[0]
}

// Spawn upcalls new_proc, starting the entry function registered under
// entryID and returning the new proc's id.
func Spawn(ctx *activation.GuestContext, entryID uint64) uint64 {
	var args [activation.NArgs]uint64
	args[0] = entryID
	result := ctx.Upcall(uint64(CodeNewProc), args)
	return result[0]
}

// DelProc upcalls del_proc against procID.
func DelProc(ctx *activation.GuestContext, procID uint64) {
	var args [activation.NArgs]uint64
	args[0] = procID
	ctx.Upcall(uint64(CodeDelProc), args)
}

// Fail upcalls fail, tearing the calling proc down.
func Fail(ctx *activation.GuestContext) {
	ctx.Upcall(uint64(CodeFail), [activation.NArgs]uint64{})
}

// GrowStack upcalls grow_proc.
func GrowStack(ctx *activation.GuestContext, nCallBytes, nFrameBytes int) {
	var args [activation.NArgs]uint64
	args[0] = uint64(nCallBytes)
	args[1] = uint64(nFrameBytes)
	ctx.Upcall(uint64(CodeGrowProc), args)
}
