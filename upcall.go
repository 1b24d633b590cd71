package coprocrt

import (
	"encoding/binary"

	"github.com/basalt-run/coprocrt/pkg/activation"
)

// Code identifies an upcall, in the same order as the reference
// implementation's upcall_t enum so the numbering stays a recognizable
// match for anyone cross-referencing the two.
type Code uint64

const (
	CodeLogInt Code = iota
	CodeLogStr
	CodeNewProc
	CodeDelProc
	CodeFail
	CodeMalloc
	CodeFree
	CodeNewPort
	CodeDelPort
	CodeSend
	CodeRecv
	CodeNewStr
	CodeGrowProc
	CodeTraceWord
	CodeTraceStr
)

// dispatch answers one upcall from p, mutating rt/p/the relevant
// port or channel as needed and returning the result words the next
// Activate call delivers back to the guest. This is handle_upcall's
// switch, kept as the single place the untyped word-array ABI gets
// decoded into real operations.
func (rt *Runtime) dispatch(p *Proc, code uint64, args [activation.NArgs]uint64) [activation.NArgs]uint64 {
	var result [activation.NArgs]uint64

	switch Code(code) {
	case CodeLogInt:
		rt.host.Log(CatUserLog, "proc %d: %d", p.id, int64(args[0]))

	case CodeLogStr:
		rt.host.Log(CatUserLog, "proc %d: %s", p.id, p.lookupString(args[0]))

	case CodeNewStr:
		result[0] = p.newString(decodeStringArgs(args))

	case CodeNewProc:
		entry, ok := rt.entries[args[0]]
		if !ok {
			rt.host.Fatal("proc %d: new_proc named unregistered entry %d", p.id, args[0])
			break
		}
		child := rt.Spawn(p, entry, nil)
		result[0] = child.id

	case CodeDelProc:
		rt.delProc(p, args[0])

	case CodeFail:
		p.fail()

	case CodeMalloc:
		n := int(args[0])
		rt.host.TrackAlloc(n)
		h := &Header{}
		p.allocs.push(h)
		result[0] = rt.allocAllocHandle(h, n)
		rt.host.Logptr(CatMemory, "malloc handle", result[0])

	case CodeFree:
		rt.freeAlloc(p, args[0])

	case CodeNewPort:
		port := rt.newPort(p, int(args[0]))
		result[0] = rt.allocPortHandle(port)
		rt.host.Logptr(CatCommunication, "port handle", result[0])

	case CodeDelPort:
		if port := rt.resolvePortHandle(args[0]); port != nil {
			port.liveRefcnt--
			rt.delPort(port)
			delete(rt.portHandles, args[0])
		} else {
			rt.host.Log(CatErrors, "proc %d: del_port on unknown handle %d", p.id, args[0])
		}

	case CodeSend:
		port := rt.resolvePortHandle(args[0])
		if port == nil {
			rt.host.Log(CatCommunication|CatErrors, "proc %d: %s", p.id, Recoverable("send on unknown port handle %d", args[0]))
			break
		}
		rt.send(p, port, args[1])

	case CodeRecv:
		port := rt.resolvePortHandle(args[1])
		if port == nil {
			rt.host.Log(CatCommunication|CatErrors, "proc %d: %s", p.id, Recoverable("recv on unknown port handle %d", args[1]))
			break
		}
		// recv may complete a transmission immediately, in which case the
		// delivered word must travel back through result[0] — tick()
		// overwrites p.upcallArgs with exactly what dispatch returns here,
		// so leaving result zeroed would clobber the value attemptTransmission
		// just wrote into p.upcallArgs[0] directly.
		if value, delivered := rt.recv(p, port); delivered {
			result[0] = value
		}

	case CodeGrowProc:
		p.grow(int(args[0]), int(args[1]))

	case CodeTraceWord:
		rt.host.Log(CatTrace, "proc %d trace: 0x%x", p.id, args[0])

	case CodeTraceStr:
		rt.host.Log(CatTrace, "proc %d trace: %q", p.id, p.lookupString(args[0]))

	default:
		rt.host.Fatal("proc %d: unknown upcall code %d", p.id, code)
	}

	return result
}

// delProc implements upcall_del_proc: it drops a reference the caller
// (usually a spawner) held on another proc and, once that proc's own
// reference count reaches zero, tears it down immediately rather than
// routing it through the normal failing-state transition.
//
// TODO: the reference implementation's del_proc bypasses fail() on
// purpose — a proc reaped this way never gets the chance to run any
// cleanup a future fail() hook might add. Preserved as-is; revisit if
// this module ever grows guest-visible proc-exit hooks.
func (rt *Runtime) delProc(caller *Proc, targetID uint64) {
	target, ok := rt.procsByID[targetID]
	if !ok {
		rt.host.Log(CatErrors, "proc %d: del_proc on unknown proc %d", caller.id, targetID)
		return
	}
	target.refcnt--
	if target.refcnt > 0 {
		return
	}
	target.teardown()
	rt.removeProc(target)
	delete(rt.procsByID, target.id)
	rt.host.Log(CatProc, "proc %d reaped by del_proc", target.id)
}

// freeAlloc implements upcall_free: release the allocation handle's
// tracked bytes and drop it from the runtime's handle table. It does not
// walk or trim the allocating proc's GC allocation chain — that chain
// exists purely for the collector to traverse, not for the runtime to
// free piecemeal.
func (rt *Runtime) freeAlloc(p *Proc, handle uint64) {
	n, ok := rt.allocSizes[handle]
	if !ok {
		rt.host.Log(CatErrors, "proc %d: free on unknown allocation handle %d", p.id, handle)
		return
	}
	rt.host.TrackFree(n)
	delete(rt.allocHandles, handle)
	delete(rt.allocSizes, handle)
}

// newString records s in this proc's string table and returns the
// handle log_str/trace_str later dereference.
func (p *Proc) newString(s string) uint64 {
	p.strings = append(p.strings, s)
	return uint64(len(p.strings) - 1)
}

func (p *Proc) lookupString(handle uint64) string {
	if handle >= uint64(len(p.strings)) {
		return ""
	}
	return p.strings[handle]
}

// maxInlineStringBytes is how much of a string new_str can carry inline
// in its upcall argument words: one length word plus seven data words.
const maxInlineStringBytes = (activation.NArgs - 1) * 8

// decodeStringArgs unpacks new_str's argument encoding: args[0] is the
// byte length (at most maxInlineStringBytes), and args[1:] hold that
// many bytes, little-endian, 8 per word.
func decodeStringArgs(args [activation.NArgs]uint64) string {
	n := int(args[0])
	if n > maxInlineStringBytes {
		n = maxInlineStringBytes
	}
	buf := make([]byte, maxInlineStringBytes)
	for i := 1; i < activation.NArgs; i++ {
		binary.LittleEndian.PutUint64(buf[(i-1)*8:i*8], args[i])
	}
	return string(buf[:n])
}

// encodeStringArgs is decodeStringArgs's inverse, used by guest-facing
// helpers that need to pack a string into a new_str call. Strings longer
// than maxInlineStringBytes are truncated — guests needing more should
// split across multiple new_str calls and concatenate handles, which
// this module does not attempt to do for them.
func encodeStringArgs(s string) [activation.NArgs]uint64 {
	var args [activation.NArgs]uint64
	b := []byte(s)
	if len(b) > maxInlineStringBytes {
		b = b[:maxInlineStringBytes]
	}
	args[0] = uint64(len(b))
	buf := make([]byte, maxInlineStringBytes)
	copy(buf, b)
	for i := 1; i < activation.NArgs; i++ {
		args[i] = binary.LittleEndian.Uint64(buf[(i-1)*8 : i*8])
	}
	return args
}
