package coprocrt

import (
	"encoding/binary"

	"github.com/basalt-run/coprocrt/internal/container"
)

// Channel is one sender's outgoing queue to a destination Port: a small
// ring buffer of pending values plus the bookkeeping attempt_transmission
// needs (which sender, if any, is blocked waiting on this queue to
// drain, and whether the channel is already registered on its port's
// writers list).
//
// Values transmitted are single words. The reference implementation's
// circ_buf moves opaque sptr/unit_sz payloads (almost always themselves
// pointers to heap-allocated GC values); this module keeps that
// indirection explicit by only ever moving a uint64 handle through the
// buffer — what that handle names is the GC's concern, not the
// channel's.
type Channel struct {
	index int

	port    *Port
	buf     *container.RingBuffer
	blocked *Proc // the sender currently parked on this channel, if any
	queued  bool  // true once this channel is on port.writers
}

func (c *Channel) SetIndex(i int) { c.index = i }
func (c *Channel) Index() int     { return c.index }

const channelUnitSize = 8 // one word

func newChannel(port *Port, maxBytes, initUnits int) *Channel {
	return &Channel{
		port: port,
		buf:  container.NewRingBuffer(channelUnitSize, maxBytes, initUnits),
	}
}

// channelFor returns src's per-destination-port outgoing channel,
// creating it on first use — the Go equivalent of the HASH_FIND/HASH_ADD
// pair in upcall_send.
func (rt *Runtime) channelFor(src *Proc, port *Port) *Channel {
	if ch, ok := src.chans[port]; ok {
		return ch
	}
	ch := newChannel(port, rt.channelMaxBytes, rt.channelInitialUnits)
	src.chans[port] = ch
	return ch
}

// send implements upcall_send: src pushes value onto its channel to
// port, always blocks (transitioning out of calling-host) while the
// attempt is made, and is released immediately only if port's owning
// proc happens to already be waiting to read.
func (rt *Runtime) send(src *Proc, port *Port, value uint64) {
	if port == nil {
		rt.host.Log(CatCommunication|CatErrors, "%s", Recoverable("send to nil port (ignored)"))
		return
	}
	ch := rt.channelFor(src, port)

	if port.proc == nil {
		rt.host.Log(CatCommunication|CatErrors, "%s", Recoverable("send: port has no owning proc (ignored)"))
		return
	}

	ch.blocked = src
	word := make([]byte, channelUnitSize)
	binary.LittleEndian.PutUint64(word, value)
	if err := ch.buf.Push(word); err != nil {
		rt.host.Fatal("channel buffer overflow on port owned by proc %d: %v", port.proc.id, err)
		return
	}

	rt.transition(src, StateBlockedWriting)
	rt.attemptTransmission(ch, port.proc)

	if ch.buf.Unread() > 0 && !ch.queued {
		ch.queued = true
		port.writers.Push(ch)
	}
}

// recv implements upcall_recv: dst blocks for reading, then — if any
// channel is already queued on port.writers — picks one uniformly at
// random and tries to complete a transmission from it. The second return
// value reports whether that immediate delivery happened; when it did,
// value is the word attemptTransmission moved, so the caller can hand it
// back through the upcall result rather than relying solely on the
// direct write attemptTransmission also makes into dst.upcallArgs.
func (rt *Runtime) recv(dst *Proc, port *Port) (value uint64, delivered bool) {
	rt.transition(dst, StateBlockedReading)

	if port.writers.Len() == 0 {
		rt.host.Log(CatCommunication, "recv: no writers queued on port owned by proc %d", dst.id)
		return 0, false
	}

	i := rt.randIndex(port.writers.Len())
	ch := port.writers.At(i)
	if !rt.attemptTransmission(ch, dst) {
		return 0, false
	}
	port.writers.SwapDelete(ch)
	port.writers.Trim(port.writers.Len())
	ch.queued = false
	return dst.upcallArgs[0], true
}

// attemptTransmission is the one place a unit actually moves: it copies
// the oldest unread word out of src's buffer into dst's upcall scratch
// slot 0 (the recv call's output slot) and unblocks whichever side was
// waiting on this exchange specifically. Matches attempt_transmission's
// documented buffering protocol exactly, including returning false
// (without side effects beyond logging) when dst isn't actually blocked
// reading or src's buffer is empty.
func (rt *Runtime) attemptTransmission(src *Channel, dst *Proc) bool {
	if dst.state != StateBlockedReading {
		rt.host.Log(CatCommunication, "transmission incomplete: dst not in reading state")
		return false
	}
	if src.buf.Unread() == 0 {
		rt.host.Log(CatCommunication, "transmission incomplete: buffer empty")
		return false
	}

	word := make([]byte, channelUnitSize)
	src.buf.Shift(word)
	dst.upcallArgs[0] = binary.LittleEndian.Uint64(word)

	if src.blocked != nil {
		rt.transition(src.blocked, StateRunning)
		src.blocked = nil
	}
	rt.transition(dst, StateRunning)

	rt.host.Log(CatCommunication, "transmission complete")
	return true
}
