// Package stack implements the runtime's segmented proc stacks: heap
// allocated chunks chained doubly together, plus the byte-level frame
// synthesis the runtime lays down when spawning a proc and the frame-chain
// walk the GC contract needs.
//
// Go gives no supported way to splice a goroutine's machine stack, so these
// segments are a shadow model: a byte-addressed region that holds exactly
// the slots the original runtime wrote (callee-save cells, return-PC
// cells, the frame-glue-fns pointer), kept consistent across grow/spawn so
// every byte-layout invariant is checkable against real data even though
// the goroutine actually executing guest code has its own, Go-managed
// stack.
package stack

import "encoding/binary"

// WordSize is the size in bytes of one stack slot (callee-save cell,
// return-PC cell, and so on), matching a 64-bit uintptr_t.
const WordSize = 8

// MinBytes is the minimum segment size the runtime will ever allocate,
// mirroring min_stk_bytes in the reference runtime.
const MinBytes = 0x300

// NCalleeSaves and CalleeSaveFP describe the reference architecture's
// callee-save layout: four callee-save cells per frame, with the frame
// pointer carried in the first of them.
const (
	NCalleeSaves = 4
	CalleeSaveFP = 0
)

// Host is the subset of host services the stack package needs: logical
// allocation accounting and stack-aware memory checker registration.
type Host interface {
	TrackAlloc(nbytes int)
	TrackFree(nbytes int)
	RegisterStack(data []byte) any
	DeregisterStack(token any)
}

// Segment is one contiguous chunk of a proc's segmented stack.
type Segment struct {
	Data     []byte
	PtrSlots map[int]any // byte offset -> pointer-valued cell (frame-glue-fns, proc, glue tokens)
	Prev     *Segment
	Next     *Segment

	host     Host
	regToken any
}

// New allocates a segment with usable capacity for at least minBytes,
// rounded up to MinBytes, and registers it with the host's stack checker.
func New(host Host, minBytes int) *Segment {
	if minBytes < MinBytes {
		minBytes = MinBytes
	}
	host.TrackAlloc(minBytes)
	data := make([]byte, minBytes)
	tok := host.RegisterStack(data)
	return &Segment{
		Data:     data,
		PtrSlots: make(map[int]any),
		host:     host,
		regToken: tok,
	}
}

// Limit is the one-past-the-end byte offset of this segment's usable
// region — the "top" of the stack, matching stk_seg.limit.
func (s *Segment) Limit() int { return len(s.Data) }

// Free deregisters the segment from the host's stack checker and releases
// its allocation accounting. It does not walk Prev/Next; FreeChain does.
func (s *Segment) Free() {
	s.host.DeregisterStack(s.regToken)
	s.host.TrackFree(len(s.Data))
}

// FreeChain rewinds to the bottom-most segment in the chain containing s,
// then frees forward, matching del_stk's two-pass walk.
func FreeChain(s *Segment) {
	for s.Prev != nil {
		s = s.Prev
	}
	for s != nil {
		next := s.Next
		s.Free()
		s = next
	}
}

// Pointer is a stack-pointer value: a byte offset into a specific segment.
// The region [Off, len(Seg.Data)) is the part of the segment currently "in
// use", mirroring how rust_sp decreases toward lower addresses as more is
// pushed.
type Pointer struct {
	Seg *Segment
	Off int
}

// ReadWord reads the word-sized plain value at off.
func (s *Segment) ReadWord(off int) uint64 {
	return binary.LittleEndian.Uint64(s.Data[off : off+WordSize])
}

// WriteWord overwrites the word-sized plain value at off.
func (s *Segment) WriteWord(off int, v uint64) {
	binary.LittleEndian.PutUint64(s.Data[off:off+WordSize], v)
}

// ReadPtr reads the pointer-valued cell at off, or nil if none was ever
// written there.
func (s *Segment) ReadPtr(off int) any {
	return s.PtrSlots[off]
}

// frameWriter lays down words from the top of a segment downward, matching
// the reference constructor's "*spp-- = val" sequence: it stores at the
// current cursor, then moves the cursor one word lower.
type frameWriter struct {
	seg *Segment
	off int
}

func (w *frameWriter) word(v uint64) (wroteAt int) {
	wroteAt = w.off
	w.seg.WriteWord(wroteAt, v)
	w.off -= WordSize
	return
}

func (w *frameWriter) ptr(p any) (wroteAt int) {
	wroteAt = w.word(0)
	if p != nil {
		w.seg.PtrSlots[wroteAt] = p
	}
	return
}

// SpawnFrames synthesizes the two frames a freshly spawned proc needs: a
// fully formed "exit" frame at the top of the segment that pretends to be
// mid-execution, and a just-starting frame beneath it holding the
// implicit incoming arguments (proc, output address, return PC) plus
// whatever explicit call arguments were copied down from the spawner.
//
// spawner is nil for the root proc, in which case argBytes must be empty.
// argBytes holds exactly the explicit-argument payload to splice into the
// spawnee frame — the spawner's call-site bytes with the proc and output
// slots already excluded, matching callsz after the reference
// constructor's "callsz -= 2*sizeof(uintptr_t)".
func SpawnFrames(seg *Segment, procRef, exitGlue, spawneeFn any, spawner *Pointer, argBytes []byte) Pointer {
	off := len(seg.Data) - WordSize
	off &^= 0xf
	w := &frameWriter{seg: seg, off: off}

	// The exit-proc-glue frame we synthesize above the frame we activate.
	w.ptr(procRef) // proc
	w.word(0)      // output
	w.word(0)      // retpc
	for j := 0; j < NCalleeSaves; j++ {
		w.word(0)
	}

	// frameBase points at the last callee-save cell written above, so we
	// can inject it as the spawnee frame's restored frame pointer.
	frameBase := uint64(w.off + WordSize)

	w.ptr(nil) // frame_glue_fns for the exit-proc-glue frame: none

	if spawner != nil {
		skip := (1 + NCalleeSaves + 1 + 1) * WordSize
		src := spawner.Off + skip
		n := len(argBytes)
		w.off -= n
		copy(seg.Data[w.off:w.off+n], spawner.Seg.Data[src:src+n])
		w.off -= WordSize // move down to point to the proc cell
	} else if len(argBytes) != 0 {
		panic("stack: root proc must be spawned with no call arguments")
	}

	// The implicit incoming args to the spawnee frame we're activating.
	w.ptr(procRef)   // proc
	w.word(0)        // output addr
	w.ptr(exitGlue)  // retpc
	w.ptr(spawneeFn) // instruction to start at

	for j := 0; j < NCalleeSaves; j++ {
		if j == CalleeSaveFP {
			w.word(frameBase)
		} else {
			w.word(0)
		}
	}

	return Pointer{Seg: seg, Off: w.off + WordSize}
}

// calleeSaveSlot returns the byte offset of the callee-save cell that
// carries a suspended frame's saved frame pointer, given the address
// (sp or fp) that names the start of that frame's 4-word callee-save
// block — the Go analogue of get_callee_save_fp.
func calleeSaveSlot(blockStart int) int {
	return blockStart + (NCalleeSaves-1-CalleeSaveFP)*WordSize
}

// GetFP returns the frame pointer recorded for the frame currently
// suspended at sp: the value stored in that frame's saved-FP callee-save
// cell. A return of 0 means there is no frame (the proc has fully exited).
func GetFP(sp Pointer) uint64 {
	return sp.Seg.ReadWord(calleeSaveSlot(sp.Off))
}

// GetPreviousFP walks one link further up the frame-pointer chain from fp.
func GetPreviousFP(seg *Segment, fp uint64) uint64 {
	return seg.ReadWord(calleeSaveSlot(int(fp)))
}

// GetFrameGlueFns reads the frame-glue-fns pointer stored one word below
// the given frame pointer.
func GetFrameGlueFns(seg *Segment, fp uint64) any {
	return seg.ReadPtr(int(fp) - WordSize)
}

// Grow is invoked when a guest frame's prologue finds it has run out of
// room in the current segment. It ensures cur has a next segment large
// enough to hold nFrameBytes, splices it in (reusing an existing-but-small
// next segment by pushing it one link further down the chain, exactly as
// the reference implementation does), and transplants the nCallBytes call
// region at sp into the new segment's top, returning the transplanted
// stack pointer.
//
// The reference implementation sizes the new segment's existing-next-big-
// enough check from an address difference that silently mixes the current
// and next segments' base addresses; that check is meaningless once there
// is no guarantee two segments are adjacent, so here it is replaced by the
// evident intent: compare the next segment's own capacity against
// nFrameBytes.
func Grow(host Host, cur *Segment, sp Pointer, nCallBytes, nFrameBytes int) Pointer {
	nstk := cur.Next
	if nstk != nil {
		if len(nstk.Data) < nFrameBytes {
			grown := New(host, nFrameBytes)
			grown.Next = cur.Next
			cur.Next.Prev = grown
			nstk = grown
		}
	} else {
		nstk = New(host, nFrameBytes)
	}
	cur.Next = nstk
	nstk.Prev = cur

	target := len(nstk.Data) - nCallBytes
	copy(nstk.Data[target:target+nCallBytes], sp.Seg.Data[sp.Off:sp.Off+nCallBytes])

	// Raw memcpy in the reference implementation carries pointer-valued
	// words along for free; our side-table of pointer cells needs an
	// explicit migration to keep frame-glue-fns (and similar) pointers
	// intact across the transplant.
	for off, p := range sp.Seg.PtrSlots {
		if off >= sp.Off && off < sp.Off+nCallBytes {
			nstk.PtrSlots[target+(off-sp.Off)] = p
			delete(sp.Seg.PtrSlots, off)
		}
	}

	return Pointer{Seg: nstk, Off: target}
}
