// Package container holds the two hand-rolled collections the runtime
// builds everything else on top of: a pointer-indexed vector with O(1)
// removal by stored index, and a byte-granular circular buffer.
package container

// Indexed is implemented by anything a PtrVector stores. The vector writes
// back each element's position so the element can later remove itself in
// constant time via SwapDelete.
type Indexed interface {
	SetIndex(i int)
	Index() int
}

const initVecSize = 8

// PtrVector is an amortized-growth, swap-delete vector of owning pointers.
// It is used for the runtime's runnable/blocked proc sets and for each
// port's writers list.
type PtrVector[T Indexed] struct {
	data []T
}

// NewPtrVector returns an empty vector with the initial capacity the
// runtime's ptr_vec used.
func NewPtrVector[T Indexed]() *PtrVector[T] {
	return &PtrVector[T]{data: make([]T, 0, initVecSize)}
}

// Len reports the number of live elements.
func (v *PtrVector[T]) Len() int {
	return len(v.data)
}

// At returns the element stored at i, panicking like a slice index would if
// i is out of range.
func (v *PtrVector[T]) At(i int) T {
	return v.data[i]
}

// Push appends p and records its new position on p itself.
func (v *PtrVector[T]) Push(p T) {
	p.SetIndex(len(v.data))
	v.data = append(v.data, p)
}

// Pop removes and returns the last element.
func (v *PtrVector[T]) Pop() T {
	last := len(v.data) - 1
	p := v.data[last]
	v.data = v.data[:last]
	return p
}

// SwapDelete removes p by swapping the final element into p's stored slot
// and shrinking the vector by one. p must currently be a member; its Index()
// must match its actual slot.
func (v *PtrVector[T]) SwapDelete(p T) {
	fill := len(v.data)
	idx := p.Index()
	fill--
	if fill > 0 {
		subst := v.data[fill]
		v.data[idx] = subst
		subst.SetIndex(idx)
	}
	v.data = v.data[:fill]
}

// Trim halves capacity once fill has dropped to a quarter of it, provided
// the halved capacity would still be at least the initial minimum. Go
// slices don't expose a realloc-in-place primitive, so Trim reallocates and
// copies, matching the shrink-on-demand behavior of the original container
// without pretending to avoid the copy.
func (v *PtrVector[T]) Trim(fill int) {
	cap1 := cap(v.data)
	if fill <= cap1/4 && cap1/2 >= initVecSize {
		newCap := cap1 / 2
		grown := make([]T, len(v.data), newCap)
		copy(grown, v.data)
		v.data = grown
	}
}
