package coprocrt

import (
	"os"

	"github.com/basalt-run/coprocrt/internal/stack"
)

// Host is the runtime's equivalent of rust_srv: the set of services the
// embedder supplies — allocation accounting, a stack-aware memory
// checker hook, logging, and the unrecoverable-error sink. It embeds
// stack.Host directly so a *StdHost can be handed to internal/stack
// without an adapter.
type Host interface {
	stack.Host

	// Log routes a category-tagged message through the host's logger.
	Log(cat Category, format string, args ...any)
	// Logptr routes a category-tagged handle/address value through the
	// host's logger, formatted as hex.
	Logptr(cat Category, label string, val uint64)
	// Fatal reports an unrecoverable invariant violation. Implementations
	// are expected to log it and then stop the process (or, in tests,
	// record it); Fatal itself does not unwind the caller.
	Fatal(format string, args ...any)
	// LiveAllocs reports the number of allocations tracked but not yet
	// freed, used by the scheduler's leaked-memory check at shutdown.
	LiveAllocs() int
}

// StdHost is the default Host: process-wide allocation accounting, a
// Logger-backed Log/Fatal, and a no-op stack registration (there is no
// external memory checker wired up by default — RegisterStack/
// DeregisterStack exist so one, e.g. a test double, can be substituted).
type StdHost struct {
	logger *Logger
	allocs int
}

// NewStdHost builds a Host that logs through logger.
func NewStdHost(logger *Logger) *StdHost {
	return &StdHost{logger: logger}
}

func (h *StdHost) TrackAlloc(n int) {
	h.allocs++
	h.logger.Log(CatMemory, "alloc +%d bytes (live=%d)", n, h.allocs)
}

func (h *StdHost) TrackFree(n int) {
	h.allocs--
	h.logger.Log(CatMemory, "free -%d bytes (live=%d)", n, h.allocs)
}

func (h *StdHost) RegisterStack(data []byte) any {
	return nil
}

func (h *StdHost) DeregisterStack(token any) {}

func (h *StdHost) Log(cat Category, format string, args ...any) {
	h.logger.Log(cat, format, args...)
}

func (h *StdHost) Logptr(cat Category, label string, val uint64) {
	h.logger.Logptr(cat, label, val)
}

func (h *StdHost) Fatal(format string, args ...any) {
	h.logger.Fatal(format, args...)
	os.Exit(1)
}

func (h *StdHost) LiveAllocs() int { return h.allocs }
