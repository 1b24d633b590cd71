package coprocrt

import "fmt"

// fakeHost is a Host double that records rather than prints, so tests can
// assert on what the runtime logged and fataled without parsing stdout.
type fakeHost struct {
	allocs    int
	logs      []string
	fatals    []string
	registers int
}

func newFakeHost() *fakeHost { return &fakeHost{} }

func (h *fakeHost) TrackAlloc(n int) { h.allocs++ }
func (h *fakeHost) TrackFree(n int)  { h.allocs-- }

func (h *fakeHost) RegisterStack(data []byte) any {
	h.registers++
	return h.registers
}

func (h *fakeHost) DeregisterStack(token any) {
	h.registers--
}

func (h *fakeHost) Log(cat Category, format string, args ...any) {
	h.logs = append(h.logs, fmt.Sprintf(format, args...))
}

func (h *fakeHost) Logptr(cat Category, label string, val uint64) {
	h.logs = append(h.logs, fmt.Sprintf("%s 0x%x", label, val))
}

func (h *fakeHost) Fatal(format string, args ...any) {
	h.fatals = append(h.fatals, fmt.Sprintf(format, args...))
}

func (h *fakeHost) LiveAllocs() int { return h.allocs }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Stack.InitialBytes = 0x300
	cfg.Stack.MinGrowBytes = 0x300
	cfg.Channel.InitialUnits = 4
	return cfg
}
