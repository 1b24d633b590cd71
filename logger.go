package coprocrt

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Category is a bitmask identifying which subsystem emitted a log line,
// matching the reference runtime's LOG_* bits exactly (errors, memory,
// communication, proc, upcall, runtime, user-log, trace).
type Category uint32

const (
	CatErrors        Category = 1 << iota // proc failures, fatal conditions
	CatMemory                             // malloc/free/realloc accounting, GC bookkeeping
	CatCommunication                      // port/channel send/recv traffic
	CatProc                               // proc lifecycle and state transitions
	CatUpcall                             // upcall dispatch
	CatRuntime                            // scheduler decisions
	CatUserLog                            // guest-originated log_int/log_str upcalls
	CatTrace                              // trace_word/trace_str upcalls

	catAll Category = 0xffffffff
)

// defaultBits matches get_logbits()'s default of LOG_ULOG|LOG_ERR: quiet
// unless the guest explicitly logs something, or something goes wrong.
const defaultBits = CatUserLog | CatErrors

// keywords is the comma-or-substring vocabulary COPROCRT_LOG is parsed
// against, in the same spirit as RUST_LOG's strstr checks.
var keywords = []struct {
	word string
	bit  Category
}{
	{"errors", CatErrors},
	{"memory", CatMemory},
	{"communication", CatCommunication},
	{"proc", CatProc},
	{"upcall", CatUpcall},
	{"runtime", CatRuntime},
	{"user-log", CatUserLog},
	{"trace", CatTrace},
	{"all", catAll},
}

// ParseLogBits parses a COPROCRT_LOG-style value (comma separated, or any
// substring match against the keyword vocabulary) into a Category bitmask.
// "all" counts only as a whole comma-separated entry, since "upcall"
// contains it as a substring. An empty string yields defaultBits.
func ParseLogBits(val string) Category {
	if val == "" {
		return defaultBits
	}
	var bits Category
	for _, kw := range keywords {
		matched := strings.Contains(val, kw.word)
		if kw.bit == catAll {
			matched = false
			for _, entry := range strings.Split(val, ",") {
				if strings.TrimSpace(entry) == kw.word {
					matched = true
				}
			}
		}
		if matched {
			bits |= kw.bit
		}
	}
	return bits
}

// LogBitsFromEnv reads COPROCRT_LOG the way the reference runtime reads
// RUST_LOG.
func LogBitsFromEnv() Category {
	return ParseLogBits(os.Getenv("COPROCRT_LOG"))
}

const (
	colorYellow = "\x1b[93m"
	colorRed    = "\x1b[91m"
	colorReset  = "\x1b[0m"
)

// Logger writes category-gated runtime diagnostics to an io.Writer,
// coloring CatErrors lines red and CatMemory lines yellow when that writer
// is a real terminal.
type Logger struct {
	bits         Category
	out          io.Writer
	colorEnabled bool
}

// NewLogger builds a Logger gated by bits, writing to out. Color is
// enabled only when out is *os.File pointing at a real terminal, NO_COLOR
// is unset, and TERM isn't "dumb" — detected with mattn/go-isatty rather
// than the cruder os.ModeCharDevice check, since isatty also gets ConPTY
// and cygwin terminals right.
func NewLogger(bits Category, out io.Writer) *Logger {
	return &Logger{bits: bits, out: out, colorEnabled: supportsColor(out)}
}

func supportsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// SetBits replaces the active category mask, for runtimes that want to
// change verbosity after startup.
func (l *Logger) SetBits(bits Category) { l.bits = bits }

// Enabled reports whether cat is currently gated on.
func (l *Logger) Enabled(cat Category) bool {
	return l.bits&cat != 0
}

// Log writes a line tagged with cat if that category is enabled.
func (l *Logger) Log(cat Category, format string, args ...any) {
	if !l.Enabled(cat) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case l.colorEnabled && cat == CatErrors:
		fmt.Fprintf(l.out, "%s%s%s\n", colorRed, msg, colorReset)
	case l.colorEnabled && cat == CatMemory:
		fmt.Fprintf(l.out, "%s%s%s\n", colorYellow, msg, colorReset)
	default:
		fmt.Fprintln(l.out, msg)
	}
}

// Logptr is the pointer-valued convenience the reference runtime's
// rt->logptr uses constantly for tracing addresses and handles.
func (l *Logger) Logptr(cat Category, label string, val uint64) {
	l.Log(cat, "%s 0x%x", label, val)
}

// Fatal always prints, regardless of the category bitmask, colorized when
// possible — matching rust_srv::fatal's unconditional snprintf+log. It
// does not itself terminate the process; callers use it together with
// whatever unwinds the host (see errors.go's FatalError).
func (l *Logger) Fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.colorEnabled {
		fmt.Fprintf(l.out, "%s[fatal] %s%s\n", colorRed, msg, colorReset)
		return
	}
	fmt.Fprintf(l.out, "[fatal] %s\n", msg)
}
