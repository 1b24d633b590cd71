package coprocrt

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogBitsEmptyIsDefault(t *testing.T) {
	if got := ParseLogBits(""); got != defaultBits {
		t.Fatalf("ParseLogBits(\"\") = %v, want defaultBits", got)
	}
}

func TestParseLogBitsRecognizesEachKeyword(t *testing.T) {
	cases := []struct {
		val  string
		want Category
	}{
		{"errors", CatErrors},
		{"memory", CatMemory},
		{"communication", CatCommunication},
		{"proc", CatProc},
		{"upcall", CatUpcall},
		{"runtime", CatRuntime},
		{"user-log", CatUserLog},
		{"trace", CatTrace},
	}
	for _, c := range cases {
		if got := ParseLogBits(c.val); got != c.want {
			t.Fatalf("ParseLogBits(%q) = %v, want %v", c.val, got, c.want)
		}
	}
}

func TestParseLogBitsCombinesCommaSeparatedKeywords(t *testing.T) {
	got := ParseLogBits("errors,proc,trace")
	want := CatErrors | CatProc | CatTrace
	if got != want {
		t.Fatalf("ParseLogBits(\"errors,proc,trace\") = %v, want %v", got, want)
	}
}

func TestParseLogBitsAllSetsEveryBit(t *testing.T) {
	if got := ParseLogBits("all"); got != catAll {
		t.Fatalf("ParseLogBits(\"all\") = %v, want catAll", got)
	}
}

func TestLoggerGatesByCategory(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(CatProc, &buf)

	l.Log(CatUserLog, "should not appear")
	l.Log(CatProc, "proc line")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("logger emitted a line outside its gated categories: %q", out)
	}
	if !strings.Contains(out, "proc line") {
		t.Fatalf("logger dropped a line in its gated category: %q", out)
	}
}

func TestLoggerFatalAlwaysPrints(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(0, &buf) // nothing gated on

	l.Fatal("boom %d", 1)

	if !strings.Contains(buf.String(), "boom 1") {
		t.Fatalf("Fatal did not print despite an empty category mask: %q", buf.String())
	}
}

func TestLoggerSetBitsChangesGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(0, &buf)

	l.Log(CatProc, "before")
	l.SetBits(CatProc)
	l.Log(CatProc, "after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Fatal("logger emitted a line before SetBits enabled its category")
	}
	if !strings.Contains(out, "after") {
		t.Fatal("logger dropped a line after SetBits enabled its category")
	}
}

func TestSupportsColorFalseForNonFileWriter(t *testing.T) {
	var buf bytes.Buffer
	if supportsColor(&buf) {
		t.Fatal("supportsColor(bytes.Buffer) = true, want false (not an *os.File)")
	}
}
