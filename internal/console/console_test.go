package console

import (
	"strings"
	"testing"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/sched"
)

func newTestConsole(t *testing.T) (*Console, *strings.Builder) {
	t.Helper()
	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()
	var b strings.Builder
	return New(s, WriterSink{W: &b}), &b
}

func TestVsprintfDecimalHexStringChar(t *testing.T) {
	got := vsprintf("pid=%d vec=%x name=%s ch=%c", 42, 255, "init", 'X')
	want := "pid=42 vec=ff name=init ch=X"
	if got != want {
		t.Fatalf("vsprintf = %q, want %q", got, want)
	}
}

func TestVsprintfLeftJustifiedWidth(t *testing.T) {
	got := vsprintf("[%-8s]", "hi")
	want := "[hi      ]"
	if got != want {
		t.Fatalf("vsprintf = %q, want %q", got, want)
	}
}

func TestVsprintfLiteralPercent(t *testing.T) {
	got := vsprintf("100%% done")
	if got != "100% done" {
		t.Fatalf("vsprintf = %q, want %q", got, "100% done")
	}
}

func TestPrintfRoutesThroughSink(t *testing.T) {
	c, buf := newTestConsole(t)
	c.Printf("boot: %d tasks\n", 3)
	if buf.String() != "boot: 3 tasks\n" {
		t.Fatalf("sink got %q", buf.String())
	}
}

func TestPrintfTruncatesAtBufferSize(t *testing.T) {
	c, buf := newTestConsole(t)
	c.Printf("%s", strings.Repeat("a", bufferSize+100))
	if len(buf.String()) != bufferSize {
		t.Fatalf("output length = %d, want %d", len(buf.String()), bufferSize)
	}
}
