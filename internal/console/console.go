/*
 * minikernel32 - printk and the console sink.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package console implements printk's minimal vsprintf
// (%d, %x, %s, %c, width-padded %-Ns) formatting into a bounded buffer,
// and console_put_str, which takes the console mutex before driving a
// Sink. Sink is satisfied by WriterSink over a plain io.Writer (for
// tests and logging to a file), by QueueSink over an internal/ioqueue
// ring buffer, and by TerminalSink, which writes to os.Stdout with the
// terminal put in raw mode through golang.org/x/term.
package console

import (
	"strconv"
	"strings"

	"github.com/rcornwell/minikernel32/internal/ksync"
	"github.com/rcornwell/minikernel32/internal/sched"
)

// bufferSize mirrors the 1 KiB stack buffer printk formats into.
const bufferSize = 1024

// Sink receives fully-formatted console output.
type Sink interface {
	PutStr(s string)
}

// Console serialises writes from concurrent tasks through a reentrant
// mutex.
type Console struct {
	mu   *ksync.Mutex
	sink Sink
}

// New returns a Console driving sink, guarded by a fresh mutex on s.
func New(s *sched.Scheduler, sink Sink) *Console {
	return &Console{mu: ksync.NewMutex(s), sink: sink}
}

// PutStr implements console_put_str: acquire the console mutex, write
// through to the sink, release.
func (c *Console) PutStr(s string) {
	c.mu.Acquire()
	defer c.mu.Release()
	c.sink.PutStr(s)
}

// Printf implements printk(fmt, ...): format into a bounded buffer
// using the minimal verb set vsprintf supports, then PutStr the
// result. Output beyond bufferSize is truncated rather than grown, the
// same all-or-truncate tradeoff a fixed stack buffer forces in C.
func (c *Console) Printf(format string, args ...any) {
	c.PutStr(vsprintf(format, args...))
}

// vsprintf implements the %d/%x/%s/%c/%-Ns verb subset. Anything else
// in the format string, including a bare '%', passes through literally -
// the minimal formatter is not required to reject what it doesn't
// understand, only to handle the verbs it supports.
func vsprintf(format string, args ...any) string {
	var b strings.Builder
	argi := 0
	next := func() any {
		if argi < len(args) {
			v := args[argi]
			argi++
			return v
		}
		return nil
	}

	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			b.WriteByte(ch)
			if b.Len() >= bufferSize {
				return b.String()[:bufferSize]
			}
			continue
		}

		i++
		// Optional left-justify width: %-Ns.
		width := 0
		leftJustify := false
		if format[i] == '-' {
			leftJustify = true
			i++
		}
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}
		if i >= len(format) {
			break
		}
		verb := format[i]

		var out string
		switch verb {
		case 'd':
			out = strconv.FormatInt(toInt64(next()), 10)
		case 'x':
			out = strconv.FormatInt(toInt64(next()), 16)
		case 'c':
			out = string(rune(toInt64(next())))
		case 's':
			s, _ := next().(string)
			out = s
			if leftJustify && width > len(out) {
				out += strings.Repeat(" ", width-len(out))
			}
		case '%':
			out = "%"
		default:
			out = "%" + string(verb)
		}
		b.WriteString(out)
		if b.Len() >= bufferSize {
			return b.String()[:bufferSize]
		}
	}
	return b.String()
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case byte:
		return int64(n)
	default:
		return 0
	}
}
