/*
 * minikernel32 - Console sinks.
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

package console

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/rcornwell/minikernel32/internal/ioqueue"
)

// WriterSink adapts any io.Writer (a log file, a bytes.Buffer in
// tests) to Sink.
type WriterSink struct{ W io.Writer }

func (s WriterSink) PutStr(str string) {
	io.WriteString(s.W, str)
}

// QueueSink drains characters through an internal/ioqueue.Queue one at
// a time via Putchar, modelling a single-producer keyboard/console ring
// buffer for the output direction.
type QueueSink struct{ Q *ioqueue.Queue }

func (s QueueSink) PutStr(str string) {
	for i := 0; i < len(str); i++ {
		s.Q.Putchar(str[i])
	}
}

// TerminalSink writes straight to the real terminal, putting it into
// raw mode for the duration so the interactive monitor controls
// line-editing and echo itself rather than the host tty driver.
type TerminalSink struct {
	fd       int
	oldState *term.State
}

// NewTerminalSink puts os.Stdout's terminal into raw mode. Restore
// must be called before the process exits to leave the tty usable.
func NewTerminalSink() (*TerminalSink, error) {
	fd := int(os.Stdout.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &TerminalSink{fd: fd, oldState: old}, nil
}

func (s *TerminalSink) PutStr(str string) {
	os.Stdout.WriteString(str)
}

// Restore puts the terminal back into its original (cooked) mode.
func (s *TerminalSink) Restore() error {
	return term.Restore(s.fd, s.oldState)
}
