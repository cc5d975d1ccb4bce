/*
 * minikernel32 - Boot configuration file parser.
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

// Package bootconfig parses the boot-time configuration file that
// selects RAM size and the disk0 drive before cmd/minikernel brings the
// simulated machine up. Directives are registered by keyword (cmd/minikernel
// registers "ram" and "disk0" in main), and LoadFile dispatches each
// non-comment, non-blank line to the matching registration. Keywords
// match case-insensitively.
//
// Configuration file format:
//
//	'#' starts a comment, rest of line ignored.
//	<line> := <directive> <whitespace> *<arg>
//	<directive> := *<non-whitespace>
//	<arg> := *<non-whitespace>
package bootconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DirectiveFunc handles one config line's arguments.
type DirectiveFunc func(args []string) error

var directives = map[string]DirectiveFunc{}

var lineNumber int

// Register installs fn as the handler for keyword; registering the same
// keyword again replaces the earlier handler.
func Register(keyword string, fn DirectiveFunc) {
	directives[strings.ToUpper(keyword)] = fn
}

// LoadFile reads name line by line and dispatches each directive.
func LoadFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	lineNumber = 0
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		lineNumber++
		if len(line) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if perr := parseLine(line); perr != nil {
			return perr
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func parseLine(line string) error {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	keyword := strings.ToUpper(fields[0])
	fn, ok := directives[keyword]
	if !ok {
		return fmt.Errorf("bootconfig: unknown directive %q, line %d", fields[0], lineNumber)
	}
	return fn(fields[1:])
}
