/*
 * minikernel32 - Hex formatting helpers for memory dumps.
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

// Package hexfmt formats raw bytes for the debug monitor's "mem"
// command: one address-prefixed line of hex octets per 16 bytes,
// built a nibble at a time the way a fixed-width hex dumper does.
package hexfmt

import "strings"

const hexDigits = "0123456789abcdef"

// FormatByte appends the two hex digits of b to str.
func FormatByte(str *strings.Builder, b byte) {
	str.WriteByte(hexDigits[(b>>4)&0xf])
	str.WriteByte(hexDigits[b&0xf])
}

// FormatBytes appends each byte in data as two hex digits, space
// separated when space is true.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for _, b := range data {
		FormatByte(str, b)
		if space {
			str.WriteByte(' ')
		}
	}
}

// FormatAddr appends addr as an 8-digit zero-padded hex word, the
// address column a memory dump line starts with.
func FormatAddr(str *strings.Builder, addr uint32) {
	shift := 28
	for range 8 {
		str.WriteByte(hexDigits[(addr>>shift)&0xf])
		shift -= 4
	}
}

// Dump renders data (read starting at baseAddr) as rows of up to 16
// bytes: "AAAAAAAA: b0 b1 ... | printable ascii or '.'".
func Dump(baseAddr uint32, data []byte) string {
	var out strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		FormatAddr(&out, baseAddr+uint32(off))
		out.WriteString(": ")
		FormatBytes(&out, true, row)
		for pad := len(row); pad < 16; pad++ {
			out.WriteString("   ")
		}
		out.WriteString("| ")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				out.WriteByte(b)
			} else {
				out.WriteByte('.')
			}
		}
		out.WriteByte('\n')
	}
	return out.String()
}
