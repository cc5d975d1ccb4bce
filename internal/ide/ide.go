/*
 * minikernel32 - ATA/IDE PIO disk driver.
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

// Package ide implements the ATA PIO driver: two
// legacy-port channels, each serialising its master/slave drives behind
// a reentrant mutex and a disk-done binary semaphore released from the
// channel's IRQ handler. Every register access goes through
// internal/ioport, and the controller side of that register interface
// is simulated by a small background goroutine per command that plays
// the BSY/DRQ handshake and eventually raises the channel's IRQ - the
// same "external device completes asynchronously and calls the
// interrupt controller" shape internal/timer's ticker uses.
package ide

import (
	"fmt"
	"time"

	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/ioport"
	"github.com/rcornwell/minikernel32/internal/ksync"
	"github.com/rcornwell/minikernel32/internal/sched"
)

const (
	sectorSize = 512
	// MaxLBA is the debug cap: 80 MiB / 512 - 1.
	MaxLBA = (80 * 1024 * 1024 / sectorSize) - 1

	regData        = 0
	regError       = 1
	regSectorCount = 2
	regLBALow      = 3
	regLBAMid      = 4
	regLBAHigh     = 5
	regDevice      = 6
	regCmdStatus   = 7

	statusBSY = 1 << 7
	statusDRQ = 1 << 3

	cmdReadSectors  = 0x20
	cmdWriteSectors = 0x30

	// busyWaitBudgetMS and busyWaitStepMS implement // corrected busy_wait: decrement by 10 each iteration, fail at <= 0.
	busyWaitBudgetMS = 30_000
	busyWaitStepMS   = 10

	seekDelay = 2 * time.Millisecond // simulated controller latency
)

// Disk is one drive's backing store; index 0 is master, 1 is slave.
type Disk struct {
	present bool
	data    []byte // sectorSize-aligned backing store
}

// NewDisk returns a Disk with storage for sectors sectors, zero-filled.
func NewDisk(sectors int) *Disk {
	return &Disk{present: true, data: make([]byte, sectors*sectorSize)}
}

// Channel is one ATA controller pair of ports.
type Channel struct {
	base uint16
	irq  int

	mu       *ksync.Mutex
	diskDone *ksync.Semaphore

	expectingIntr bool
	drives        [2]*Disk
	selected      int

	status      uint8
	sectorCount uint8
	lbaLow      uint8
	lbaMid      uint8
	lbaHigh     uint8
	device      uint8

	dataOut []byte // bytes queued for the next In(regData) reads
	dataIn  []byte // bytes accumulated from Out(regData) writes
	pending int    // bytes still expected for the in-flight command
}

// NewChannel creates a channel at base/irq, registers it with
// internal/ioport for the eight legacy command-block ports, and installs
// and unmasks its IRQ handler.
func NewChannel(s *sched.Scheduler, base uint16, irq int) *Channel {
	c := &Channel{
		base:     base,
		irq:      irq,
		mu:       ksync.NewMutex(s),
		diskDone: ksync.NewSemaphore(s, 0),
	}
	ioport.Register(base, 8, c)
	intr.RegisterHandler(intr.VectorIRQBase+irq, c.isr)
	intr.UnmaskIRQ(irq)
	ksync.RegisterSemaphore(fmt.Sprintf("ide%#x.diskDone", base), c.diskDone)
	return c
}

// AttachDrive installs d as drive index (0 master, 1 slave).
func (c *Channel) AttachDrive(index int, d *Disk) {
	c.drives[index] = d
}

// isr implements the channel's IRQ handler: if no command is
// in flight on this channel the interrupt is spurious and is silently
// ignored; otherwise clear expecting_intr and wake the requester.
func (c *Channel) isr(_ int) {
	if !c.expectingIntr {
		return
	}
	c.expectingIntr = false
	c.diskDone.Up()
}

// In implements ioport.Handler for the command-block registers.
func (c *Channel) In(port uint16) uint8 {
	switch port - c.base {
	case regData:
		if len(c.dataOut) == 0 {
			return 0
		}
		b := c.dataOut[0]
		c.dataOut = c.dataOut[1:]
		return b
	case regCmdStatus:
		return c.status
	default:
		return 0xff
	}
}

// Out implements ioport.Handler for the command-block registers.
func (c *Channel) Out(port uint16, value uint8) {
	switch port - c.base {
	case regData:
		c.dataIn = append(c.dataIn, value)
	case regSectorCount:
		c.sectorCount = value
	case regLBALow:
		c.lbaLow = value
	case regLBAMid:
		c.lbaMid = value
	case regLBAHigh:
		c.lbaHigh = value
	case regDevice:
		c.device = value
		if value&0x10 != 0 {
			c.selected = 1
		} else {
			c.selected = 0
		}
	case regCmdStatus:
		c.runCommand(value)
	}
}

// lba reassembles the 28-bit LBA programmed across four registers.
func (c *Channel) lba() uint32 {
	return uint32(c.lbaLow) | uint32(c.lbaMid)<<8 | uint32(c.lbaHigh)<<16 | uint32(c.device&0x0f)<<24
}

// sectorCountOrFull treats a zero sector-count register as 256, the
// documented ATA convention for the 8-bit field.
func (c *Channel) sectorCountOrFull() int {
	if c.sectorCount == 0 {
		return 256
	}
	return int(c.sectorCount)
}

// runCommand starts the asynchronous controller-side simulation of the
// command just written to the command register.
func (c *Channel) runCommand(cmd uint8) {
	drive := c.drives[c.selected]
	lba := c.lba()
	count := c.sectorCountOrFull()
	c.status = statusBSY
	c.expectingIntr = true

	switch cmd {
	case cmdReadSectors:
		go func() {
			time.Sleep(seekDelay)
			if drive == nil || !drive.present {
				c.status = 0
				intr.Raise(c.irq)
				return
			}
			off := int(lba) * sectorSize
			n := count * sectorSize
			c.dataOut = append([]byte(nil), drive.data[off:off+n]...)
			c.status = statusDRQ
			intr.Raise(c.irq)
		}()
	case cmdWriteSectors:
		c.dataIn = c.dataIn[:0]
		c.pending = count * sectorSize
		go func() {
			time.Sleep(seekDelay)
			c.status = statusDRQ // controller ready for outsw before signalling
		}()
	default:
		go func() {
			c.status = 0
			intr.Raise(c.irq)
		}()
	}
}

// commitWrite is called by the driver once it has pushed a full
// transfer's worth of words through the data register; it copies the
// buffered bytes to the backing store and signals completion.
func (c *Channel) commitWrite(lba uint32, count int) {
	drive := c.drives[c.selected]
	go func() {
		time.Sleep(seekDelay)
		if drive != nil && drive.present {
			off := int(lba) * sectorSize
			copy(drive.data[off:off+count*sectorSize], c.dataIn)
		}
		c.status = 0
		intr.Raise(c.irq)
	}()
}

// busyWait implements busy_wait, decrementing its budget in 10ms
// steps rather than forever: poll
// BSY every busyWaitStepMS, decrementing the budget by busyWaitStepMS
// each iteration, failing once the budget reaches zero or below.
func (c *Channel) busyWait() bool {
	budget := busyWaitBudgetMS
	for {
		if c.status&statusBSY == 0 {
			return c.status&statusDRQ != 0
		}
		time.Sleep(busyWaitStepMS * time.Millisecond)
		budget -= busyWaitStepMS
		if budget <= 0 {
			return false
		}
	}
}

// selectDevice programs the device register with drive and the LBA's
// top four bits, matching the documented ATA register layout.
func (c *Channel) selectDevice(drive int, lba uint32) {
	dev := uint8(0xE0) | uint8((lba>>24)&0x0f)
	if drive == 1 {
		dev |= 0x10
	}
	c.Out(c.base+regDevice, dev)
}

// ReadSectors implements the read path: acquire the channel, program
// registers, wait for completion, busy-wait for DRQ, then pull the
// data out through the register interface.
func (c *Channel) ReadSectors(drive int, lba uint32, count int) ([]byte, error) {
	if lba > MaxLBA || lba+uint32(count) > MaxLBA+1 {
		return nil, fmt.Errorf("ide: lba %d+%d exceeds debug cap %d", lba, count, MaxLBA)
	}
	c.mu.Acquire()
	defer c.mu.Release()

	out := make([]byte, 0, count*sectorSize)
	for remaining := count; remaining > 0; {
		chunk := remaining
		if chunk > 256 {
			chunk = 256
		}
		c.selectDevice(drive, lba)
		c.Out(c.base+regSectorCount, uint8(chunk%256))
		c.Out(c.base+regLBALow, uint8(lba))
		c.Out(c.base+regLBAMid, uint8(lba>>8))
		c.Out(c.base+regLBAHigh, uint8(lba>>16))
		c.Out(c.base+regCmdStatus, cmdReadSectors)

		c.diskDone.Down()
		if !c.busyWait() {
			panic(fmt.Sprintf("ide: device timeout reading sector %d", lba))
		}

		buf := make([]byte, chunk*sectorSize)
		ioport.Insw(c.base+regData, buf, chunk*sectorSize/2)
		out = append(out, buf...)

		lba += uint32(chunk)
		remaining -= chunk
	}
	return out, nil
}

// WriteSectors implements the write path: the controller must be ready
// for data (busy_wait) before outsw, and completion is only signalled
// after the driver pushes the data through.
func (c *Channel) WriteSectors(drive int, lba uint32, data []byte) error {
	count := len(data) / sectorSize
	if lba > MaxLBA || lba+uint32(count) > MaxLBA+1 {
		return fmt.Errorf("ide: lba %d+%d exceeds debug cap %d", lba, count, MaxLBA)
	}
	c.mu.Acquire()
	defer c.mu.Release()

	off := 0
	for remaining := count; remaining > 0; {
		chunk := remaining
		if chunk > 256 {
			chunk = 256
		}
		chunkLBA := lba + uint32(off/sectorSize)
		c.selectDevice(drive, chunkLBA)
		c.Out(c.base+regSectorCount, uint8(chunk%256))
		c.Out(c.base+regLBALow, uint8(chunkLBA))
		c.Out(c.base+regLBAMid, uint8(chunkLBA>>8))
		c.Out(c.base+regLBAHigh, uint8(chunkLBA>>16))
		c.Out(c.base+regCmdStatus, cmdWriteSectors)

		if !c.busyWait() {
			panic(fmt.Sprintf("ide: device timeout writing sector %d", chunkLBA))
		}
		ioport.Outsw(c.base+regData, data[off:off+chunk*sectorSize], chunk*sectorSize/2)
		c.commitWrite(chunkLBA, chunk)

		c.diskDone.Down()

		off += chunk * sectorSize
		remaining -= chunk
	}
	return nil
}
