/*
 * minikernel32 - Kernel entry point.
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

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/minikernel32/command/kdb"
	"github.com/rcornwell/minikernel32/config/bootconfig"
	"github.com/rcornwell/minikernel32/internal/console"
	"github.com/rcornwell/minikernel32/internal/ide"
	"github.com/rcornwell/minikernel32/internal/intr"
	"github.com/rcornwell/minikernel32/internal/klog"
	"github.com/rcornwell/minikernel32/internal/sched"
	"github.com/rcornwell/minikernel32/internal/timer"
	"github.com/rcornwell/minikernel32/internal/vmm"
)

// defaultRAMBytes is used when the configuration file carries no "ram"
// directive: 16 MiB, comfortably above the 1 MiB + 256-page reservation
// vmm.Init carves out for the kernel before splitting the remainder.
const defaultRAMBytes = 16 * 1024 * 1024

// bootParams accumulates directives parsed from the boot configuration
// file before vmm/ide are initialized with them.
type bootParams struct {
	ramBytes uint32
	disk0    string
}

func main() {
	optConfig := getopt.StringLong("config", 'c', "minikernel.cfg", "Boot configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Mirror debug-level log records to stderr")
	optTTY := getopt.BoolLong("tty", 't', "Write console output straight to the raw terminal instead of the log")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logFile *os.File
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "minikernel: can't create log file: %v\n", err)
			os.Exit(1)
		}
		logFile = f
	}
	var logWriter io.Writer
	if logFile != nil {
		logWriter = logFile
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	handler := klog.NewHandler(logWriter, &slog.HandlerOptions{Level: programLevel, AddSource: false}, *optDebug)
	klog.Install(handler)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("minikernel32 starting")

	params := &bootParams{ramBytes: defaultRAMBytes}
	bootconfig.Register("ram", func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("ram: expected one argument, got %d", len(args))
		}
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("ram: %w", err)
		}
		params.ramBytes = uint32(n)
		return nil
	})
	bootconfig.Register("disk0", func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("disk0: expected one argument, got %d", len(args))
		}
		params.disk0 = args[0]
		return nil
	})

	if _, err := os.Stat(*optConfig); err == nil {
		if err := bootconfig.LoadFile(*optConfig); err != nil {
			logger.Error("boot configuration error: " + err.Error())
			os.Exit(1)
		}
	} else {
		logger.Warn("no boot configuration file found, using defaults: " + *optConfig)
	}

	// Physical/virtual memory manager. The kernel virtual range
	// starts at 3 GiB (0xC0000000), the conventional split between
	// user and kernel address spaces on a 32-bit IA-32 target.
	const kernelVMBase = 0xC0000000
	const kernelVMPages = 4096
	vmm.Init(params.ramBytes, kernelVMBase, kernelVMPages)
	logger.Info(fmt.Sprintf("memory manager initialized: %d bytes RAM", params.ramBytes))

	intr.Reset()
	s := sched.New()
	s.MakeMainThread()
	s.StartIdle()

	// PIT timer drives preemption accounting.
	tm := timer.New(s, timer.DefaultInterval)
	tm.Start()
	defer tm.Shutdown()

	// IDE/ATA channel 0, primary legacy base/IRQ. A "disk0" directive
	// attaches a blank, zero-filled in-memory drive of MaxLBA+1 sectors;
	// the named image file is not opened or read.
	const ataBase = 0x1F0
	ideChannel := ide.NewChannel(s, ataBase, intr.IRQAta0)
	if params.disk0 != "" {
		ideChannel.AttachDrive(0, ide.NewDisk(ide.MaxLBA+1))
		logger.Info("attached disk0: " + params.disk0)
	}

	// Console, writing to the log file (or stderr if none was given)
	// until the interactive monitor takes over stdout, unless --tty
	// asked for raw output straight to the terminal instead.
	var sink console.Sink
	var ttySink *console.TerminalSink
	if *optTTY {
		ts, err := console.NewTerminalSink()
		if err != nil {
			logger.Warn("can't put terminal in raw mode, falling back: " + err.Error())
		} else {
			ttySink = ts
			sink = ts
		}
	}
	if sink == nil {
		if logFile != nil {
			sink = console.WriterSink{W: logFile}
		} else {
			sink = console.WriterSink{W: os.Stderr}
		}
	}
	if ttySink != nil {
		defer ttySink.Restore()
	}
	con := console.New(s, sink)
	con.Printf("minikernel32 booted, %d bytes RAM\n", params.ramBytes)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		kdb.New(s, tm).Run()
		close(done)
	}()

	select {
	case <-sigChan:
		logger.Info("received shutdown signal")
	case <-done:
		logger.Info("monitor exited")
	}

	logger.Info("minikernel32 shutting down")
}
