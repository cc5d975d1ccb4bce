package klog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleWritesToFileAlways(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	logger := slog.New(h)
	logger.Info("boot complete", "pid", 1)

	if !strings.Contains(buf.String(), "boot complete") {
		t.Fatalf("log file missing message: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "pid=1") {
		t.Fatalf("log file missing attr: %q", buf.String())
	}
}

func TestSetDebugLetsDebugRecordsThrough(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil, false)
	h.SetDebug(true)
	logger := slog.New(h)
	logger.Debug("tick")
	if !strings.Contains(buf.String(), "tick") {
		t.Fatalf("expected debug record to reach the file handler")
	}
}
