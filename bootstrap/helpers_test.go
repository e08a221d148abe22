package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"nanoclaw-sidecar/ipc"

	"go.uber.org/zap/zaptest"
)

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s        string
		substr   string
		expected bool
	}{
		{"Hello World", "hello", true},
		{"Hello World", "WORLD", true},
		{"Hello World", "xyz", false},
		{"", "", true},
		{"abc", "", true},
		{"", "abc", false},
		{"bind: Address already in use", "address already in use", true},
	}

	for _, tt := range tests {
		t.Run(tt.s+"_"+tt.substr, func(t *testing.T) {
			result := containsIgnoreCase(tt.s, tt.substr)
			if result != tt.expected {
				t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tt.s, tt.substr, result, tt.expected)
			}
		})
	}
}

func TestClassifyBindError(t *testing.T) {
	opErr := func(errno syscall.Errno) error {
		return &net.OpError{Op: "listen", Net: "tcp", Err: &os.SyscallError{Syscall: "bind", Err: errno}}
	}

	tests := []struct {
		name     string
		err      error
		addr     string
		contains string
	}{
		{
			name:     "nil error returns empty string",
			err:      nil,
			addr:     "0.0.0.0:5000",
			contains: "",
		},
		{
			name:     "address in use",
			err:      opErr(syscall.EADDRINUSE),
			addr:     "0.0.0.0:5000",
			contains: "already in use",
		},
		{
			name:     "permission denied",
			err:      opErr(syscall.EACCES),
			addr:     "0.0.0.0:80",
			contains: "CAP_NET_BIND_SERVICE",
		},
		{
			name:     "address not available",
			err:      opErr(syscall.EADDRNOTAVAIL),
			addr:     "10.255.255.1:5000",
			contains: "not available on this host",
		},
		{
			name:     "invalid address",
			err:      &net.AddrError{Err: "missing port in address", Addr: "bad"},
			addr:     "bad",
			contains: "Invalid listen address",
		},
		{
			name:     "fallback",
			err:      errors.New("something else"),
			addr:     "0.0.0.0:5000",
			contains: "Failed to listen on 0.0.0.0:5000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ClassifyBindError(tt.err, tt.addr)
			if tt.contains == "" && result != "" {
				t.Errorf("ClassifyBindError() = %q, want empty string", result)
			}
			if tt.contains != "" && !strings.Contains(result, tt.contains) {
				t.Errorf("ClassifyBindError() = %q, want to contain %q", result, tt.contains)
			}
		})
	}
}

func TestClassifyBindError_RealConflict(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().String()
	_, err = net.Listen("tcp", addr)
	if err == nil {
		t.Fatal("expected second listen to fail")
	}

	if msg := ClassifyBindError(err, addr); !strings.Contains(msg, "already in use") {
		t.Errorf("ClassifyBindError() = %q", msg)
	}
}

func TestCheckMessagesDir(t *testing.T) {
	sugar := zaptest.NewLogger(t).Sugar()
	dataDir := t.TempDir()
	writer := ipc.NewWriter(ipc.MessagesDir(dataDir))

	if CheckMessagesDir(writer, sugar) {
		t.Error("CheckMessagesDir() = true for missing directory")
	}
	if _, err := os.Stat(filepath.Join(dataDir, "ipc")); !os.IsNotExist(err) {
		t.Errorf("CheckMessagesDir() must not create the directory, stat err = %v", err)
	}

	if err := os.MkdirAll(writer.Dir(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if !CheckMessagesDir(writer, sugar) {
		t.Error("CheckMessagesDir() = false for existing directory")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateNotStarted: "not_started",
		StateServing:    "serving",
		StateStopped:    "stopped",
		State(9):        "State(9)",
	} {
		if got := fmt.Sprint(state); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
