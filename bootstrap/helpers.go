package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"nanoclaw-sidecar/ipc"

	"go.uber.org/zap"
)

// ClassifyBindError provides specific error messages based on the type of bind failure.
func ClassifyBindError(err error, addr string) string {
	if err == nil {
		return ""
	}

	_, port, _ := net.SplitHostPort(addr)

	switch {
	case errors.Is(err, syscall.EADDRINUSE) || containsIgnoreCase(err.Error(), "address already in use"):
		return fmt.Sprintf("Address %s is already in use.\n"+
			"  Another process (or a second sidecar) owns port %s.\n"+
			"  Remediation:\n"+
			"  - Find the owner: ss -ltnp 'sport = :%s'\n"+
			"  - Stop the other container: docker ps --filter publish=%s", addr, port, port, port)
	case errors.Is(err, syscall.EACCES) || containsIgnoreCase(err.Error(), "permission denied"):
		return fmt.Sprintf("Permission denied binding %s.\n"+
			"  Remediation:\n"+
			"  - Ports below 1024 need CAP_NET_BIND_SERVICE\n"+
			"  - Use the default port 5000 or set SIDECAR_SERVER_PORT", addr)
	case errors.Is(err, syscall.EADDRNOTAVAIL) || containsIgnoreCase(err.Error(), "assign requested address"):
		return fmt.Sprintf("Address %s is not available on this host.\n"+
			"  Remediation:\n"+
			"  - Check server.host; use 0.0.0.0 to listen on all interfaces", addr)
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) || containsIgnoreCase(err.Error(), "no such host") {
		return fmt.Sprintf("Invalid listen address %s: %v\n"+
			"  Remediation:\n"+
			"  - Check server.host and server.port in config.yaml", addr, err)
	}

	return fmt.Sprintf("Failed to listen on %s: %v", addr, err)
}

// CheckMessagesDir warns when nanoclaw's IPC directory is not there yet.
// The directory belongs to nanoclaw and is never created here; sends
// answer 503 until it appears.
func CheckMessagesDir(writer *ipc.Writer, sugar *zap.SugaredLogger) bool {
	if err := writer.Ready(); err != nil {
		sugar.Warnw("IPC messages directory not available, sends will fail until nanoclaw creates it",
			"path", writer.Dir(),
			"error", err)
		return false
	}
	sugar.Infow("IPC messages directory ready", "path", writer.Dir())
	return true
}

// containsIgnoreCase checks if s contains substr, case-insensitively.
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
