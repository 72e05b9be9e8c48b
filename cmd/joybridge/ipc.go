package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets local tools (joyctl, scripts) query the running engine.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "get_state"} | {"type": "get_device"} | {"type": "ping"}
//   - Server responds: {"status": "ok", "data": {...}} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // error message if status == "error"
	Data   json.RawMessage `json:"data,omitempty"`
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, queries chan<- StateQuery, timeout time.Duration, logger *slog.Logger) error {
	if err := removeStaleSocket(socketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	// Owner and group only; joyctl is expected to run as the same user or group.
	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, queries, timeout, logger)
	}
}

// removeStaleSocket deletes a socket left behind by a previous run.
// Anything at path that is not a socket is left alone.
func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket path: %w", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// handleIPCConnection answers requests on a single IPC connection until the client hangs up.
func handleIPCConnection(ctx context.Context, conn net.Conn, queries chan<- StateQuery, timeout time.Duration, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		response := serveIPCRequest(ctx, []byte(line), queries, timeout)
		if err := encoder.Encode(response); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

func serveIPCRequest(ctx context.Context, line []byte, queries chan<- StateQuery, timeout time.Duration) IPCResponse {
	req, err := UnmarshalRequest(line)
	if err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	snap, err := queryState(ctx, queries, req, timeout)
	if err != nil {
		return IPCResponse{Status: "error", Error: err.Error()}
	}

	data, err := json.Marshal(responseData(req, snap))
	if err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("marshal response: %v", err)}
	}
	return IPCResponse{Status: "ok", Data: data}
}
