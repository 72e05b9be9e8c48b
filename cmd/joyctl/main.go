package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================================
// joyctl - Command-line IPC client
// ============================================================================
// Queries a running joybridge daemon over its Unix domain socket, and mints
// subscriber tokens for the WebSocket sample stream.
//
// Usage:
//   joyctl state
//   joyctl device
//   joyctl ping
//   joyctl mint-token -secret-file /etc/joybridge/secret -subject dashboard
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/joybridge.sock)
// ============================================================================

const defaultSocketPath = "/tmp/joybridge.sock"

// RequestEnvelope matches the daemon's request wire format.
type RequestEnvelope struct {
	Type string `json:"type"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// requestTypes maps commands (and their aliases) to request types.
var requestTypes = map[string]string{
	"state":  "get_state",
	"status": "get_state",
	"device": "get_device",
	"info":   "get_device",
	"ping":   "ping",
}

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return

	case "mint-token", "token":
		token, err := runMintToken(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	reqType, ok := requestTypes[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	data, err := sendRequest(socketPath, reqType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(prettyJSON(data))
}

// sendRequest sends one line-delimited JSON request and returns the response data.
func sendRequest(socketPath, reqType string) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(RequestEnvelope{Type: reqType})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if response.Status != "ok" {
		return nil, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response.Data, nil
}

func prettyJSON(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}

// runMintToken parses mint-token flags and signs an HS256 subscriber token.
func runMintToken(args []string) (string, error) {
	fs := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	var (
		secretFile = fs.String("secret-file", "", "File holding the shared HS256 secret (required)")
		subject    = fs.String("subject", "joyctl", "Token subject (sub claim)")
		ttl        = fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	)
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *secretFile == "" {
		return "", errors.New("mint-token requires -secret-file")
	}
	if *ttl <= 0 {
		return "", errors.New("-ttl must be positive")
	}

	b, err := os.ReadFile(*secretFile)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := []byte(strings.TrimSpace(string(b)))
	if len(secret) == 0 {
		return "", errors.New("secret file is empty")
	}

	return mintToken(secret, *subject, *ttl, time.Now())
}

func mintToken(secret []byte, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `joyctl - Query the joybridge daemon via IPC

Usage:
  joyctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s)

Commands:
  state, status           Print the full engine snapshot
  device, info            Print the opened joystick's diagnostics
  ping                    Check that the daemon's cycle loop is alive
  mint-token, token       Sign a WebSocket subscriber token
      -secret-file PATH   Shared HS256 secret (required)
      -subject NAME       Token subject (default "joyctl")
      -ttl DURATION       Token lifetime (default 24h)
  help, -h, --help        Show this help message

Examples:
  joyctl state
  joyctl -socket /run/joybridge.sock ping
  joyctl mint-token -secret-file /etc/joybridge/secret -subject dashboard -ttl 1h
`, defaultSocketPath)
}
