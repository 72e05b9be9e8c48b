package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's WebSocket frame.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL  = flag.String("ws", "ws://127.0.0.1:8765/samples", "joybridge sample stream URL")
		token  = flag.String("token", "", "Subscriber token (sent as Authorization: Bearer)")
		ports  = flag.String("ports", "", "Comma-separated ports to show: axes,buttons,xy,va (default all)")
		pretty = flag.Bool("pretty", false, "Pretty-print the data payload")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	filter := parsePorts(*ports)

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	log.Printf("connecting to %s...", u.String())
	conn, resp, err := d.Dial(u.String(), header)
	if err != nil {
		if resp != nil {
			log.Fatalf("failed to connect: %v (HTTP %d)", err, resp.StatusCode)
		}
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The daemon pings every 20s; we ping too so a dead daemon is noticed.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				log.Printf("ping failed: %v", err)
				return
			}
		}
	}()

	// Message reading loop
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch messageType {
			case websocket.TextMessage:
				if line, ok := formatMessage(message, filter, *pretty); ok {
					fmt.Println(line)
				}
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// parsePorts turns "axes, xy" into a set. An empty list means show everything.
func parsePorts(s string) map[string]bool {
	set := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			set[p] = true
		}
	}
	return set
}

// formatMessage renders one frame as a single line, or reports false when the
// port is filtered out. state_init always passes the filter.
func formatMessage(message []byte, filter map[string]bool, pretty bool) (string, bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Sprintf("[TEXT] %s", string(message)), true
	}

	if len(filter) > 0 && env.Type != "state_init" && !filter[env.Type] {
		return "", false
	}

	data := string(env.Data)
	if pretty {
		if b, err := json.MarshalIndent(env.Data, "", "  "); err == nil {
			data = "\n" + string(b)
		}
	}

	ts := "-"
	if env.Ts != nil {
		ts = env.Ts.Format("15:04:05.000")
	}
	return fmt.Sprintf("[%s] %-10s %s", ts, strings.ToUpper(env.Type), data), true
}
