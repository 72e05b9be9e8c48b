package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Sample WebSocket: hub + per-client pumps + output channels
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - hubOutputs, the four output ports bound to the hub
//
// Constraints:
//   - Engine state is scheduler-owned; the initial snapshot on connect goes
//     through a StateQuery, never a direct read.
//   - Publishing never blocks the cycle. A full hub queue drops the frame.
//   - Slow clients are disconnected when their send buffer fills.
//
// Messages are JSON text frames with an envelope: {type, ts, data}, where type
// is the output port name (axes, buttons, xy, va) or "state_init".
//
// ============================================================================

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	// Configuration
	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	// If zero, a conservative default is used.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	// If zero, a conservative default is used.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = defaultWSSendBuf
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = defaultWSBcastBuf
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Output channels bound to the hub
// ============================================================================

// hubChannel marshals each published value into an envelope typed by port.
type hubChannel[T any] struct {
	hub  *Hub
	port string
	at   func(T) time.Time
}

func (c hubChannel[T]) Publish(v T) {
	ts := c.at(v)
	msg, err := json.Marshal(envelope{
		Type: c.port,
		Ts:   &ts,
		Data: v,
	})
	if err != nil {
		c.hub.logger.Warn("ws marshal failed", "error", err, "type", c.port)
		return
	}
	c.hub.BroadcastBytes(msg)
}

// hubOutputs binds all four output ports to hub.
func hubOutputs(hub *Hub) Outputs {
	return Outputs{
		Axes: hubChannel[AxisSample]{hub: hub, port: portAxes,
			at: func(s AxisSample) time.Time { return s.Tm.Time() }},
		Buttons: hubChannel[ButtonSample]{hub: hub, port: portButtons,
			at: func(s ButtonSample) time.Time { return s.Tm.Time() }},
		Position: hubChannel[PositionSample]{hub: hub, port: portPosition,
			at: func(s PositionSample) time.Time { return s.Tm.Time() }},
		Velocity: hubChannel[VelocityCommand]{hub: hub, port: portVelocity,
			at: func(s VelocityCommand) time.Time { return s.Tm.Time() }},
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := defaultWSSendBuf
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and handle control frames.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

func (c *Client) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws pump exiting (close)", "op", op, "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws pump exiting", "op", op, "remote_addr", c.remoteAddr, "error", err)
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Used for the state_init snapshot on connect.
	queries chan<- StateQuery

	// Optional subscriber authentication; nil accepts everyone.
	verifier *TokenVerifier
}

type ServerConfig struct {
	Hub      HubConfig
	Verifier *TokenVerifier
}

// NewServer constructs the WS sample server components. Call Register on a mux
// and start hub.Run(ctx).
func NewServer(logger *slog.Logger, queries chan<- StateQuery, cfg ServerConfig) *Server {
	return &Server{
		logger:   logger,
		hub:      NewHub(logger, cfg.Hub),
		queries:  queries,
		verifier: cfg.Verifier,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleSamplesWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleSamplesWS authenticates and upgrades a client, queues state_init, then registers it.
func (s *Server) handleSamplesWS(w http.ResponseWriter, r *http.Request) {
	if s.verifier != nil {
		if _, err := s.verifier.VerifyRequest(r); err != nil {
			s.logger.Warn("ws subscriber rejected", "remote_addr", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// state_init must be the first frame, so it goes into the queue
	// before the hub can fan out any sample to this client.
	if initMsg, ok := s.stateInit(r.Context()); ok {
		client.send <- initMsg // fresh queue, always has room
	}

	s.hub.register <- client

	// Pumps are not tied to r.Context(); net/http cancels it when the handler returns.
	go client.writePump(context.Background())
	go client.readPump(context.Background())
}

// stateInit builds the state_init frame from a scheduler snapshot.
func (s *Server) stateInit(ctx context.Context) ([]byte, bool) {
	if s.queries == nil {
		return nil, false
	}

	snap, err := queryState(ctx, s.queries, GetState{}, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return nil, false
	}

	now := time.Now().UTC()
	msg, err := json.Marshal(envelope{
		Type: "state_init",
		Ts:   &now,
		Data: snap,
	})
	if err != nil {
		s.logger.Warn("ws marshal failed", "error", err, "type", "state_init")
		return nil, false
	}
	return msg, true
}
