// Package monitor publishes temperature samples over HTTP and websocket.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lautenbacher.net/gomcp2210/config"
	"lautenbacher.net/gomcp2210/device"
	"lautenbacher.net/gomcp2210/util"
)

// Reading is the JSON document served for every sample.
type Reading struct {
	Sample device.TemperatureSample `json:"sample"`
	Window util.Stats               `json:"window"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Server keeps the latest sample and a rolling window and fans new samples
// out to websocket clients. Publish may be called from any goroutine.
type Server struct {
	listen     string
	configFile string
	latest     *util.Latest[Reading]
	window     *util.Window

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

// New creates a server listening on listen with a window of windowSize
// samples. A non-empty configFile is served read-only under /api/config.
func New(listen string, windowSize int, configFile string) *Server {
	return &Server{
		listen:     listen,
		configFile: configFile,
		latest:     util.NewLatest[Reading](),
		window:     util.NewWindow(windowSize),
		clients:    make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish records sample. It never blocks on slow clients.
func (s *Server) Publish(sample device.TemperatureSample) {
	s.window.Add(sample.Celsius)
	s.latest.Send(Reading{Sample: sample, Window: s.window.Stats()})
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/temperature", s.handleTemperature)
	mux.HandleFunc("/ws", s.handleWS)
	if s.configFile != "" {
		mux.Handle("/api/config", config.ConfigHandler(s.configFile))
	}
	return mux
}

// Run serves HTTP until ctx is done. Websocket clients still connected at
// that point are sent a close frame and disconnected.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("can't listen on %s: %w", s.listen, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.forward(ctx)
	go func() {
		<-ctx.Done()
		s.closeClients()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("Monitor listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// closeClients disconnects every websocket client. Hijacked connections
// are not closed by http.Server.Shutdown.
func (s *Server) closeClients() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "monitor shutting down")
	deadline := time.Now().Add(time.Second)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		client.conn.Close()
	}
}

// forward broadcasts every new reading until ctx is done.
func (s *Server) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.latest.Channel():
			if r, ok := s.latest.Value(); ok {
				s.broadcast(r)
			}
		}
	}
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reading, ok := s.latest.Value()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reading); err != nil {
		slog.Error("Failed to encode reading", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 16),
	}
	if reading, ok := s.latest.Value(); ok {
		if data, err := json.Marshal(reading); err == nil {
			client.send <- data
		}
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	slog.Debug("Websocket client connected", "clients", n)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			slog.Debug("Websocket client disconnected", "clients", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcast(r Reading) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// slow client, drop
		}
	}
}
