// ABOUTME: Level feed server broadcasting meter frames over websocket
// ABOUTME: Acts as a render surface so it can run next to the terminal screen
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/internal/discovery"
	"github.com/Resonate-Protocol/vumeter/internal/fault"
	"github.com/Resonate-Protocol/vumeter/internal/protocol"
	"github.com/Resonate-Protocol/vumeter/internal/render"
)

const (
	// DefaultInterval limits broadcasts to 20 per second
	DefaultInterval = 50 * time.Millisecond

	helloTimeout  = 5 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	sendBuffer    = 16
)

// Config holds server configuration
type Config struct {
	Listen     string
	Name       string
	Channels   int
	SampleRate int
	Interval   time.Duration
	EnableMDNS bool
}

// Server publishes levels to connected watchers
type Server struct {
	config   Config
	serverID string
	log      *logrus.Entry

	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener

	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	now      func() time.Time
	lastSent time.Time
	sent     atomic.Uint64
	dropped  atomic.Uint64

	shutdownMu sync.RWMutex
	isShutdown bool
	leaveOnce  sync.Once
	leaveErr   error
	wg         sync.WaitGroup
}

// Client is a connected watcher
type Client struct {
	ID   string
	Name string
	Conn *websocket.Conn

	sendChan chan interface{}
}

// New creates a feed server; nothing listens until Enter
func New(config Config, log *logrus.Entry) *Server {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      log,
		upgrader: websocket.Upgrader{
			// Feeds are meant for trusted local networks
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
		now:     time.Now,
	}
}

// Enter starts listening and, if enabled, advertising
func (s *Server) Enter() error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(protocol.Path, s.handleWebSocket)
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer fault.Observe()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()

	s.log.Infof("Level feed listening on %s%s (ID: %s)", listener.Addr(), protocol.Path, s.serverID)

	if s.config.EnableMDNS {
		port := listener.Addr().(*net.TCPAddr).Port
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
		}, s.log)

		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warnf("Failed to start mDNS advertisement: %v", err)
		}
	}

	return nil
}

// Draw broadcasts the first group of a frame, at most once per interval.
// It never blocks: watchers that fall behind miss frames.
func (s *Server) Draw(f render.Frame) error {
	now := s.now()
	if !s.lastSent.IsZero() && now.Sub(s.lastSent) < s.config.Interval {
		return nil
	}
	if len(f.Groups) == 0 {
		return nil
	}
	s.lastSent = now

	g := f.Groups[0]
	levels := make([]float32, len(g.Bars))
	for i, bar := range g.Bars {
		levels[i] = bar.Level
	}

	s.broadcast(protocol.Message{
		Type: protocol.TypeLevels,
		Payload: protocol.Levels{
			Seq:    f.Seq,
			Title:  g.Title,
			Levels: levels,
		},
	})
	return nil
}

func (s *Server) broadcast(msg protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.sendChan <- msg:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

// Leave stops advertising, disconnects every watcher and waits for their goroutines
func (s *Server) Leave() error {
	s.leaveOnce.Do(func() {
		s.shutdownMu.Lock()
		s.isShutdown = true
		s.shutdownMu.Unlock()

		if s.mdnsManager != nil {
			s.mdnsManager.Stop()
		}

		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.leaveErr = fmt.Errorf("HTTP server shutdown: %w", err)
			}
		}

		// Hijacked websocket connections are not closed by Shutdown
		s.clientsMu.RLock()
		for _, client := range s.clients {
			client.Conn.Close()
		}
		s.clientsMu.RUnlock()

		s.wg.Wait()
		s.log.Infof("Level feed stopped (sent: %d, dropped: %d)", s.sent.Load(), s.dropped.Load())
	})
	return s.leaveErr
}

// Addr returns the listening address once entered
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ClientCount returns the number of registered watchers
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	s.log.Debugf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection manages a watcher connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Warnf("Error reading hello: %v", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	var hello protocol.ClientHello
	if err := protocol.Decode(data, protocol.TypeClientHello, &hello); err != nil {
		s.log.Warnf("Bad hello: %v", err)
		return
	}
	if hello.ClientID == "" {
		s.log.Warnf("Client hello missing ClientID")
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		sendChan: make(chan interface{}, sendBuffer),
	}

	s.clientsMu.Lock()
	if existing, exists := s.clients[client.ID]; exists {
		s.clientsMu.Unlock()
		s.log.Warnf("Client ID %s already connected (name: %s), rejecting duplicate", client.ID, existing.Name)
		writeJSON(conn, protocol.Message{
			Type: protocol.TypeError,
			Payload: protocol.ServerError{
				Error:   "duplicate_client_id",
				Message: "Client ID already connected",
			},
		})
		return
	}
	// The hello is queued before the client is visible to broadcasts
	client.sendChan <- protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID:   s.serverID,
			Name:       s.config.Name,
			Version:    protocol.Version,
			Channels:   s.config.Channels,
			SampleRate: s.config.SampleRate,
		},
	}
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	s.log.Infof("Watcher connected: %s (ID: %s)", client.Name, client.ID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer fault.Observe()
		s.clientWriter(client)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.clientsMu.Unlock()
		close(client.sendChan)
		<-writerDone
		s.log.Infof("Watcher disconnected: %s", client.Name)
	}()

	// Watchers send nothing after hello; reading services pings and close frames
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// clientWriter sends queued messages and keeps the connection alive
func (s *Server) clientWriter(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.sendChan:
			if !ok {
				return
			}
			client.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := writeJSON(client.Conn, msg); err != nil {
				s.log.Debugf("Error writing to %s: %v", client.Name, err)
				client.Conn.Close()
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				client.Conn.Close()
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
