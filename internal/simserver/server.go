// Package simserver is a stand-in spreads server for development and
// end-to-end tests. It serves the workflow REST API over a storage.Store
// and a /ws push channel that simulates the capture devices and the
// post-capture pipeline with fixed delays.
package simserver

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/storage"
)

const (
	// channelBufferSize is how many frames a slow client may fall behind.
	channelBufferSize = 256

	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 512 * 1024
)

// Options tunes the simulation. Zero values select the defaults.
type Options struct {
	// CaptureDelay is how long one capture takes. Default 400ms.
	CaptureDelay time.Duration

	// StageDelay is how long each processing stage takes. Default 300ms.
	StageDelay time.Duration

	// CommandsPerSecond limits commands per connection. Default 10.
	CommandsPerSecond float64

	// Burst is the limiter's bucket size. Default 5.
	Burst int
}

func (o *Options) applyDefaults() {
	if o.CaptureDelay <= 0 {
		o.CaptureDelay = 400 * time.Millisecond
	}
	if o.StageDelay <= 0 {
		o.StageDelay = 300 * time.Millisecond
	}
	if o.CommandsPerSecond <= 0 {
		o.CommandsPerSecond = 10
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
}

// Server simulates a spreads server.
type Server struct {
	store    *storage.Store
	opts     Options
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	clients    map[*client]bool
	processing map[string]*walk // workflow id -> running pipeline
	httpServer *http.Server
}

// New creates a simulator backed by store.
func New(store *storage.Store, opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		store: store,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The simulator is a local development tool.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		processing: make(map[string]*walk),
	}
}

// Handler returns the HTTP handler with every endpoint registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/workflow", s.handleListWorkflows)
	mux.HandleFunc("POST /api/workflow", s.handleCreateWorkflow)
	mux.HandleFunc("GET /api/workflow/{id}", s.handleGetWorkflow)
	mux.HandleFunc("PUT /api/workflow/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /api/workflow/{id}", s.handleDeleteWorkflow)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/config", s.handleSaveConfig)

	return mux
}

// Serve accepts connections on ln until ctx is cancelled or Close is
// called. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	log.Printf("simserver: listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops the HTTP server, every processing walk and every client.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	for id, w := range s.processing {
		w.cancel()
		delete(s.processing, id)
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// ClientCount returns the number of connected push-channel clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast queues msg for every connected client. Slow clients drop it.
func (s *Server) Broadcast(msg protocol.Inbound) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.push(msg)
	}
}

// handleWebSocket upgrades a /ws request and announces device readiness.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("simserver: websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, channelBufferSize),
		done:    make(chan struct{}),
		server:  s,
		limiter: rate.NewLimiter(rate.Limit(s.opts.CommandsPerSecond), s.opts.Burst),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	log.Printf("simserver: client connected (%d total)", s.ClientCount())

	go c.writePump()

	// Devices warm up on every connect.
	c.push(protocol.CaptureStatus{Status: protocol.DevicePreparing})
	c.push(protocol.CaptureStatus{Status: protocol.DeviceReady})

	go c.readPump()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}
