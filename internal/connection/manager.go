// Package connection owns the single push channel between the client and a
// spreads server.
//
// The Manager dials the server's /ws endpoint, hands every inbound frame to
// a Dispatcher in arrival order, and reconnects after a close with an
// exponential delay of 1s, 2s, 4s, 8s, 16s. After the fifth scheduled attempt
// it gives up until Reconnect is called. Errors are recorded but never
// trigger a reconnect on their own; only a close does.
package connection

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
)

const (
	// MaxReconnectAttempts caps automatic reconnects between successful opens.
	MaxReconnectAttempts = 5

	// Keepalive and deadlines, same values the server side uses.
	pingInterval     = 30 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxFrameSize     = 512 * 1024
)

// Dispatcher consumes raw inbound frames. router.Router satisfies it.
type Dispatcher interface {
	Dispatch(raw []byte) (protocol.Inbound, error)
}

// DialFunc opens a websocket connection.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Timer is the part of *time.Timer the manager needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

// State is a snapshot of the connection for observers.
type State struct {
	Connected         bool
	ReconnectAttempts int
	LastError         string

	// GaveUp is true once the attempt budget is spent; only Reconnect
	// leaves this state.
	GaveUp bool
}

// Options configures a Manager. Zero values select production defaults.
type Options struct {
	// Dial defaults to a gorilla/websocket Dialer with a handshake timeout.
	Dial DialFunc

	// AfterFunc defaults to time.AfterFunc. Tests inject a fake to observe
	// and fire reconnect delays without sleeping.
	AfterFunc AfterFunc

	// BackOff yields reconnect delays; it must return backoff.Stop once the
	// attempt budget is spent. Defaults to NewReconnectBackOff().
	BackOff backoff.BackOff

	// PingInterval defaults to 30s.
	PingInterval time.Duration

	// TLSConfig is used by the default dialer for wss:// endpoints.
	TLSConfig *tls.Config
}

// Manager owns one websocket connection and its reconnect schedule.
type Manager struct {
	url        string
	dispatcher Dispatcher
	dial       DialFunc
	afterFunc  AfterFunc
	pingEvery  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	backoff   backoff.BackOff
	started   bool
	closed    bool
	connected bool
	active    bool // a connect cycle owns the channel: dialing or reading
	attempts  int
	gaveUp    bool
	lastError string
	lastMsg   protocol.Inbound
	timer     Timer
	observers map[int]func(State)
	nextObsID int

	// writeMu serializes writes; gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

// NewReconnectBackOff returns the 1s, 2s, 4s, 8s, 16s, stop schedule.
func NewReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 16 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, MaxReconnectAttempts)
}

// WebSocketURL derives the push channel endpoint from a server origin:
// http becomes ws, https becomes wss, and the path is always /ws.
func WebSocketURL(origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", apperrors.ConfigInvalid("server URL: " + err.Error())
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", apperrors.ConfigInvalid("server URL scheme must be http or https: " + origin)
	}
	if u.Host == "" {
		return "", apperrors.ConfigInvalid("server URL has no host: " + origin)
	}
	u.Path = "/ws"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// New creates a Manager for the given server origin. Nothing is dialed
// until Start.
func New(origin string, d Dispatcher, opts Options) (*Manager, error) {
	wsURL, err := WebSocketURL(origin)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		url:        wsURL,
		dispatcher: d,
		dial:       opts.Dial,
		afterFunc:  opts.AfterFunc,
		pingEvery:  opts.PingInterval,
		backoff:    opts.BackOff,
		observers:  make(map[int]func(State)),
	}
	if m.dial == nil {
		m.dial = dialWith(opts.TLSConfig)
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if m.pingEvery <= 0 {
		m.pingEvery = pingInterval
	}
	if m.backoff == nil {
		m.backoff = NewReconnectBackOff()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

func dialWith(tlsConfig *tls.Config) DialFunc {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig:  tlsConfig,
	}
	return func(ctx context.Context, u string) (*websocket.Conn, error) {
		conn, _, err := dialer.DialContext(ctx, u, nil)
		return conn, err
	}
}

// URL returns the websocket endpoint being dialed.
func (m *Manager) URL() string {
	return m.url
}

// Start opens the channel. The dial runs in the background; observe
// OnStateChange for the outcome. Calling Start twice is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return apperrors.New(apperrors.CodeTransportClosed, "connection manager is closed")
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	go m.connect()
	return nil
}

// Reconnect is the manual retry: it resets the attempt budget and dials
// again. It does nothing while a connection is open or a dial is pending.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return apperrors.New(apperrors.CodeTransportClosed, "connection manager is closed")
	}
	if m.connected || m.active {
		m.mu.Unlock()
		return nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.started = true
	m.attempts = 0
	m.gaveUp = false
	m.backoff.Reset()
	state := m.stateLocked()
	m.mu.Unlock()

	m.notify(state)
	go m.connect()
	return nil
}

// Close tears the channel down and cancels any pending reconnect. After
// Close returns no reconnect is scheduled and the read loop exits.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	m.cancel()
	if conn != nil {
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		m.writeMu.Unlock()
		conn.Close()
	}
	log.Printf("connection: closed %s", m.url)
	return nil
}

// Send encodes cmd and writes it if the channel is open. When the channel
// is down the command is dropped, a warning is logged and
// transport.not_connected is returned. There is no acknowledgement.
func (m *Manager) Send(cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	open := m.connected && !m.closed
	m.mu.Unlock()

	if !open || conn == nil {
		log.Printf("connection: warning: not connected, dropping %s", cmd.Type())
		return apperrors.NotConnected(string(cmd.Type()))
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.recordError(err)
		return apperrors.SendFailed(string(cmd.Type()), err)
	}
	return nil
}

// Connected reports whether the channel is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// LastMessage returns the most recent recognized inbound frame, or nil.
func (m *Manager) LastMessage() protocol.Inbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMsg
}

// LastError returns the most recent transport error text, or "".
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// ReconnectAttempts returns the number of reconnects scheduled since the
// last successful open.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// State returns a snapshot of the connection.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// OnStateChange registers fn to observe state changes. fn runs on the
// manager's goroutines and must not block.
func (m *Manager) OnStateChange(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextObsID++
	id := m.nextObsID
	m.observers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) stateLocked() State {
	return State{
		Connected:         m.connected,
		ReconnectAttempts: m.attempts,
		LastError:         m.lastError,
		GaveUp:            m.gaveUp,
	}
}

func (m *Manager) notify(s State) {
	m.mu.Lock()
	fns := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// connect dials once and, on success, runs the read loop until the
// connection ends. Every exit path goes through handleClose. At most one
// connect runs at a time; a second caller returns immediately.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.closed || m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.timer = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, handshakeTimeout)
	conn, err := m.dial(ctx, m.url)
	cancel()
	if err != nil {
		log.Printf("connection: dial %s: %v", m.url, err)
		m.recordError(apperrors.DialFailed(m.url, err))
		m.handleClose()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.active = false
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.connected = true
	m.attempts = 0
	m.gaveUp = false
	m.lastError = ""
	m.backoff.Reset()
	state := m.stateLocked()
	m.mu.Unlock()

	log.Printf("connection: open %s", m.url)
	m.notify(state)

	done := make(chan struct{})
	go m.pingLoop(conn, done)
	m.readLoop(conn)
	close(done)

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	conn.Close()
	m.handleClose()
}

// readLoop delivers frames in arrival order until the connection fails.
func (m *Manager) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				log.Printf("connection: read error: %v", err)
				m.recordError(err)
			}
			return
		}

		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}

		// Any read counts as liveness, not just pongs.
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if m.dispatcher == nil {
			continue
		}
		msg, err := m.dispatcher.Dispatch(data)
		if err != nil {
			m.recordError(err)
			continue
		}
		if msg != nil {
			m.mu.Lock()
			m.lastMsg = msg
			m.mu.Unlock()
		}
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// recordError stores the error text. It never schedules a reconnect.
func (m *Manager) recordError(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.lastError = err.Error()
	state := m.stateLocked()
	m.mu.Unlock()
	m.notify(state)
}

// handleClose marks the channel down and schedules the next attempt, or
// gives up once the backoff is spent.
func (m *Manager) handleClose() {
	m.mu.Lock()
	m.active = false
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.connected = false

	delay := m.backoff.NextBackOff()
	if delay == backoff.Stop || m.attempts >= MaxReconnectAttempts {
		m.gaveUp = true
		state := m.stateLocked()
		m.mu.Unlock()
		log.Printf("connection: giving up on %s after %d attempts", m.url, state.ReconnectAttempts)
		m.notify(state)
		return
	}

	m.attempts++
	m.timer = m.afterFunc(delay, m.connect)
	state := m.stateLocked()
	m.mu.Unlock()

	log.Printf("connection: reconnect %d/%d in %s", state.ReconnectAttempts, MaxReconnectAttempts, delay)
	m.notify(state)
}
