package connection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/spreads/client/internal/errors"
	"github.com/spreads/client/internal/protocol"
	"github.com/spreads/client/internal/router"
)

// fakeTimers records reconnect delays instead of sleeping.
type fakeTimers struct {
	mu        sync.Mutex
	delays    []time.Duration
	scheduled chan *fakeTimer
}

type fakeTimer struct {
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

// fire runs the callback on its own goroutine, like time.AfterFunc.
func (t *fakeTimer) fire() { go t.f() }

func newFakeTimers() *fakeTimers {
	return &fakeTimers{scheduled: make(chan *fakeTimer, 16)}
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	ft.delays = append(ft.delays, d)
	ft.mu.Unlock()
	t := &fakeTimer{f: f}
	ft.scheduled <- t
	return t
}

func (ft *fakeTimers) Delays() []time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]time.Duration(nil), ft.delays...)
}

func (ft *fakeTimers) waitScheduled(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case tm := <-ft.scheduled:
		return tm
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reconnect to be scheduled")
		return nil
	}
}

func watchStates(m *Manager) <-chan State {
	ch := make(chan State, 64)
	m.OnStateChange(func(s State) {
		select {
		case ch <- s:
		default:
		}
	})
	return ch
}

func waitState(t *testing.T, ch <-chan State, pred func(State) bool) State {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for connection state")
			return State{}
		}
	}
}

func refusingDial(counter *atomic.Int32) DialFunc {
	return func(ctx context.Context, u string) (*websocket.Conn, error) {
		counter.Add(1)
		return nil, errors.New("connection refused")
	}
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		origin  string
		want    string
		wantErr bool
	}{
		{"http://scanner.local:5000", "ws://scanner.local:5000/ws", false},
		{"https://scanner.example.org", "wss://scanner.example.org/ws", false},
		{"http://127.0.0.1:5000/app/#/capture?x=1", "ws://127.0.0.1:5000/ws", false},
		{"  https://h/  ", "wss://h/ws", false},
		{"ftp://h", "", true},
		{"http://", "", true},
		{"not a url", "", true},
	}

	for _, tt := range tests {
		got, err := WebSocketURL(tt.origin)
		if tt.wantErr {
			if !apperrors.IsCode(err, apperrors.CodeConfigInvalid) {
				t.Errorf("WebSocketURL(%q) error = %v, want config.invalid", tt.origin, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("WebSocketURL(%q) error: %v", tt.origin, err)
			continue
		}
		if got != tt.want {
			t.Errorf("WebSocketURL(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestReconnectBackOffSchedule(t *testing.T) {
	b := NewReconnectBackOff()
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("delay %d = %s, want %s", i, got, w)
		}
	}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("delay 5 = %s, want Stop", got)
	}

	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("delay after Reset = %s, want 1s", got)
	}
}

func TestReconnect_FiveAttemptsThenGiveUp(t *testing.T) {
	var dials atomic.Int32
	ft := newFakeTimers()
	m, err := New("http://127.0.0.1:1", nil, Options{Dial: refusingDial(&dials), AfterFunc: ft.AfterFunc})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer m.Close()
	states := watchStates(m)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	for i := 1; i <= MaxReconnectAttempts; i++ {
		tm := ft.waitScheduled(t)
		if got := m.ReconnectAttempts(); got != i {
			t.Errorf("ReconnectAttempts() = %d after close %d, want %d", got, i, i)
		}
		if m.Connected() {
			t.Error("Connected() = true after a failed dial")
		}
		tm.fire()
	}

	s := waitState(t, states, func(s State) bool { return s.GaveUp })
	if s.Connected {
		t.Error("Connected = true after giving up")
	}

	select {
	case <-ft.scheduled:
		t.Fatal("a 6th reconnect was scheduled")
	case <-time.After(50 * time.Millisecond):
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	got := ft.Delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d = %s, want %s", i, got[i], want[i])
		}
	}
	if n := dials.Load(); n != 6 {
		t.Errorf("dial count = %d, want 6 (initial + 5 retries)", n)
	}
	if !strings.Contains(m.LastError(), "connection refused") {
		t.Errorf("LastError() = %q, want the dial failure", m.LastError())
	}

	// Manual reconnect restores the budget.
	if err := m.Reconnect(); err != nil {
		t.Fatalf("Reconnect() error: %v", err)
	}
	ft.waitScheduled(t)
	if got := m.ReconnectAttempts(); got != 1 {
		t.Errorf("ReconnectAttempts() after Reconnect = %d, want 1", got)
	}
	if d := ft.Delays(); d[len(d)-1] != time.Second {
		t.Errorf("first delay after Reconnect = %s, want 1s", d[len(d)-1])
	}
}

func TestOpenResetsAttemptsAndCarriesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer ts.Close()

	var dials atomic.Int32
	dialReal := dialWith(nil)
	dial := func(ctx context.Context, u string) (*websocket.Conn, error) {
		if dials.Add(1) <= 2 {
			return nil, errors.New("connection refused")
		}
		return dialReal(ctx, u)
	}

	r := router.New()
	notes := make(chan protocol.Notification, 1)
	r.SubscribeApp(appFunc(func(n protocol.Notification) { notes <- n }))

	ft := newFakeTimers()
	m, err := New(ts.URL, r, Options{Dial: dial, AfterFunc: ft.AfterFunc})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer m.Close()
	states := watchStates(m)

	m.Start()
	ft.waitScheduled(t).fire()
	ft.waitScheduled(t).fire()

	waitState(t, states, func(s State) bool { return s.Connected })
	if got := m.ReconnectAttempts(); got != 0 {
		t.Errorf("ReconnectAttempts() after open = %d, want 0", got)
	}
	if got := m.LastError(); got != "" {
		t.Errorf("LastError() after open = %q, want empty", got)
	}

	var sc *websocket.Conn
	select {
	case sc = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}

	// Server -> client.
	sc.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","message":"scanner ready"}`))
	select {
	case n := <-notes:
		if n.Message != "scanner ready" {
			t.Errorf("notification = %q", n.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never dispatched")
	}
	if got := m.LastMessage(); got != (protocol.Notification{Message: "scanner ready"}) {
		t.Errorf("LastMessage() = %#v", got)
	}

	// Client -> server.
	if err := m.Send(protocol.Capture{WorkflowID: "wf-1", PageNumber: 3}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	sc.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := sc.ReadMessage()
	if err != nil {
		t.Fatalf("server read failed: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if frame["type"] != "capture" || frame["workflow_id"] != "wf-1" || frame["page_number"] != float64(3) {
		t.Errorf("frame = %v", frame)
	}

	// Abrupt server drop restarts the schedule at 1s.
	sc.Close()
	ft.waitScheduled(t)
	if got := m.ReconnectAttempts(); got != 1 {
		t.Errorf("ReconnectAttempts() after drop = %d, want 1", got)
	}
	if d := ft.Delays(); d[len(d)-1] != time.Second {
		t.Errorf("delay after drop = %s, want 1s", d[len(d)-1])
	}
	if m.Connected() {
		t.Error("Connected() = true after the server dropped")
	}
}

func TestMalformedFrameRecordedWithoutReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"capture_status","status":`))
		serverConns <- conn
	}))
	defer ts.Close()

	ft := newFakeTimers()
	m, _ := New(ts.URL, router.New(), Options{AfterFunc: ft.AfterFunc})
	defer m.Close()
	states := watchStates(m)
	m.Start()

	waitState(t, states, func(s State) bool { return s.LastError != "" })
	if !m.Connected() {
		t.Error("a malformed frame disconnected the channel")
	}
	if got := m.ReconnectAttempts(); got != 0 {
		t.Errorf("ReconnectAttempts() = %d, want 0", got)
	}
	if !strings.Contains(m.LastError(), "protocol.invalid_message") {
		t.Errorf("LastError() = %q, want protocol.invalid_message", m.LastError())
	}
}

func TestSendWhenNotConnectedIsDropped(t *testing.T) {
	var dials atomic.Int32
	m, _ := New("http://127.0.0.1:1", nil, Options{Dial: refusingDial(&dials), AfterFunc: newFakeTimers().AfterFunc})
	defer m.Close()

	err := m.Send(protocol.StartProcessing{WorkflowID: "wf-1"})
	if !apperrors.IsCode(err, apperrors.CodeTransportNotConnected) {
		t.Fatalf("Send() error = %v, want transport.not_connected", err)
	}
	if n := dials.Load(); n != 0 {
		t.Errorf("Send dialed %d times, want 0", n)
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	var dials atomic.Int32
	ft := newFakeTimers()
	m, _ := New("http://127.0.0.1:1", nil, Options{Dial: refusingDial(&dials), AfterFunc: ft.AfterFunc})

	m.Start()
	tm := ft.waitScheduled(t)
	m.Close()

	if !tm.stopped.Load() {
		t.Error("pending reconnect timer was not stopped")
	}

	// A timer that raced past Stop must still do nothing.
	tm.f()
	if n := dials.Load(); n != 1 {
		t.Errorf("dial count = %d after Close, want 1", n)
	}
	if err := m.Start(); !apperrors.IsCode(err, apperrors.CodeTransportClosed) {
		t.Errorf("Start() after Close error = %v, want transport.closed", err)
	}
	if err := m.Reconnect(); !apperrors.IsCode(err, apperrors.CodeTransportClosed) {
		t.Errorf("Reconnect() after Close error = %v, want transport.closed", err)
	}
}

func TestReconnectDuringDialKeepsOneChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var opened atomic.Int32
	serverConns := make(chan *websocket.Conn, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		opened.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"notification","message":"page 1 captured"}`))
		serverConns <- conn
	}))
	defer ts.Close()
	defer func() {
		close(serverConns)
		for sc := range serverConns {
			sc.Close()
		}
	}()

	var dials atomic.Int32
	release := make(chan struct{})
	dialReal := dialWith(nil)
	dial := func(ctx context.Context, u string) (*websocket.Conn, error) {
		dials.Add(1)
		<-release
		return dialReal(ctx, u)
	}

	r := router.New()
	var delivered atomic.Int32
	r.SubscribeApp(appFunc(func(protocol.Notification) { delivered.Add(1) }))

	ft := newFakeTimers()
	m, err := New(ts.URL, r, Options{Dial: dial, AfterFunc: ft.AfterFunc})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer m.Close()
	states := watchStates(m)

	m.Start()
	deadline := time.Now().Add(2 * time.Second)
	for dials.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	// The handshake is still pending; a manual retry must not start another.
	if err := m.Reconnect(); err != nil {
		t.Fatalf("Reconnect() error: %v", err)
	}
	close(release)

	waitState(t, states, func(s State) bool { return s.Connected })
	deadline = time.Now().Add(2 * time.Second)
	for delivered.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if n := dials.Load(); n != 1 {
		t.Errorf("dial count = %d, want 1", n)
	}
	if n := opened.Load(); n != 1 {
		t.Errorf("server saw %d sockets, want 1", n)
	}
	if n := delivered.Load(); n != 1 {
		t.Errorf("notification delivered %d times, want 1", n)
	}
}

// appFunc adapts a notification callback to router.AppHandler.
type appFunc func(protocol.Notification)

func (f appFunc) OnLog(protocol.Log)                     {}
func (f appFunc) OnNotification(n protocol.Notification) { f(n) }
