// ABOUTME: WebSocket connection manager: dial, reconnect, queue, dispatch
// ABOUTME: One connection, one read loop, sequential listener dispatch

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// State is the manager's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSuspended    State = "suspended"
)

// Handler receives the data payload of one event.
type Handler func(data json.RawMessage)

// Options configure the manager.
type Options struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}

type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// errConnectAborted reports a connect attempt overtaken by a deliberate
// Disconnect or Suspend.
var errConnectAborted = errors.New("connect aborted by disconnect or suspend")

type inflight struct {
	done chan struct{}
	err  error
}

// Manager owns the backend WebSocket connection.
type Manager struct {
	opts   Options
	logger *slog.Logger
	dial   dialFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	queue     [][]byte
	listeners map[string]map[string]Handler
	inflight  *inflight
	manual    bool
	suspended bool
	readStop  context.CancelFunc
	onState   func(State)
}

// NewManager creates a disconnected manager. Connect must be called before
// events flow.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		opts:   opts,
		logger: logger.With("component", "realtime"),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.Dial(ctx, url, nil)
			return conn, err
		},
		state:     StateDisconnected,
		listeners: make(map[string]map[string]Handler),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers a callback invoked whenever the connection state
// changes. Only one callback is supported.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// On registers a handler for an event type and returns an id for Off.
func (m *Manager) On(eventType string, h Handler) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	if m.listeners[eventType] == nil {
		m.listeners[eventType] = make(map[string]Handler)
	}
	m.listeners[eventType][id] = h
	return id
}

// Off removes a previously registered handler.
func (m *Manager) Off(eventType, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners[eventType], id)
}

// Connect establishes the connection if one isn't already up. Concurrent
// callers share a single dial attempt and its outcome. A successful connect
// flushes the outbound queue in FIFO order.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.inflight != nil {
		fl := m.inflight
		m.mu.Unlock()
		<-fl.done
		return fl.err
	}
	fl := &inflight{done: make(chan struct{})}
	m.inflight = fl
	m.manual = false
	m.suspended = false
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	conn, err := m.dial(ctx, m.opts.URL)
	if err != nil {
		m.mu.Lock()
		m.inflight = nil
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		fl.err = fmt.Errorf("dialing %s: %w", m.opts.URL, err)
		close(fl.done)
		return fl.err
	}

	m.mu.Lock()
	if m.manual || m.suspended {
		// A Disconnect or Suspend landed while the dial was in flight.
		// Honor it: Disconnect/Suspend already set the state, this
		// connection must not resurrect.
		m.inflight = nil
		m.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		fl.err = errConnectAborted
		close(fl.done)
		return fl.err
	}
	m.conn = conn
	readCtx, cancel := context.WithCancel(context.Background())
	m.readStop = cancel
	m.mu.Unlock()

	go m.readLoop(readCtx, conn)

	// Drain the queue before declaring the connection usable so queued
	// envelopes always precede newly sent ones. Sends arriving during the
	// drain see state connecting and join the queue.
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.inflight = nil
			m.setStateLocked(StateConnected)
			m.mu.Unlock()
			break
		}
		queued := m.queue
		m.queue = nil
		m.mu.Unlock()

		if err := m.flush(ctx, conn, queued); err != nil {
			m.mu.Lock()
			m.inflight = nil
			m.conn = nil
			m.readStop = nil
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			cancel()
			conn.Close(websocket.StatusInternalError, "flush failed")
			fl.err = fmt.Errorf("flushing queue: %w", err)
			close(fl.done)
			return fl.err
		}
	}
	close(fl.done)

	m.logger.Info("connected", "url", m.opts.URL)
	return nil
}

// flush writes queued envelopes oldest first. On a write failure the unsent
// remainder goes back to the head of the queue so nothing is sent twice or
// dropped.
func (m *Manager) flush(ctx context.Context, conn *websocket.Conn, queued [][]byte) error {
	for i, raw := range queued {
		if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
			m.logger.Warn("queue flush interrupted", "sent", i, "remaining", len(queued)-i, "error", err)
			m.mu.Lock()
			m.queue = append(queued[i:], m.queue...)
			m.mu.Unlock()
			return err
		}
	}
	m.logger.Debug("queue flushed", "count", len(queued))
	return nil
}

// Send transmits an event envelope. While disconnected the envelope is
// queued and, unless the manager is suspended, a connection attempt starts
// in the background.
func (m *Manager) Send(ctx context.Context, eventType string, data any) error {
	env := Envelope{Type: eventType, Timestamp: time.Now().UTC()}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", eventType, err)
		}
		env.Data = payload
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	m.mu.Lock()
	if m.state != StateConnected {
		m.queue = append(m.queue, raw)
		suspended := m.suspended
		m.mu.Unlock()
		m.logger.Debug("queued while disconnected", "type", eventType)
		if !suspended {
			go func() {
				if err := m.Connect(context.Background()); err != nil {
					m.logger.Warn("background connect failed", "error", err)
				}
			}()
		}
		return nil
	}
	conn := m.conn
	m.mu.Unlock()

	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		// The read loop will notice the broken connection; keep the
		// envelope for the post-reconnect flush.
		m.mu.Lock()
		m.queue = append(m.queue, raw)
		m.mu.Unlock()
		return fmt.Errorf("writing %s: %w", eventType, err)
	}
	return nil
}

// Disconnect closes the connection deliberately. No reconnection follows and
// queued envelopes are retained for a future Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	conn := m.conn
	m.conn = nil
	if m.readStop != nil {
		m.readStop()
		m.readStop = nil
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	m.logger.Info("disconnected")
}

// Suspend closes the connection while the console is backgrounded. Queued
// and registered state survives; Resume re-establishes the connection.
func (m *Manager) Suspend() {
	m.mu.Lock()
	if m.state != StateConnected && m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.suspended = true
	conn := m.conn
	m.conn = nil
	if m.readStop != nil {
		m.readStop()
		m.readStop = nil
	}
	m.setStateLocked(StateSuspended)
	m.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "suspended")
	}
	m.logger.Info("suspended")
}

// Resume reconnects after a Suspend.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateSuspended {
		m.mu.Unlock()
		return nil
	}
	m.suspended = false
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	m.logger.Info("resuming")
	return m.Connect(ctx)
}

// readLoop consumes frames until the connection drops or is cancelled.
// Dispatch is sequential so listeners observe events in arrival order.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // deliberate close
			}
			if websocket.CloseStatus(err) != -1 {
				m.logger.Info("connection closed by server", "status", websocket.CloseStatus(err))
			} else {
				m.logger.Warn("read error", "error", err)
			}
			m.handleDrop(conn)
			return
		}
		m.dispatch(raw)
	}
}

// dispatch decodes, shape-checks, and delivers one frame. Malformed frames
// are dropped with a warning.
func (m *Manager) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.logger.Warn("dropping undecodable frame", "error", err)
		return
	}
	if env.Type == "" {
		m.logger.Warn("dropping frame without type")
		return
	}
	if check, ok := shapeChecks[env.Type]; ok {
		if err := check(env.Data); err != nil {
			m.logger.Warn("dropping malformed event", "type", env.Type, "error", err)
			return
		}
	}

	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.listeners[env.Type]))
	for _, h := range m.listeners[env.Type] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		m.invoke(env.Type, h, env.Data)
	}
}

// invoke runs one handler, containing panics so a bad listener cannot stall
// the read loop or starve its neighbors.
func (m *Manager) invoke(eventType string, h Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("listener panicked", "type", eventType, "panic", r)
		}
	}()
	h(data)
}

// handleDrop reacts to an unexpected connection loss: mark disconnected and,
// unless the drop was deliberate, reconnect with a fixed delay up to the
// attempt limit.
func (m *Manager) handleDrop(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.readStop = nil
	m.setStateLocked(StateDisconnected)
	manual := m.manual || m.suspended
	m.mu.Unlock()

	if manual || m.opts.MaxReconnectAttempts <= 0 {
		return
	}

	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		time.Sleep(m.opts.ReconnectDelay)

		m.mu.Lock()
		stopped := m.manual || m.suspended || m.state == StateConnected
		m.mu.Unlock()
		if stopped {
			return
		}

		m.logger.Info("reconnecting", "attempt", attempt, "max", m.opts.MaxReconnectAttempts)
		if err := m.Connect(context.Background()); err == nil {
			return
		}
	}
	m.logger.Error("reconnection attempts exhausted", "attempts", m.opts.MaxReconnectAttempts)
}

// setStateLocked updates state and schedules the change callback. Caller
// holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onState != nil {
		go m.onState(s)
	}
}
