// Package ws is the live half of the chat: one WebSocket connection per session,
// carrying server-pushed events in and fire-and-forget emits out.
// It owns the connection only and has no business state.
package ws

import (
	"context"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"crm-chat/infrastructure/dto"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a frame
	writeWait = 10 * time.Second

	// Time allowed to read the next pong
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 512 * 1024

	defaultAckTimeout = 30 * time.Second
)

var _ contract.Transport = (*Transport)(nil)

// Frame is the envelope of everything crossing the socket.
type Frame struct {
	Event   event.Name      `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	AckID   string          `json:"ackId,omitempty"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	SendBufferSize    int
	// AckTimeout bounds how long an ack callback waits for the server.
	AckTimeout        time.Duration
	Dialer            *websocket.Dialer
}

type subscription struct {
	id      contract.SubscriptionID
	handler contract.Handler
}

type pendingAck struct {
	fn    contract.AckFunc
	timer *time.Timer
}

type Transport struct {
	log  *slog.Logger
	opts Options

	mu       sync.Mutex
	state    contract.ConnState
	token    string
	send     chan []byte
	cancel   context.CancelFunc
	done     chan struct{}
	handlers map[event.Name][]subscription
	acks     map[string]pendingAck
}

func NewTransport(log *slog.Logger, opts Options) *Transport {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 64
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	return &Transport{
		log:      log,
		opts:     opts,
		state:    contract.StateDisconnected,
		handlers: make(map[event.Name][]subscription),
		acks:     make(map[string]pendingAck),
	}
}

func (t *Transport) State() contract.ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connect opens the session. Calling it again while a session exists is a no-op.
// A failed first dial is not fatal: the transport goes degraded, keeps retrying in
// the background and the returned error wraps ErrTransportDegraded.
func (t *Transport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	if t.cancel != nil {
		state := t.state
		t.mu.Unlock()
		if state == contract.StateDegraded {
			return errors.ErrTransportDegraded
		}
		return nil
	}
	session, cancel := context.WithCancel(context.Background())
	t.token = token
	t.state = contract.StateConnecting
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	conn, err := t.dial(ctx, token)
	if err != nil {
		t.log.Warn("Live connection unavailable, running degraded", "url", t.opts.URL, "error", err)
		t.setState(session, contract.StateDegraded)
		go t.maintain(session, nil, nil, done)
		return fmt.Errorf("%w: %v", errors.ErrTransportDegraded, err)
	}
	send, ok := t.attach(session, conn)
	if !ok {
		// disconnected while dialing
		_ = conn.Close()
		close(done)
		return nil
	}
	go t.maintain(session, conn, send, done)
	return nil
}

// Disconnect tears the session down and forgets every subscription and pending ack.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.handlers = make(map[event.Name][]subscription)
	t.dropAcks()
	t.token = ""
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	t.mu.Lock()
	t.state = contract.StateDisconnected
	t.mu.Unlock()
	t.log.Debug("Live connection closed")
}

func (t *Transport) Subscribe(name event.Name, handler contract.Handler) contract.SubscriptionID {
	id := contract.SubscriptionID(uuid.NewString())
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = append(t.handlers[name], subscription{id: id, handler: handler})
	return id
}

func (t *Transport) Unsubscribe(name event.Name, id contract.SubscriptionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := slices.DeleteFunc(slices.Clone(t.handlers[name]), func(s subscription) bool { return s.id == id })
	if len(subs) == 0 {
		delete(t.handlers, name)
		return
	}
	t.handlers[name] = subs
}

func (t *Transport) JoinRoom(chatID domain.ChatID, ack contract.AckFunc) error {
	return t.Emit(event.JoinChatKind, dto.RoomPayload{ChatID: int64(chatID)}, ack)
}

func (t *Transport) LeaveRoom(chatID domain.ChatID, ack contract.AckFunc) error {
	return t.Emit(event.LeaveChatKind, dto.RoomPayload{ChatID: int64(chatID)}, ack)
}

// Emit queues one frame, at most once. Nothing is retried or replayed.
func (t *Transport) Emit(kind event.Name, payload any, ack contract.AckFunc) error {
	frame := Frame{Event: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", kind, err)
		}
		frame.Payload = raw
	}
	if ack != nil {
		frame.AckID = uuid.NewString()
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", kind, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != contract.StateConnected || t.send == nil {
		return errors.ErrNotConnected
	}
	select {
	case t.send <- raw:
	default:
		return errors.ErrSendBufferFull
	}
	if ack != nil {
		id := frame.AckID
		t.acks[id] = pendingAck{fn: ack, timer: time.AfterFunc(t.opts.AckTimeout, func() { t.expireAck(kind, id) })}
	}
	return nil
}

// expireAck forgets an ack the server never sent.
func (t *Transport) expireAck(kind event.Name, id string) {
	t.mu.Lock()
	_, ok := t.acks[id]
	delete(t.acks, id)
	t.mu.Unlock()
	if ok {
		t.log.Debug("Ack never received", "kind", kind, "ack_id", id, "timeout", t.opts.AckTimeout)
	}
}

// dropAcks forgets every pending ack. Callers hold t.mu.
func (t *Transport) dropAcks() {
	for _, pending := range t.acks {
		pending.timer.Stop()
	}
	t.acks = make(map[string]pendingAck)
}


// maintain owns the connection for the whole session: it runs the pumps and
// reconnects with a bounded, fixed backoff when the connection drops.
func (t *Transport) maintain(ctx context.Context, conn *websocket.Conn, send chan []byte, done chan struct{}) {
	defer close(done)

	for {
		if conn == nil {
			var err error
			conn, err = t.reconnect(ctx)
			if err != nil {
				if ctx.Err() == nil {
					t.log.Error("Giving up on the live connection", "attempts", t.opts.ReconnectAttempts, "error", err)
				}
				return
			}
			var ok bool
			if send, ok = t.attach(ctx, conn); !ok {
				_ = conn.Close()
				return
			}
			t.log.Info("Live connection restored")
			t.dispatch(event.ReconnectName, nil)
		}

		err := t.pump(ctx, conn, send)
		t.detach(ctx)
		if ctx.Err() != nil {
			return
		}
		t.log.Warn("Live connection lost", "error", err)
		conn = nil
	}
}

func (t *Transport) reconnect(ctx context.Context) (*websocket.Conn, error) {
	if t.opts.ReconnectAttempts <= 0 {
		return nil, errors.ErrNotConnected
	}
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()

	return backoff.Retry(ctx,
		func() (*websocket.Conn, error) { return t.dial(ctx, token) },
		backoff.WithBackOff(backoff.NewConstantBackOff(t.opts.ReconnectDelay)),
		backoff.WithMaxTries(uint(t.opts.ReconnectAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.log.Debug("Reconnect attempt failed", "retry_in", next, "error", err)
		}),
	)
}

func (t *Transport) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := t.opts.Dialer.DialContext(ctx, t.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", errors.ErrUnauthorized, err))
		}
		return nil, err
	}
	return conn, nil
}

// attach publishes a fresh connection. The authenticate frame is always the first one sent.
func (t *Transport) attach(ctx context.Context, conn *websocket.Conn) (chan []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil {
		return nil, false
	}
	send := make(chan []byte, t.opts.SendBufferSize+1)
	payload, _ := json.Marshal(authenticatePayload{Token: t.token})
	auth, _ := json.Marshal(Frame{Event: event.AuthenticateName, Payload: payload})
	send <- auth

	t.send = send
	t.state = contract.StateConnected
	return send, true
}

// detach drops the connection. Pending acks will never be answered.
func (t *Transport) detach(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.send = nil
	t.dropAcks()
	if ctx.Err() == nil {
		t.state = contract.StateDegraded
	}
}

func (t *Transport) setState(ctx context.Context, state contract.ConnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() == nil {
		t.state = state
	}
}

// pump runs the read and write sides until either fails or the session ends.
func (t *Transport) pump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.readPump(conn) })
	g.Go(func() error { return t.writePump(gctx, conn, send) })
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	return g.Wait()
}

func (t *Transport) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.log.Warn("Dropping unreadable frame", "error", err)
			continue
		}
		if frame.Event == event.AckName {
			t.acknowledge(frame)
			continue
		}
		t.dispatch(frame.Event, frame.Payload)
	}
}

func (t *Transport) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case raw := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}

// dispatch calls every handler of name in registration order, on the read goroutine.
func (t *Transport) dispatch(name event.Name, payload []byte) {
	t.mu.Lock()
	subs := slices.Clone(t.handlers[name])
	t.mu.Unlock()

	if len(subs) == 0 {
		t.log.Debug("No handler for event", "event", name)
		return
	}
	for _, sub := range subs {
		t.safeCall(name, func() { sub.handler(payload) })
	}
}

func (t *Transport) acknowledge(frame Frame) {
	t.mu.Lock()
	pending, ok := t.acks[frame.AckID]
	delete(t.acks, frame.AckID)
	t.mu.Unlock()
	if !ok {
		return
	}
	pending.timer.Stop()
	t.safeCall(event.AckName, func() { pending.fn(frame.Payload) })
}

func (t *Transport) safeCall(name event.Name, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Event handler panicked", "event", name, "panic", r)
		}
	}()
	fn()
}
