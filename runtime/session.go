package runtime

import (
	"context"
	"crm-chat/auth"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"crm-chat/infrastructure/dto"
	"log/slog"
	"sync"
)

// TransportFactory builds the live connection of one signed-in session.
type TransportFactory func() contract.Transport

// Session keeps the live connection and its room membership in line with
// the sign-in state and the selected chat. It alone opens and closes the transport.
type Session struct {
	rooms        sync.Mutex // serializes room transitions, taken before mu
	mu           sync.Mutex
	log          *slog.Logger
	store        *Store
	tokens       *auth.TokenSource
	newTransport TransportFactory
	registry     *Registry

	transport contract.Transport
	active    domain.ChatID
	lifetime  context.Context
	cancel    context.CancelFunc
	resyncs   sync.WaitGroup
}

func NewSession(log *slog.Logger, store *Store, tokens *auth.TokenSource, newTransport TransportFactory) *Session {
	return &Session{
		log:          log,
		store:        store,
		tokens:       tokens,
		newTransport: newTransport,
		registry:     NewRegistry(),
	}
}

// SignIn connects once per session. Without a token chat is simply unavailable,
// which is not an error. A degraded transport is not an error either.
func (s *Session) SignIn(ctx context.Context, creds auth.Credentials) error {
	if creds.Token == "" {
		s.log.Info("No credentials, chat unavailable")
		return nil
	}

	s.mu.Lock()
	if s.transport != nil {
		s.mu.Unlock()
		return nil
	}
	s.tokens.Set(creds)
	transport := s.newTransport()
	for _, name := range event.Inbound {
		s.registry.Track(name, transport.Subscribe(name, s.handle(name)))
	}
	s.registry.Track(event.ReconnectName, transport.Subscribe(event.ReconnectName, s.onReconnect))

	err := transport.Connect(ctx, creds.Token)
	if err != nil && !errors.Is(err, errors.ErrTransportDegraded) {
		s.tokens.Clear()
		s.mu.Unlock()
		s.release(transport)
		return err
	}
	if err != nil {
		s.log.Warn("Signed in without live updates", "user_id", creds.UserID, "error", err)
	}
	s.transport = transport
	s.lifetime, s.cancel = context.WithCancel(context.Background())
	s.store.Bind(transport)
	s.mu.Unlock()

	if err := s.store.SetSelf(ctx, creds.UserID); err != nil {
		return err
	}
	s.log.Info("Signed in", "user_id", creds.UserID)
	return s.store.LoadChats(ctx)
}

// SignOut leaves the room, removes every handler the session registered,
// then disconnects and forgets the reconciled state.
func (s *Session) SignOut(ctx context.Context) error {
	s.rooms.Lock()
	s.mu.Lock()
	transport, active, cancel := s.transport, s.active, s.cancel
	s.transport, s.active, s.lifetime, s.cancel = nil, 0, nil, nil
	s.mu.Unlock()

	if transport == nil {
		s.rooms.Unlock()
		return nil
	}
	if active != 0 {
		s.leave(transport, active)
	}
	s.rooms.Unlock()
	s.store.Unbind()
	cancel()
	s.release(transport)
	s.resyncs.Wait()
	s.tokens.Clear()
	s.log.Info("Signed out")
	return s.store.Reset(ctx)
}

// release unsubscribes the session's handlers before disconnecting.
func (s *Session) release(transport contract.Transport) {
	for name, ids := range s.registry.Drain() {
		for _, id := range ids {
			transport.Unsubscribe(name, id)
		}
	}
	transport.Disconnect()
}

// SelectChat leaves the previous room before joining the new one, then loads the chat.
func (s *Session) SelectChat(ctx context.Context, chatID domain.ChatID) error {
	if chatID == 0 {
		return errors.ErrNoChatSelected
	}
	s.rooms.Lock()
	s.mu.Lock()
	transport, previous := s.transport, s.active
	if transport == nil {
		s.mu.Unlock()
		s.rooms.Unlock()
		return errors.ErrChatUnavailable
	}
	s.active = chatID
	s.mu.Unlock()

	if previous != chatID {
		if previous != 0 {
			s.leave(transport, previous)
		}
		s.join(transport, chatID)
	}
	s.rooms.Unlock()
	return s.store.Select(ctx, chatID)
}

func (s *Session) DeselectChat(ctx context.Context) error {
	s.rooms.Lock()
	s.mu.Lock()
	transport, active := s.transport, s.active
	s.active = 0
	s.mu.Unlock()

	if transport != nil && active != 0 {
		s.leave(transport, active)
	}
	s.rooms.Unlock()
	return s.store.Deselect(ctx)
}

// Active returns the selected chat, zero when none.
func (s *Session) Active() domain.ChatID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) State() contract.ConnState {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return contract.StateDisconnected
	}
	return transport.State()
}

func (s *Session) handle(name event.Name) contract.Handler {
	return func(payload []byte) {
		evt, err := dto.DecodeEvent(name, payload)
		if err != nil {
			s.log.Warn("Dropping live event", "event", name, "error", err)
			return
		}
		s.store.Apply(evt)
	}
}

// onReconnect resynchronizes after a gap nothing was buffered for: the chat
// selected when the resync runs is joined again and reloaded, then the chat list.
func (s *Session) onReconnect([]byte) {
	s.mu.Lock()
	transport, ctx := s.transport, s.lifetime
	if transport == nil || ctx == nil {
		s.mu.Unlock()
		return
	}
	s.resyncs.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.resyncs.Done()
		active, ok := s.rejoin(transport)
		if !ok {
			return
		}
		// a selection made meanwhile wins over the reload
		if active != 0 {
			if err := s.store.Reload(ctx, active); err != nil && !errors.Is(err, errors.ErrStaleSelection) {
				s.log.Warn("Resync of active chat failed", "chat_id", active, "error", err)
			}
		}
		if err := s.store.LoadChats(ctx); err != nil {
			s.log.Warn("Resync of chat list failed", "error", err)
		}
	}()
}

// rejoin joins the currently selected room again. It reports false once the
// session moved to another transport or signed out.
func (s *Session) rejoin(transport contract.Transport) (domain.ChatID, bool) {
	s.rooms.Lock()
	defer s.rooms.Unlock()
	s.mu.Lock()
	current, active := s.transport, s.active
	s.mu.Unlock()
	if current != transport {
		return 0, false
	}
	if active != 0 {
		s.join(transport, active)
	}
	return active, true
}

func (s *Session) join(transport contract.Transport, chatID domain.ChatID) {
	err := transport.JoinRoom(chatID, func(ack []byte) {
		s.log.Debug("Joined room", "chat_id", chatID, "ack", string(ack))
	})
	if err != nil {
		s.log.Warn("Could not join room, no live updates for it", "chat_id", chatID, "error", err)
	}
}

func (s *Session) leave(transport contract.Transport, chatID domain.ChatID) {
	err := transport.LeaveRoom(chatID, func(ack []byte) {
		s.log.Debug("Left room", "chat_id", chatID, "ack", string(ack))
	})
	if err != nil {
		s.log.Debug("Could not leave room", "chat_id", chatID, "error", err)
	}
}
