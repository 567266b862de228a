// Package runtime keeps the reconciled chat state and the live session in sync:
// snapshot loading, event application, typing expiry and room membership.
package runtime

import (
	"context"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"crm-chat/infrastructure/dto"
	"crm-chat/projection"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize    = 50
	defaultEventBuffer = 256
)

var _ contract.Worker = (*Store)(nil)

type StoreOptions struct {
	PageSize    int
	TypingTTL   time.Duration
	EventBuffer int
	Self        domain.UserID
	// SocketSends emits sendMessage on the live connection instead of posting over REST.
	SocketSends bool
}

type op struct {
	fn   func()
	done chan struct{}
}

// Store is the single owner of the reconciled state.
// Every mutation runs on the loop started by Run; REST calls run outside of it
// and commit their result back through it.
type Store struct {
	log      *slog.Logger
	loader   contract.SnapshotLoader
	gateway  contract.CommandGateway
	pageSize int
	socket   bool

	ops     chan op
	quit    chan struct{}
	stopped sync.Once
	updates chan struct{}
	events  chan event.DomainEvent

	emitterMu sync.RWMutex
	emitter   contract.Emitter

	snapshotMu sync.RWMutex
	snapshot   projection.State

	// owned by the loop
	state      projection.State
	typing     *projection.TypingTracker
	timer      *time.Timer
	generation uint64
	pending    []event.DomainEvent
}

func NewStore(log *slog.Logger, loader contract.SnapshotLoader, gateway contract.CommandGateway, opts StoreOptions) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &Store{
		log:      log,
		loader:   loader,
		gateway:  gateway,
		pageSize: opts.PageSize,
		socket:   opts.SocketSends,
		ops:      make(chan op),
		quit:     make(chan struct{}),
		updates:  make(chan struct{}, 1),
		events:   make(chan event.DomainEvent, opts.EventBuffer),
		snapshot: projection.NewState(),
		state:    projection.NewState(),
		typing:   projection.NewTypingTracker(opts.TypingTTL, opts.Self),
	}
}

// Run is the store loop. It returns nil once ctx is done, after which every
// call needing the loop fails with ErrStoreStopped.
func (s *Store) Run(ctx context.Context) error {
	for {
		var expired <-chan time.Time
		if s.timer != nil {
			expired = s.timer.C
		}
		select {
		case o := <-s.ops:
			s.run(o)
		case <-expired:
			s.timer = nil
			if s.typing.Expire(time.Now()) {
				s.syncTyping()
				s.publish()
			}
			s.armTimer()
		case <-ctx.Done():
			s.stopped.Do(func() { close(s.quit) })
			s.disarmTimer()
			s.log.Debug("Context done, stopping store")
			return nil
		}
	}
}

func (s *Store) run(o op) {
	defer close(o.done)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Store operation panicked", "panic", r)
		}
	}()
	o.fn()
}

// exec runs fn on the loop and waits for it.
func (s *Store) exec(ctx context.Context, fn func()) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.quit:
		return errors.ErrStoreStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-o.done
	return nil
}

// Events feeds the sinks with every applied event and each loaded snapshot.
func (s *Store) Events() <-chan event.DomainEvent {
	return s.events
}

// Updates signals that a new snapshot is available. Notifications coalesce.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// Snapshot returns a deep copy of the last published state.
func (s *Store) Snapshot() projection.State {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.snapshot.Clone()
}

func (s *Store) publish() {
	s.snapshotMu.Lock()
	s.snapshot = s.state.Clone()
	s.snapshotMu.Unlock()
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Store) forward(evt event.DomainEvent) {
	select {
	case s.events <- evt:
	default:
		s.log.Warn("Event buffer full, sinks skip event", "event", evt.Name(), "chat_id", evt.ChatID())
	}
}

// Bind sets the emitter used by socket intents. Nil unbinds it.
func (s *Store) Bind(emitter contract.Emitter) {
	s.emitterMu.Lock()
	defer s.emitterMu.Unlock()
	s.emitter = emitter
}

func (s *Store) Unbind() {
	s.Bind(nil)
}

func (s *Store) bound() (contract.Emitter, error) {
	s.emitterMu.RLock()
	defer s.emitterMu.RUnlock()
	if s.emitter == nil {
		return nil, errors.ErrNotConnected
	}
	return s.emitter, nil
}

// SetSelf sets the local user, whose typing events are never shown.
func (s *Store) SetSelf(ctx context.Context, userID domain.UserID) error {
	return s.exec(ctx, func() { s.typing.SetSelf(userID) })
}

// LoadChats replaces the chat list with a fresh REST snapshot.
// On failure the previous list is kept and the error recorded.
func (s *Store) LoadChats(ctx context.Context) error {
	chats, err := s.loader.ListChats(ctx)
	if execErr := s.exec(ctx, func() {
		if err != nil {
			s.state.Err = err
		} else {
			s.state.Chats = chats
			s.state.Err = nil
		}
		s.publish()
	}); execErr != nil {
		return execErr
	}
	if err != nil {
		return fmt.Errorf("loading chats: %w", err)
	}
	return nil
}

// Select moves to Loading for chatID, fetches its message page and participants
// in parallel and commits them at Ready, unless another selection happened meanwhile.
func (s *Store) Select(ctx context.Context, chatID domain.ChatID) error {
	return s.load(ctx, chatID, false)
}

// Reload fetches chatID again only if it is still the active chat.
// Otherwise it returns ErrStaleSelection and leaves the state untouched.
func (s *Store) Reload(ctx context.Context, chatID domain.ChatID) error {
	return s.load(ctx, chatID, true)
}

func (s *Store) load(ctx context.Context, chatID domain.ChatID, onlyIfActive bool) error {
	if chatID == 0 {
		return errors.ErrNoChatSelected
	}

	var generation uint64
	superseded := false
	if err := s.exec(ctx, func() {
		if onlyIfActive && s.state.Active != chatID {
			superseded = true
			return
		}
		s.generation++
		generation = s.generation
		if previous := s.state.Active; previous != 0 && previous != chatID && s.typing.DropChat(previous) {
			s.syncTyping()
		}
		s.state.Active = chatID
		s.state.Phase = projection.PhaseLoading
		s.state.Err = nil
		s.pending = nil
		s.publish()
	}); err != nil {
		return err
	}
	if superseded {
		s.log.Debug("Skipping reload of a chat no longer selected", "chat_id", chatID)
		return errors.ErrStaleSelection
	}

	var (
		messages     []domain.Message
		participants []domain.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		messages, err = s.loader.ListMessages(gctx, chatID, domain.Page{Limit: s.pageSize})
		return err
	})
	g.Go(func() (err error) {
		participants, err = s.loader.ListParticipants(gctx, chatID)
		return err
	})
	fetchErr := g.Wait()

	stale := false
	if err := s.exec(context.WithoutCancel(ctx), func() {
		if s.generation != generation || s.state.Active != chatID {
			stale = true
			return
		}
		pending := s.pending
		s.pending = nil
		if fetchErr != nil {
			s.state.Phase = projection.PhaseFailed
			s.state.Err = fetchErr
			// the thread is not hydrated for chatID, only list-level fields move
			s.replay(pending)
			s.publish()
			return
		}
		s.state = projection.Hydrate(s.state, chatID, messages, participants)
		s.replay(pending)
		s.state.Phase = projection.PhaseReady
		s.publish()
		thread := s.state.Thread.Clone()
		s.forward(event.SnapshotLoaded{Chat: chatID, Messages: thread.Messages, Participants: thread.Participants})
	}); err != nil {
		return err
	}

	switch {
	case stale:
		s.log.Debug("Discarding stale snapshot", "chat_id", chatID)
		return errors.ErrStaleSelection
	case fetchErr != nil:
		s.log.Warn("Loading chat failed", "chat_id", chatID, "error", fetchErr)
		return fmt.Errorf("loading chat %d: %w", chatID, fetchErr)
	}
	return nil
}

// Deselect goes back to Idle and drops the thread.
// List-level fields (count, latest message) are kept.
func (s *Store) Deselect(ctx context.Context) error {
	return s.exec(ctx, func() {
		s.generation++
		if s.typing.DropChat(s.state.Active) {
			s.syncTyping()
		}
		s.state.Active = 0
		s.state.Phase = projection.PhaseIdle
		s.state.Thread = projection.Thread{}
		s.state.Err = nil
		s.pending = nil
		s.publish()
	})
}

// Reset forgets everything, used on sign-out.
func (s *Store) Reset(ctx context.Context) error {
	return s.exec(ctx, func() {
		s.generation++
		s.typing.Reset()
		s.disarmTimer()
		s.pending = nil
		s.state = projection.NewState()
		s.publish()
	})
}

// Apply hands a live event to the loop and waits for it to be applied.
// It never fails: malformed or out-of-range events are logged and dropped.
func (s *Store) Apply(evt event.DomainEvent) {
	if evt == nil {
		return
	}
	if err := s.exec(context.Background(), func() { s.apply(evt) }); err != nil {
		s.log.Debug("Event dropped, store stopped", "event", evt.Name(), "chat_id", evt.ChatID())
	}
}

func (s *Store) apply(evt event.DomainEvent) {
	switch e := evt.(type) {
	case event.UserTyping:
		if s.typing.Observe(e, time.Now()) {
			s.syncTyping()
			s.publish()
		}
		s.armTimer()
		return
	case event.UserJoined, event.UserLeft:
		s.log.Debug("Membership notice", "event", evt.Name(), "chat_id", evt.ChatID())
		return
	}

	if s.state.Phase == projection.PhaseLoading && evt.ChatID() == s.state.Active {
		s.pending = append(s.pending, evt)
		return
	}

	if s.applyOne(evt) {
		s.publish()
	}
}

func (s *Store) replay(pending []event.DomainEvent) {
	for _, evt := range pending {
		s.applyOne(evt)
	}
}

func (s *Store) applyOne(evt event.DomainEvent) bool {
	next, outcome := projection.Apply(s.state, evt)
	switch outcome {
	case projection.Applied:
		s.state = next
		s.forward(evt)
		return true
	case projection.Dropped:
		s.log.Warn("Dropping event", "event", evt.Name(), "chat_id", evt.ChatID())
	default:
		s.log.Debug("Event ignored", "event", evt.Name(), "chat_id", evt.ChatID())
	}
	return false
}

func (s *Store) syncTyping() {
	s.state.Typing = s.typing.Snapshot()
}

// armTimer keeps one timer armed on the earliest typing deadline.
func (s *Store) armTimer() {
	s.disarmTimer()
	next, ok := s.typing.Next()
	if !ok {
		return
	}
	s.timer = time.NewTimer(max(time.Until(next), 0))
}

func (s *Store) disarmTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SendMessage posts the trimmed message over REST, or emits it when sends go
// over the socket. The thread changes only when the server pushes the
// resulting newMessage event.
func (s *Store) SendMessage(ctx context.Context, cmd chat.SendMessageCommand) error {
	cmd = cmd.Normalized()
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	if !s.socket {
		return s.gateway.PostMessage(ctx, cmd)
	}
	emitter, err := s.bound()
	if err != nil {
		return err
	}
	return emitter.Emit(event.SendMessageKind, dto.NewSendMessagePayload(cmd), s.ackLogger(event.SendMessageKind, cmd.Chat))
}

func (s *Store) AddParticipants(ctx context.Context, cmd chat.AddParticipantsCommand) error {
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	return s.gateway.AddParticipants(ctx, cmd)
}

func (s *Store) RemoveParticipant(ctx context.Context, cmd chat.RemoveParticipantCommand) error {
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	return s.gateway.RemoveParticipant(ctx, cmd)
}

func (s *Store) TransferChat(ctx context.Context, cmd chat.TransferChatCommand) error {
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	return s.gateway.TransferChat(ctx, cmd)
}

// Typing tells the room whether the local user is typing. At most once.
func (s *Store) Typing(cmd chat.TypingCommand) error {
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	emitter, err := s.bound()
	if err != nil {
		return err
	}
	return emitter.Emit(event.TypingKind, dto.NewTypingPayload(cmd), s.ackLogger(event.TypingKind, cmd.Chat))
}

func (s *Store) MarkAsRead(cmd chat.MarkAsReadCommand) error {
	if err := chat.Validate(cmd); err != nil {
		return err
	}
	emitter, err := s.bound()
	if err != nil {
		return err
	}
	return emitter.Emit(event.MarkAsReadKind, dto.NewMarkAsReadPayload(cmd), s.ackLogger(event.MarkAsReadKind, cmd.Chat))
}

func (s *Store) ackLogger(kind event.Name, chatID domain.ChatID) contract.AckFunc {
	return func(payload []byte) {
		s.log.Debug("Emit acknowledged", "kind", kind, "chat_id", chatID, "ack", string(payload))
	}
}
