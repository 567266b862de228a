package runtime

import (
	"context"
	"crm-chat/auth"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"crm-chat/mocks"
	"crm-chat/projection"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var credentials = auth.Credentials{Token: "token", UserID: 1}

// handlerSet captures what the session subscribes on the transport.
type handlerSet struct {
	mu       sync.Mutex
	handlers map[event.Name]contract.Handler
}

func (h *handlerSet) get(name event.Name) contract.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handlers[name]
}

func expectSubscriptions(transport *mocks.MockTransport) *handlerSet {
	set := &handlerSet{handlers: make(map[event.Name]contract.Handler)}
	transport.EXPECT().Subscribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(name event.Name, handler contract.Handler) contract.SubscriptionID {
			set.mu.Lock()
			defer set.mu.Unlock()
			set.handlers[name] = handler
			return contract.SubscriptionID(name)
		}).
		Times(len(event.Inbound) + 1)
	return set
}

func newSession(store *Store, transport contract.Transport) (*Session, *auth.TokenSource) {
	tokens := auth.NewTokenSource()
	return NewSession(slog.Default(), store, tokens, func() contract.Transport { return transport }), tokens
}

func TestSession_SignIn_WithoutTokenIsNoOp(t *testing.T) {
	req := require.New(t)
	store := startStore(t, nil, nil, StoreOptions{})
	built := false
	session := NewSession(slog.Default(), store, auth.NewTokenSource(), func() contract.Transport {
		built = true
		return nil
	})

	// When signing in without a token
	err := session.SignIn(context.Background(), auth.Credentials{})

	// Then chat is unavailable but nothing failed
	req.NoError(err)
	req.False(built)
	req.Equal(contract.StateDisconnected, session.State())
	req.ErrorIs(session.SelectChat(context.Background(), 7), errors.ErrChatUnavailable)
}

func TestSession_SignIn_RoutesLiveEventsToStore(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)

	// Given a reachable server listing chat 7
	handlers := expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), "token").Return(nil).Times(1)
	loader.EXPECT().ListChats(gomock.Any()).Return([]domain.Chat{{ID: 7}}, nil).Times(1)
	store := startStore(t, loader, nil, StoreOptions{})
	session, tokens := newSession(store, transport)

	// When signing in twice
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SignIn(context.Background(), credentials))

	// Then one connection serves the session and REST calls carry the token
	req.Equal("token", tokens.Token())
	req.Len(store.Snapshot().Chats, 1)

	// When the server pushes a message for chat 7, and then garbage
	handlers.get(event.NewMessageName)([]byte(`{"chatId":7,"message":{"id":3,"senderId":2,"message":"hello","createdAt":"2024-03-01T10:00:00Z"}}`))
	req.NotPanics(func() { handlers.get(event.NewMessageName)([]byte(`{"chatId":`)) })

	// Then the chat list shows it as latest message
	latest := store.Snapshot().Chats[0].LatestMessage
	req.NotNil(latest)
	req.Equal(domain.MessageID(3), latest.ID)
	req.Equal("hello", latest.Body)
}

func TestSession_SelectChat_LeavesBeforeJoining(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)

	expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)
	loader.EXPECT().ListChats(gomock.Any()).Return(nil, nil)
	loader.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	loader.EXPECT().ListParticipants(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	// Then rooms are left before the next one is joined, and reselecting rejoins nothing
	gomock.InOrder(
		transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(nil),
		transport.EXPECT().LeaveRoom(domain.ChatID(7), gomock.Any()).Return(nil),
		transport.EXPECT().JoinRoom(domain.ChatID(8), gomock.Any()).Return(nil),
	)
	store := startStore(t, loader, nil, StoreOptions{})
	session, _ := newSession(store, transport)
	req.NoError(session.SignIn(context.Background(), credentials))

	// When selecting chat 7, then chat 8 twice
	req.NoError(session.SelectChat(context.Background(), 7))
	req.NoError(session.SelectChat(context.Background(), 8))
	req.NoError(session.SelectChat(context.Background(), 8))

	req.Equal(domain.ChatID(8), session.Active())
	req.Equal(domain.ChatID(8), store.Snapshot().Thread.Chat)
}

func TestSession_SelectChat_WhileDegradedStillLoads(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)

	// Given a live connection that cannot be established
	expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).
		Return(fmt.Errorf("%w: connection refused", errors.ErrTransportDegraded))
	transport.EXPECT().State().Return(contract.StateDegraded)
	transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(errors.ErrNotConnected)
	loader.EXPECT().ListChats(gomock.Any()).Return(nil, nil)
	loader.EXPECT().ListMessages(gomock.Any(), domain.ChatID(7), gomock.Any()).
		Return([]domain.Message{{ID: 1, ChatID: 7, CreatedAt: base}}, nil)
	loader.EXPECT().ListParticipants(gomock.Any(), domain.ChatID(7)).Return(nil, nil)
	store := startStore(t, loader, nil, StoreOptions{})
	session, _ := newSession(store, transport)

	// When signing in and selecting chat 7
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SelectChat(context.Background(), 7))

	// Then the session is degraded but REST data is there
	req.Equal(contract.StateDegraded, session.State())
	req.Len(store.Snapshot().Thread.Messages, 1)
}

func TestSession_SignIn_ConnectFailureReleasesHandlers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)

	expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(context.Canceled)
	gomock.InOrder(
		transport.EXPECT().Unsubscribe(gomock.Any(), gomock.Any()).Times(len(event.Inbound)+1),
		transport.EXPECT().Disconnect(),
	)
	store := startStore(t, nil, nil, StoreOptions{})
	session, tokens := newSession(store, transport)

	err := session.SignIn(context.Background(), credentials)

	req.ErrorIs(err, context.Canceled)
	req.Empty(tokens.Token())
	req.Equal(contract.StateDisconnected, session.State())
}

func TestSession_SignOut_UnsubscribesBeforeDisconnecting(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)

	expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)
	transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(nil)
	loader.EXPECT().ListChats(gomock.Any()).Return([]domain.Chat{{ID: 7}}, nil)
	loader.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	loader.EXPECT().ListParticipants(gomock.Any(), gomock.Any()).Return(nil, nil)

	var unsubscribed []event.Name
	gomock.InOrder(
		transport.EXPECT().LeaveRoom(domain.ChatID(7), gomock.Any()).Return(nil),
		transport.EXPECT().Unsubscribe(gomock.Any(), gomock.Any()).
			Do(func(name event.Name, id contract.SubscriptionID) {
				unsubscribed = append(unsubscribed, name)
			}).
			Times(len(event.Inbound)+1),
		transport.EXPECT().Disconnect(),
	)
	store := startStore(t, loader, nil, StoreOptions{})
	session, tokens := newSession(store, transport)
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SelectChat(context.Background(), 7))

	// When signing out, twice
	req.NoError(session.SignOut(context.Background()))
	req.NoError(session.SignOut(context.Background()))

	// Then every handler is gone, and so is the state
	req.ElementsMatch(append([]event.Name{event.ReconnectName}, event.Inbound...), unsubscribed)
	req.Empty(tokens.Token())
	snapshot := store.Snapshot()
	req.Empty(snapshot.Chats)
	req.Zero(snapshot.Active)
	req.Zero(session.Active())
}

func TestSession_Reconnect_ResyncsActiveChat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)
	var listed atomic.Int32

	// Given chat 7 selected, with a message missed during a disconnection
	handlers := expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)
	transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(nil).Times(2)
	loader.EXPECT().ListChats(gomock.Any()).
		DoAndReturn(func(context.Context) ([]domain.Chat, error) {
			listed.Add(1)
			return []domain.Chat{{ID: 7}}, nil
		}).
		Times(2)
	gomock.InOrder(
		loader.EXPECT().ListMessages(gomock.Any(), domain.ChatID(7), gomock.Any()).
			Return([]domain.Message{{ID: 1, ChatID: 7, CreatedAt: base}}, nil),
		loader.EXPECT().ListMessages(gomock.Any(), domain.ChatID(7), gomock.Any()).
			Return([]domain.Message{{ID: 1, ChatID: 7, CreatedAt: base}, {ID: 2, ChatID: 7, CreatedAt: base.Add(time.Second)}}, nil),
	)
	loader.EXPECT().ListParticipants(gomock.Any(), domain.ChatID(7)).Return(nil, nil).Times(2)
	store := startStore(t, loader, nil, StoreOptions{})
	session, _ := newSession(store, transport)
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SelectChat(context.Background(), 7))

	// When the transport reports a new connection
	handlers.get(event.ReconnectName)(nil)

	// Then the room is joined again and the chat reloaded
	req.Eventually(func() bool { return listed.Load() == 2 }, time.Second, 5*time.Millisecond)
	req.Len(store.Snapshot().Thread.Messages, 2)

	transport.EXPECT().LeaveRoom(gomock.Any(), gomock.Any()).Return(nil)
	transport.EXPECT().Unsubscribe(gomock.Any(), gomock.Any()).AnyTimes()
	transport.EXPECT().Disconnect()
	req.NoError(session.SignOut(context.Background()))
}

// chatPage answers every chat with one message whose id is the chat id times 100.
func chatPage(_ context.Context, chatID domain.ChatID, _ domain.Page) ([]domain.Message, error) {
	return []domain.Message{message(chatID, domain.MessageID(chatID)*100, base)}, nil
}

func TestSession_Reconnect_YieldsToChatSwitch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)
	var listed atomic.Int32
	rejoining := make(chan struct{})
	release := make(chan struct{})

	// Given chat 7 selected, and a resync whose room join is held
	handlers := expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)
	loader.EXPECT().ListChats(gomock.Any()).
		DoAndReturn(func(context.Context) ([]domain.Chat, error) {
			listed.Add(1)
			return []domain.Chat{{ID: 7}, {ID: 9}}, nil
		}).
		Times(2)
	loader.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(chatPage).AnyTimes()
	loader.EXPECT().ListParticipants(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	// Then chat 7 is only left once its rejoin is over, and chat 9 is joined last
	gomock.InOrder(
		transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(nil),
		transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).
			DoAndReturn(func(domain.ChatID, contract.AckFunc) error {
				close(rejoining)
				<-release
				return nil
			}),
		transport.EXPECT().LeaveRoom(domain.ChatID(7), gomock.Any()).Return(nil),
		transport.EXPECT().JoinRoom(domain.ChatID(9), gomock.Any()).Return(nil),
	)
	store := startStore(t, loader, nil, StoreOptions{})
	session, _ := newSession(store, transport)
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SelectChat(context.Background(), 7))

	// When the transport reconnects and the user switches to chat 9 during the resync
	handlers.get(event.ReconnectName)(nil)
	<-rejoining
	selected := make(chan error, 1)
	go func() { selected <- session.SelectChat(context.Background(), 9) }()
	close(release)

	req.NoError(<-selected)
	req.Eventually(func() bool { return listed.Load() == 2 }, time.Second, 5*time.Millisecond)

	// Then the session and the store both show chat 9
	snapshot := store.Snapshot()
	req.Equal(domain.ChatID(9), session.Active())
	req.Equal(domain.ChatID(9), snapshot.Active)
	req.Equal(domain.ChatID(9), snapshot.Thread.Chat)
	req.Equal([]domain.MessageID{900}, messageIDs(snapshot.Thread.Messages))

	transport.EXPECT().LeaveRoom(domain.ChatID(9), gomock.Any()).Return(nil)
	transport.EXPECT().Unsubscribe(gomock.Any(), gomock.Any()).AnyTimes()
	transport.EXPECT().Disconnect()
	req.NoError(session.SignOut(context.Background()))
}

func TestSession_Reconnect_InFlightReloadIsDiscarded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transport := mocks.NewMockTransport(ctrl)
	loader := mocks.NewMockSnapshotLoader(ctrl)
	var listed, fetches7 atomic.Int32
	reloading := make(chan struct{})
	release := make(chan struct{})

	// Given chat 7 selected, and a resync whose reload of chat 7 is held
	handlers := expectSubscriptions(transport)
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)
	transport.EXPECT().JoinRoom(domain.ChatID(7), gomock.Any()).Return(nil).Times(2)
	transport.EXPECT().LeaveRoom(domain.ChatID(7), gomock.Any()).Return(nil)
	transport.EXPECT().JoinRoom(domain.ChatID(9), gomock.Any()).Return(nil)
	loader.EXPECT().ListChats(gomock.Any()).
		DoAndReturn(func(context.Context) ([]domain.Chat, error) {
			listed.Add(1)
			return []domain.Chat{{ID: 7}, {ID: 9}}, nil
		}).
		Times(2)
	loader.EXPECT().ListMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, chatID domain.ChatID, page domain.Page) ([]domain.Message, error) {
			if chatID == 7 && fetches7.Add(1) == 2 {
				close(reloading)
				<-release
			}
			return chatPage(ctx, chatID, page)
		}).
		AnyTimes()
	loader.EXPECT().ListParticipants(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	store := startStore(t, loader, nil, StoreOptions{})
	session, _ := newSession(store, transport)
	req.NoError(session.SignIn(context.Background(), credentials))
	req.NoError(session.SelectChat(context.Background(), 7))

	// When the user switches to chat 9 while chat 7 is being reloaded
	handlers.get(event.ReconnectName)(nil)
	<-reloading
	req.NoError(session.SelectChat(context.Background(), 9))
	close(release)
	req.Eventually(func() bool { return listed.Load() == 2 }, time.Second, 5*time.Millisecond)

	// Then the late snapshot of chat 7 does not overwrite chat 9
	snapshot := store.Snapshot()
	req.Equal(domain.ChatID(9), snapshot.Active)
	req.Equal(projection.PhaseReady, snapshot.Phase)
	req.Equal([]domain.MessageID{900}, messageIDs(snapshot.Thread.Messages))

	transport.EXPECT().LeaveRoom(domain.ChatID(9), gomock.Any()).Return(nil)
	transport.EXPECT().Unsubscribe(gomock.Any(), gomock.Any()).AnyTimes()
	transport.EXPECT().Disconnect()
	req.NoError(session.SignOut(context.Background()))
}
