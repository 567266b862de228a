package services

import (
	"context"
	"crm-chat/auth"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/errors"
	"crm-chat/projection"
	"crm-chat/runtime"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// IChatService is what a presentation layer needs: reads of the reconciled
// state and intents, always scoped to the selected chat.
type IChatService interface {
	SignIn(ctx context.Context, token string) (auth.Credentials, error)
	SignOut(ctx context.Context) error
	SelectChat(ctx context.Context, chatID domain.ChatID) error
	DeselectChat(ctx context.Context) error
	ReloadChats(ctx context.Context) error
	State() projection.State
	Updates() <-chan struct{}
	Connection() contract.ConnState
	Send(ctx context.Context, body string, attachment *domain.Attachment) error
	Typing(isTyping bool) error
	MarkAsRead(messageIDs ...domain.MessageID) error
	AddParticipants(ctx context.Context, memberType domain.MemberType, memberIDs ...domain.UserID) error
	RemoveParticipant(ctx context.Context, participantID domain.ParticipantID) error
	Transfer(ctx context.Context, toUserID domain.UserID) error
	CreateChat(ctx context.Context, projectID *domain.ProjectID, memberIDs ...domain.UserID) (domain.Chat, error)
	AvailableEmployees(ctx context.Context) ([]domain.Employee, error)
	AvailableProjects(ctx context.Context) ([]domain.Project, error)
	History(chatID domain.ChatID, limit int) ([]domain.Message, error)
}

type ChatService struct {
	session   *runtime.Session
	store     *runtime.Store
	directory contract.Directory
	history   contract.IHistoryRepository
}

// NewChatService wires the facade. history may be nil when no archive is configured.
func NewChatService(session *runtime.Session, store *runtime.Store, directory contract.Directory, history contract.IHistoryRepository) *ChatService {
	return &ChatService{session: session, store: store, directory: directory, history: history}
}

// SignIn reads the token claims and opens the session.
// An empty token leaves chat unavailable without failing.
func (s *ChatService) SignIn(ctx context.Context, token string) (auth.Credentials, error) {
	if token == "" {
		return auth.Credentials{}, s.session.SignIn(ctx, auth.Credentials{})
	}
	creds, err := auth.ParseCredentials(token)
	if err != nil {
		return auth.Credentials{}, err
	}
	if creds.Expired(time.Now()) {
		return creds, fmt.Errorf("%w: expired at %s", errors.ErrInvalidToken, creds.ExpiresAt.Format(time.RFC3339))
	}
	return creds, s.session.SignIn(ctx, creds)
}

func (s *ChatService) SignOut(ctx context.Context) error {
	return s.session.SignOut(ctx)
}

func (s *ChatService) SelectChat(ctx context.Context, chatID domain.ChatID) error {
	return s.session.SelectChat(ctx, chatID)
}

func (s *ChatService) DeselectChat(ctx context.Context) error {
	return s.session.DeselectChat(ctx)
}

// ReloadChats is the user-triggered retry of the chat list.
func (s *ChatService) ReloadChats(ctx context.Context) error {
	return s.store.LoadChats(ctx)
}

func (s *ChatService) State() projection.State {
	return s.store.Snapshot()
}

func (s *ChatService) Updates() <-chan struct{} {
	return s.store.Updates()
}

func (s *ChatService) Connection() contract.ConnState {
	return s.session.State()
}

func (s *ChatService) Send(ctx context.Context, body string, attachment *domain.Attachment) error {
	return s.store.SendMessage(ctx, chat.NewSendMessageCommand(s.session.Active(), body, attachment))
}

func (s *ChatService) Typing(isTyping bool) error {
	return s.store.Typing(chat.TypingCommand{Chat: s.session.Active(), IsTyping: isTyping})
}

// MarkAsRead without ids marks every message of the loaded thread.
func (s *ChatService) MarkAsRead(messageIDs ...domain.MessageID) error {
	active := s.session.Active()
	if len(messageIDs) == 0 {
		thread := s.store.Snapshot().Thread
		if thread.Chat == active {
			messageIDs = lo.Map(thread.Messages, func(m domain.Message, _ int) domain.MessageID { return m.ID })
		}
	}
	return s.store.MarkAsRead(chat.MarkAsReadCommand{Chat: active, MessageIDs: messageIDs})
}

func (s *ChatService) AddParticipants(ctx context.Context, memberType domain.MemberType, memberIDs ...domain.UserID) error {
	return s.store.AddParticipants(ctx, chat.AddParticipantsCommand{
		Chat:       s.session.Active(),
		MemberIDs:  lo.Uniq(memberIDs),
		MemberType: memberType,
	})
}

func (s *ChatService) RemoveParticipant(ctx context.Context, participantID domain.ParticipantID) error {
	return s.store.RemoveParticipant(ctx, chat.RemoveParticipantCommand{Chat: s.session.Active(), ParticipantID: participantID})
}

func (s *ChatService) Transfer(ctx context.Context, toUserID domain.UserID) error {
	return s.store.TransferChat(ctx, chat.TransferChatCommand{Chat: s.session.Active(), ToUserID: toUserID})
}

// CreateChat creates the chat then reloads the list, which is where it shows up.
func (s *ChatService) CreateChat(ctx context.Context, projectID *domain.ProjectID, memberIDs ...domain.UserID) (domain.Chat, error) {
	cmd := chat.CreateChatCommand{ProjectID: projectID, MemberIDs: lo.Uniq(memberIDs)}
	if err := chat.Validate(cmd); err != nil {
		return domain.Chat{}, err
	}
	created, err := s.directory.CreateChat(ctx, cmd)
	if err != nil {
		return domain.Chat{}, err
	}
	return created, s.store.LoadChats(ctx)
}

// AvailableEmployees lists who can still be added to the selected chat.
// Users lacking the permission get an empty list.
func (s *ChatService) AvailableEmployees(ctx context.Context) ([]domain.Employee, error) {
	active := s.session.Active()
	if active == 0 {
		return nil, errors.ErrNoChatSelected
	}
	employees, err := s.directory.AvailableEmployees(ctx, active)
	if err != nil {
		return nil, err
	}
	thread := s.store.Snapshot().Thread
	if thread.Chat != active {
		return employees, nil
	}
	members := lo.Map(thread.Participants, func(p domain.Participant, _ int) domain.UserID { return p.MemberID })
	return lo.Reject(employees, func(e domain.Employee, _ int) bool { return lo.Contains(members, e.ID) }), nil
}

func (s *ChatService) AvailableProjects(ctx context.Context) ([]domain.Project, error) {
	return s.directory.AvailableProjects(ctx)
}

// History reads the local archive, oldest first. Empty when no archive is configured.
func (s *ChatService) History(chatID domain.ChatID, limit int) ([]domain.Message, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.GetMessages(chatID, limit)
}
