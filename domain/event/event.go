// Package event defines the events pushed by the server over the live channel.
// Events are the only way the reconciled chat state changes: intents produce
// requests, the server re-broadcasts their effect, and the event is applied.
package event

import (
	"crm-chat/domain"
	"time"
)

type Name string

// Inbound events.
const (
	NewMessageName         Name = "newMessage"
	MessageUpdatedName     Name = "messageUpdated"
	MessageDeletedName     Name = "messageDeleted"
	UserTypingName         Name = "userTyping"
	UserJoinedName         Name = "userJoined"
	UserLeftName           Name = "userLeft"
	UserOnlineName         Name = "userOnline"
	ParticipantAddedName   Name = "participantAdded"
	ParticipantRemovedName Name = "participantRemoved"
)

// Transport-level events, never produced by the chat server itself.
const (
	AuthenticateName Name = "authenticate"
	AckName          Name = "ack"
	ReconnectName    Name = "reconnect"
	SnapshotName     Name = "snapshotLoaded"
)

// Outbound emit kinds.
const (
	JoinChatKind    Name = "joinChat"
	LeaveChatKind   Name = "leaveChat"
	SendMessageKind Name = "sendMessage" // only when sends go over the socket, REST otherwise
	TypingKind      Name = "typing"
	MarkAsReadKind  Name = "markAsRead"
)

// Inbound lists every event name a session subscribes to.
var Inbound = []Name{
	NewMessageName,
	MessageUpdatedName,
	MessageDeletedName,
	UserTypingName,
	UserJoinedName,
	UserLeftName,
	UserOnlineName,
	ParticipantAddedName,
	ParticipantRemovedName,
}

type DomainEvent interface {
	ChatID() domain.ChatID
	Name() Name
}

type NewMessage struct {
	Chat    domain.ChatID
	Message domain.Message
}

func (e NewMessage) ChatID() domain.ChatID { return e.Chat }
func (e NewMessage) Name() Name            { return NewMessageName }

type MessageUpdated struct {
	Chat    domain.ChatID
	Message domain.Message
}

func (e MessageUpdated) ChatID() domain.ChatID { return e.Chat }
func (e MessageUpdated) Name() Name            { return MessageUpdatedName }

type MessageDeleted struct {
	Chat      domain.ChatID
	MessageID domain.MessageID
}

func (e MessageDeleted) ChatID() domain.ChatID { return e.Chat }
func (e MessageDeleted) Name() Name            { return MessageDeletedName }

type UserTyping struct {
	Chat     domain.ChatID
	UserID   domain.UserID
	IsTyping bool
}

func (e UserTyping) ChatID() domain.ChatID { return e.Chat }
func (e UserTyping) Name() Name            { return UserTypingName }

type UserJoined struct {
	Chat   domain.ChatID
	UserID domain.UserID
}

func (e UserJoined) ChatID() domain.ChatID { return e.Chat }
func (e UserJoined) Name() Name            { return UserJoinedName }

type UserLeft struct {
	Chat   domain.ChatID
	UserID domain.UserID
}

func (e UserLeft) ChatID() domain.ChatID { return e.Chat }
func (e UserLeft) Name() Name            { return UserLeftName }

type UserOnline struct {
	Chat   domain.ChatID
	UserID domain.UserID
	At     time.Time
}

func (e UserOnline) ChatID() domain.ChatID { return e.Chat }
func (e UserOnline) Name() Name            { return UserOnlineName }

// ParticipantAdded carries the server's participant count when it knows it.
// A present count always wins over local arithmetic.
type ParticipantAdded struct {
	Chat             domain.ChatID
	Participant      domain.Participant
	ParticipantCount *int
}

func (e ParticipantAdded) ChatID() domain.ChatID { return e.Chat }
func (e ParticipantAdded) Name() Name            { return ParticipantAddedName }

type ParticipantRemoved struct {
	Chat             domain.ChatID
	ParticipantID    domain.ParticipantID
	ParticipantCount *int
}

func (e ParticipantRemoved) ChatID() domain.ChatID { return e.Chat }
func (e ParticipantRemoved) Name() Name            { return ParticipantRemovedName }

// SnapshotLoaded is emitted locally when a REST snapshot becomes canonical for a chat.
type SnapshotLoaded struct {
	Chat         domain.ChatID
	Messages     []domain.Message
	Participants []domain.Participant
}

func (e SnapshotLoaded) ChatID() domain.ChatID { return e.Chat }
func (e SnapshotLoaded) Name() Name            { return SnapshotName }
