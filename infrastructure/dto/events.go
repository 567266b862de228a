package dto

import (
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// Inbound socket payloads.

type MessagePayload struct {
	ChatID  int64    `json:"chatId"`
	Message *Message `json:"message"`
}

type MessageDeletedPayload struct {
	ChatID    int64 `json:"chatId"`
	MessageID int64 `json:"messageId"`
}

type TypingPayload struct {
	ChatID   int64 `json:"chatId"`
	UserID   int64 `json:"userId,omitempty"`
	IsTyping bool  `json:"isTyping"`
}

type UserPayload struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
}

type UserOnlinePayload struct {
	ChatID    int64     `json:"chatId"`
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type ParticipantAddedPayload struct {
	ChatID           int64        `json:"chatId"`
	Participant      *Participant `json:"participant"`
	ParticipantCount *int         `json:"participantCount,omitempty"`
}

type ParticipantRemovedPayload struct {
	ChatID           int64 `json:"chatId"`
	ParticipantID    int64 `json:"participantId"`
	ParticipantCount *int  `json:"participantCount,omitempty"`
}

// Outbound socket payloads.

type RoomPayload struct {
	ChatID int64 `json:"chatId"`
}

type SendMessagePayload struct {
	ChatID int64 `json:"chatId"`
	PostMessageRequest
}

type MarkAsReadPayload struct {
	ChatID     int64   `json:"chatId"`
	MessageIDs []int64 `json:"messageIds,omitempty"`
}

// DecodeEvent turns a raw socket payload into a domain event.
// Unknown names return ErrUnknownEvent, unreadable or incomplete payloads ErrMalformedEvent.
func DecodeEvent(name event.Name, raw []byte) (event.DomainEvent, error) {
	switch name {
	case event.NewMessageName, event.MessageUpdatedName:
		var p MessagePayload
		if err := unmarshal(name, raw, &p); err != nil {
			return nil, err
		}
		if p.Message == nil {
			return nil, malformed(name, "missing message")
		}
		msg := ToMessage(*p.Message)
		chatID := lo.Ternary(p.ChatID != 0, domain.ChatID(p.ChatID), msg.ChatID)
		if chatID == 0 {
			return nil, malformed(name, "missing chatId")
		}
		if name == event.NewMessageName {
			return event.NewMessage{Chat: chatID, Message: msg}, nil
		}
		return event.MessageUpdated{Chat: chatID, Message: msg}, nil

	case event.MessageDeletedName:
		var p MessageDeletedPayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		return event.MessageDeleted{Chat: domain.ChatID(p.ChatID), MessageID: domain.MessageID(p.MessageID)}, nil

	case event.UserTypingName:
		var p TypingPayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		return event.UserTyping{Chat: domain.ChatID(p.ChatID), UserID: domain.UserID(p.UserID), IsTyping: p.IsTyping}, nil

	case event.UserJoinedName, event.UserLeftName:
		var p UserPayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		if name == event.UserJoinedName {
			return event.UserJoined{Chat: domain.ChatID(p.ChatID), UserID: domain.UserID(p.UserID)}, nil
		}
		return event.UserLeft{Chat: domain.ChatID(p.ChatID), UserID: domain.UserID(p.UserID)}, nil

	case event.UserOnlineName:
		var p UserOnlinePayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		return event.UserOnline{Chat: domain.ChatID(p.ChatID), UserID: domain.UserID(p.UserID), At: p.Timestamp}, nil

	case event.ParticipantAddedName:
		var p ParticipantAddedPayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		if p.Participant == nil {
			return nil, malformed(name, "missing participant")
		}
		return event.ParticipantAdded{
			Chat:             domain.ChatID(p.ChatID),
			Participant:      ToParticipant(*p.Participant),
			ParticipantCount: p.ParticipantCount,
		}, nil

	case event.ParticipantRemovedName:
		var p ParticipantRemovedPayload
		if err := unmarshalChat(name, raw, &p, func() int64 { return p.ChatID }); err != nil {
			return nil, err
		}
		return event.ParticipantRemoved{
			Chat:             domain.ChatID(p.ChatID),
			ParticipantID:    domain.ParticipantID(p.ParticipantID),
			ParticipantCount: p.ParticipantCount,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEvent, name)
	}
}

func unmarshal(name event.Name, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", errors.ErrMalformedEvent, name, err)
	}
	return nil
}

func unmarshalChat(name event.Name, raw []byte, v any, chatID func() int64) error {
	if err := unmarshal(name, raw, v); err != nil {
		return err
	}
	if chatID() == 0 {
		return malformed(name, "missing chatId")
	}
	return nil
}

func malformed(name event.Name, reason string) error {
	return fmt.Errorf("%w: %s: %s", errors.ErrMalformedEvent, name, reason)
}

func NewPostMessageRequest(cmd chat.SendMessageCommand) PostMessageRequest {
	req := PostMessageRequest{Message: cmd.Body}
	if a := cmd.Attachment; a != nil {
		req.AttachmentURL = a.URL
		req.AttachmentType = a.Type
		req.AttachmentName = a.Name
		req.AttachmentSize = a.Size
	}
	return req
}

func NewCreateChatRequest(cmd chat.CreateChatCommand) CreateChatRequest {
	req := CreateChatRequest{MemberIDs: int64s(cmd.MemberIDs)}
	if cmd.ProjectID != nil {
		req.ProjectID = lo.ToPtr(int64(*cmd.ProjectID))
	}
	return req
}

func NewAddParticipantsRequest(cmd chat.AddParticipantsCommand) AddParticipantsRequest {
	return AddParticipantsRequest{
		MemberIDs:  int64s(cmd.MemberIDs),
		MemberType: string(cmd.MemberType),
	}
}

func NewTypingPayload(cmd chat.TypingCommand) TypingPayload {
	return TypingPayload{ChatID: int64(cmd.Chat), IsTyping: cmd.IsTyping}
}

func NewMarkAsReadPayload(cmd chat.MarkAsReadCommand) MarkAsReadPayload {
	return MarkAsReadPayload{ChatID: int64(cmd.Chat), MessageIDs: int64s(cmd.MessageIDs)}
}

func NewSendMessagePayload(cmd chat.SendMessageCommand) SendMessagePayload {
	return SendMessagePayload{ChatID: int64(cmd.Chat), PostMessageRequest: NewPostMessageRequest(cmd)}
}
