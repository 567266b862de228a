// Package chat defines the intents a user can issue against a chat.
// Commands only ever produce requests; they never touch the reconciled state.
package chat

import (
	"crm-chat/domain"
)

type Command interface {
	ChatID() domain.ChatID
}

type SendMessageCommand struct {
	Chat       domain.ChatID `validate:"required"`
	Body       string        `validate:"required_without=Attachment,body"`
	Attachment *domain.Attachment
}

// NewSendMessageCommand trims the body, the form in which it is validated and sent.
func NewSendMessageCommand(chatID domain.ChatID, body string, attachment *domain.Attachment) SendMessageCommand {
	return SendMessageCommand{
		Chat:       chatID,
		Body:       body,
		Attachment: attachment,
	}.Normalized()
}

// Normalized returns the command with its body trimmed.
func (c SendMessageCommand) Normalized() SendMessageCommand {
	c.Body = domain.NormalizeBody(c.Body)
	return c
}

func (c SendMessageCommand) ChatID() domain.ChatID { return c.Chat }

type AddParticipantsCommand struct {
	Chat       domain.ChatID     `validate:"required"`
	MemberIDs  []domain.UserID   `validate:"required,min=1,dive,required"`
	MemberType domain.MemberType `validate:"omitempty,oneof=owner participant"`
}

func (c AddParticipantsCommand) ChatID() domain.ChatID { return c.Chat }

type RemoveParticipantCommand struct {
	Chat          domain.ChatID        `validate:"required"`
	ParticipantID domain.ParticipantID `validate:"required"`
}

func (c RemoveParticipantCommand) ChatID() domain.ChatID { return c.Chat }

type TypingCommand struct {
	Chat     domain.ChatID `validate:"required"`
	IsTyping bool
}

func (c TypingCommand) ChatID() domain.ChatID { return c.Chat }

type MarkAsReadCommand struct {
	Chat       domain.ChatID      `validate:"required"`
	MessageIDs []domain.MessageID `validate:"dive,required"`
}

func (c MarkAsReadCommand) ChatID() domain.ChatID { return c.Chat }

type TransferChatCommand struct {
	Chat     domain.ChatID `validate:"required"`
	ToUserID domain.UserID `validate:"required"`
}

func (c TransferChatCommand) ChatID() domain.ChatID { return c.Chat }

type CreateChatCommand struct {
	ProjectID *domain.ProjectID
	MemberIDs []domain.UserID `validate:"required,min=1,dive,required"`
}

// ChatID is zero: the chat does not exist yet.
func (c CreateChatCommand) ChatID() domain.ChatID { return 0 }
