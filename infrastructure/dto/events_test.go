package dto

import (
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/domain/event"
	"crm-chat/errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name event.Name
		raw  string
		want event.DomainEvent
	}{
		{
			name: event.NewMessageName,
			raw:  `{"chatId":7,"message":{"id":2,"chatId":7,"senderId":3,"message":"hi","createdAt":"2026-03-02T10:00:00Z"}}`,
			want: event.NewMessage{Chat: 7, Message: domain.Message{ID: 2, ChatID: 7, SenderID: 3, Body: "hi", CreatedAt: at}},
		},
		{
			name: event.MessageUpdatedName,
			raw:  `{"message":{"id":2,"chatId":7,"message":"edited","attachmentUrl":"https://cdn/x.png","attachmentType":"image/png"}}`,
			want: event.MessageUpdated{Chat: 7, Message: domain.Message{
				ID: 2, ChatID: 7, Body: "edited",
				Attachment: &domain.Attachment{URL: "https://cdn/x.png", Type: "image/png"},
			}},
		},
		{
			name: event.MessageDeletedName,
			raw:  `{"chatId":7,"messageId":2}`,
			want: event.MessageDeleted{Chat: 7, MessageID: 2},
		},
		{
			name: event.UserTypingName,
			raw:  `{"chatId":7,"userId":5,"isTyping":true}`,
			want: event.UserTyping{Chat: 7, UserID: 5, IsTyping: true},
		},
		{
			name: event.UserJoinedName,
			raw:  `{"chatId":7,"userId":5}`,
			want: event.UserJoined{Chat: 7, UserID: 5},
		},
		{
			name: event.UserLeftName,
			raw:  `{"chatId":7,"userId":5}`,
			want: event.UserLeft{Chat: 7, UserID: 5},
		},
		{
			name: event.UserOnlineName,
			raw:  `{"chatId":7,"userId":5,"timestamp":"2026-03-02T10:00:00Z"}`,
			want: event.UserOnline{Chat: 7, UserID: 5, At: at},
		},
		{
			name: event.ParticipantAddedName,
			raw:  `{"chatId":7,"participant":{"id":4,"chatId":7,"memberId":40,"memberType":"owner","member":{"name":"Ada","email":"ada@crm.test"}},"participantCount":3}`,
			want: event.ParticipantAdded{
				Chat: 7,
				Participant: domain.Participant{
					ID: 4, ChatID: 7, MemberID: 40, MemberType: domain.MemberTypeOwner,
					Profile: domain.MemberProfile{Name: "Ada", Email: "ada@crm.test"},
				},
				ParticipantCount: lo.ToPtr(3),
			},
		},
		{
			name: event.ParticipantRemovedName,
			raw:  `{"chatId":7,"participantId":4}`,
			want: event.ParticipantRemoved{Chat: 7, ParticipantID: 4},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			got, err := DecodeEvent(tt.name, []byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	tests := []struct {
		label string
		name  event.Name
		raw   string
		want  error
	}{
		{"not json", event.NewMessageName, `{"chatId":`, errors.ErrMalformedEvent},
		{"missing message", event.NewMessageName, `{"chatId":7}`, errors.ErrMalformedEvent},
		{"missing chat", event.UserTypingName, `{"userId":5,"isTyping":true}`, errors.ErrMalformedEvent},
		{"missing participant", event.ParticipantAddedName, `{"chatId":7}`, errors.ErrMalformedEvent},
		{"wrong type", event.MessageDeletedName, `{"chatId":"seven"}`, errors.ErrMalformedEvent},
		{"unknown", event.Name("leadCreated"), `{}`, errors.ErrUnknownEvent},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			_, err := DecodeEvent(tt.name, []byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToChat_MapsNestedValues(t *testing.T) {
	req := require.New(t)
	raw := `{"id":7,"projectId":11,"participantCount":-1,"transfer":{"fromUserId":1,"toUserId":2},"latestMessage":{"id":9,"message":"last"}}`

	var c Chat
	req.NoError(json.Unmarshal([]byte(raw), &c))
	got := ToChat(c)

	req.Equal(domain.ChatID(7), got.ID)
	req.Equal(domain.ProjectID(11), *got.ProjectID)
	req.Zero(got.ParticipantCount)
	req.Equal(domain.UserID(2), got.Transfer.ToUserID)
	req.Equal(domain.ChatID(7), got.LatestMessage.ChatID)
	req.Equal("last", got.LatestMessage.Body)
}

func TestOutboundPayloads(t *testing.T) {
	req := require.New(t)
	attachment := &domain.Attachment{URL: "https://cdn/a.pdf", Type: "application/pdf", Name: "a.pdf", Size: 12}

	body, err := json.Marshal(NewSendMessagePayload(chat.NewSendMessageCommand(7, "  hello ", attachment)))
	req.NoError(err)
	req.JSONEq(`{"chatId":7,"message":"hello","attachmentUrl":"https://cdn/a.pdf","attachmentType":"application/pdf","attachmentName":"a.pdf","attachmentSize":12}`, string(body))

	body, err = json.Marshal(NewTypingPayload(chat.TypingCommand{Chat: 7, IsTyping: false}))
	req.NoError(err)
	req.JSONEq(`{"chatId":7,"isTyping":false}`, string(body))

	body, err = json.Marshal(NewMarkAsReadPayload(chat.MarkAsReadCommand{Chat: 7, MessageIDs: []domain.MessageID{1, 2}}))
	req.NoError(err)
	req.JSONEq(`{"chatId":7,"messageIds":[1,2]}`, string(body))

	body, err = json.Marshal(NewCreateChatRequest(chat.CreateChatCommand{ProjectID: lo.ToPtr(domain.ProjectID(3)), MemberIDs: []domain.UserID{4}}))
	req.NoError(err)
	req.JSONEq(`{"projectId":3,"memberIds":[4]}`, string(body))
}
