// Package rest is the pull side of the chat: stateless snapshot reads, intents
// that trigger server effects, and directory lookups.
// Nothing returned here is applied to the reconciled state except snapshots.
package rest

import (
	"bytes"
	"context"
	"crm-chat/contract"
	"crm-chat/domain"
	"crm-chat/domain/chat"
	"crm-chat/errors"
	"crm-chat/infrastructure/dto"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	_ contract.SnapshotLoader = (*Client)(nil)
	_ contract.CommandGateway = (*Client)(nil)
	_ contract.Directory      = (*Client)(nil)
)

// TokenProvider returns the bearer credential of the current session.
type TokenProvider interface {
	Token() string
}

// HTTPError keeps the status of a failed call; it unwraps to one of the request sentinels.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
	err    error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.err }

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenProvider
	log     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration, tokens TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

func (c *Client) ListChats(ctx context.Context) ([]domain.Chat, error) {
	var chats []dto.Chat
	if err := c.do(ctx, http.MethodGet, "/chats", nil, nil, &chats); err != nil {
		return nil, err
	}
	return dto.ToChats(chats), nil
}

func (c *Client) GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error) {
	var found dto.Chat
	if err := c.do(ctx, http.MethodGet, chatPath(chatID), nil, nil, &found); err != nil {
		return domain.Chat{}, err
	}
	return dto.ToChat(found), nil
}

func (c *Client) CreateChat(ctx context.Context, cmd chat.CreateChatCommand) (domain.Chat, error) {
	var created dto.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", nil, dto.NewCreateChatRequest(cmd), &created); err != nil {
		return domain.Chat{}, err
	}
	return dto.ToChat(created), nil
}

func (c *Client) ListMessages(ctx context.Context, chatID domain.ChatID, page domain.Page) ([]domain.Message, error) {
	query := url.Values{}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Offset > 0 {
		query.Set("offset", strconv.Itoa(page.Offset))
	}
	var messages []dto.Message
	if err := c.do(ctx, http.MethodGet, chatPath(chatID)+"/messages", query, nil, &messages); err != nil {
		return nil, err
	}
	out := dto.ToMessages(messages)
	for i := range out {
		if out[i].ChatID == 0 {
			out[i].ChatID = chatID
		}
	}
	return out, nil
}

func (c *Client) PostMessage(ctx context.Context, cmd chat.SendMessageCommand) error {
	return c.do(ctx, http.MethodPost, chatPath(cmd.Chat)+"/messages", nil, dto.NewPostMessageRequest(cmd), nil)
}

func (c *Client) ListParticipants(ctx context.Context, chatID domain.ChatID) ([]domain.Participant, error) {
	var participants []dto.Participant
	if err := c.do(ctx, http.MethodGet, chatPath(chatID)+"/participants", nil, nil, &participants); err != nil {
		return nil, err
	}
	out := dto.ToParticipants(participants)
	for i := range out {
		if out[i].ChatID == 0 {
			out[i].ChatID = chatID
		}
	}
	return out, nil
}

func (c *Client) AddParticipants(ctx context.Context, cmd chat.AddParticipantsCommand) error {
	return c.do(ctx, http.MethodPost, chatPath(cmd.Chat)+"/participants", nil, dto.NewAddParticipantsRequest(cmd), nil)
}

func (c *Client) RemoveParticipant(ctx context.Context, cmd chat.RemoveParticipantCommand) error {
	path := fmt.Sprintf("%s/participants/%d", chatPath(cmd.Chat), cmd.ParticipantID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) TransferChat(ctx context.Context, cmd chat.TransferChatCommand) error {
	body := dto.TransferRequest{ToUserID: int64(cmd.ToUserID)}
	return c.do(ctx, http.MethodPost, chatPath(cmd.Chat)+"/transfer", nil, body, nil)
}

// AvailableEmployees lists who can still be added to chatID (zero for a new chat).
// A forbidden lookup yields an empty list.
func (c *Client) AvailableEmployees(ctx context.Context, chatID domain.ChatID) ([]domain.Employee, error) {
	query := url.Values{}
	if chatID != 0 {
		query.Set("chatId", strconv.FormatInt(int64(chatID), 10))
	}
	var employees []dto.Employee
	if err := c.do(ctx, http.MethodGet, "/chats/available-employees", query, nil, &employees); err != nil {
		if errors.Is(err, errors.ErrForbidden) {
			c.log.Debug("Employee directory not accessible, using an empty list")
			return []domain.Employee{}, nil
		}
		return nil, err
	}
	return dto.ToEmployees(employees), nil
}

func (c *Client) AvailableProjects(ctx context.Context) ([]domain.Project, error) {
	var projects []dto.Project
	if err := c.do(ctx, http.MethodGet, "/chats/available-projects", nil, nil, &projects); err != nil {
		if errors.Is(err, errors.ErrForbidden) {
			c.log.Debug("Project directory not accessible, using an empty list")
			return []domain.Project{}, nil
		}
		return nil, err
	}
	return dto.ToProjects(projects), nil
}

func chatPath(chatID domain.ChatID) string {
	return fmt.Sprintf("/chats/%d", chatID)
}

// do sends one request and decodes the envelope data into out (ignored when nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding %s %s: %v", errors.ErrRequestFailed, method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", errors.ErrRequestFailed, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s %s: %v", errors.ErrRequestFailed, method, path, err)
	}
	c.log.Debug("CRM request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return newHTTPError(method, path, resp.StatusCode, raw)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		// 204 on deletes
		return nil
	}
	var envelope dto.Envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %v", errors.ErrRequestFailed, method, path, err)
	}
	if !envelope.Success {
		return fmt.Errorf("%w: %s %s: %s", errors.ErrRequestRejected, method, path, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decoding %s %s data: %v", errors.ErrRequestFailed, method, path, err)
	}
	return nil
}

func newHTTPError(method, path string, status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Method: method, Path: path, Status: status, err: errors.ErrRequestFailed}
	var envelope dto.Envelope[json.RawMessage]
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		httpErr.Body = envelope.Message
	} else {
		httpErr.Body = strings.TrimSpace(string(body))
	}
	switch status {
	case http.StatusUnauthorized:
		httpErr.err = errors.ErrUnauthorized
	case http.StatusForbidden:
		httpErr.err = errors.ErrForbidden
	}
	return httpErr
}
