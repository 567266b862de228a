package main

import (
	"bufio"
	"context"
	"crm-chat/domain"
	"crm-chat/projection"
	"crm-chat/services"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

const (
	defaultHistoryLimit = 20
	helpText            = `Commands:
  /chats                      list chats          /reload             reload the chat list
  /open <chat>                open a chat         /close              close the chat
  /typing [on|off]            typing indicator    /read               mark the thread as read
  /people                     list participants   /employees          who can be added
  /add <user>...              add participants    /remove <participant>
  /transfer <user>            hand the chat over  /new <user>...      create a chat
  /attach <file> <url> [text] send an uploaded file
  /history [n]                archived messages   /quit
Anything else is sent to the open chat.`
)

type command struct {
	name string
	args []string
}

// parseCommand splits "/name args..." lines. Other lines are messages.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		return command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

func parseIDs[T ~int64](args []string) ([]T, error) {
	ids := make([]T, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not an id", arg)
		}
		ids = append(ids, T(id))
	}
	return ids, nil
}

func parseID[T ~int64](args []string) (T, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one id")
	}
	ids, err := parseIDs[T](args)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// Console is a line-oriented front-end over the chat service.
type Console struct {
	in      io.Reader
	out     io.Writer
	service services.IChatService
	self    domain.UserID

	mu      sync.Mutex
	chat    domain.ChatID
	printed map[domain.MessageID]bool
	typing  string
	lastErr string
}

func NewConsole(in io.Reader, out io.Writer, service services.IChatService, self domain.UserID) *Console {
	return &Console{in: in, out: out, service: service, self: self, printed: make(map[domain.MessageID]bool)}
}

func (c *Console) Run(ctx context.Context) error {
	c.printf("%s\n", helpText)
	renderChats(c.out, c.service.State().Chats)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.service.Updates():
			c.refresh()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle runs one input line and reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	cmd, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) != "" {
			c.report(c.service.Send(ctx, strings.TrimPrefix(line, "/"), nil))
		}
		return false
	}

	switch cmd.name {
	case "quit", "exit":
		return true
	case "help":
		c.printf("%s\n", helpText)
	case "chats":
		renderChats(c.out, c.service.State().Chats)
	case "reload":
		if c.report(c.service.ReloadChats(ctx)) {
			renderChats(c.out, c.service.State().Chats)
		}
	case "open":
		id, err := parseID[domain.ChatID](cmd.args)
		if c.report(err) {
			c.Open(ctx, id)
		}
	case "close":
		c.mu.Lock()
		c.chat = 0
		c.mu.Unlock()
		c.report(c.service.DeselectChat(ctx))
	case "typing":
		c.report(c.service.Typing(len(cmd.args) == 0 || cmd.args[0] != "off"))
	case "read":
		c.report(c.service.MarkAsRead())
	case "people":
		renderParticipants(c.out, c.service.State().Thread.Participants)
	case "employees":
		employees, err := c.service.AvailableEmployees(ctx)
		if c.report(err) {
			renderEmployees(c.out, employees)
		}
	case "add":
		ids, err := parseIDs[domain.UserID](cmd.args)
		if c.report(err) {
			c.report(c.service.AddParticipants(ctx, domain.MemberTypeParticipant, ids...))
		}
	case "remove":
		id, err := parseID[domain.ParticipantID](cmd.args)
		if c.report(err) {
			c.report(c.service.RemoveParticipant(ctx, id))
		}
	case "transfer":
		id, err := parseID[domain.UserID](cmd.args)
		if c.report(err) {
			c.report(c.service.Transfer(ctx, id))
		}
	case "new":
		ids, err := parseIDs[domain.UserID](cmd.args)
		if !c.report(err) {
			break
		}
		created, err := c.service.CreateChat(ctx, nil, ids...)
		if c.report(err) {
			c.printf("Chat %d created\n", created.ID)
		}
	case "attach":
		c.attach(ctx, cmd.args)
	case "history":
		c.history(cmd.args)
	default:
		c.printf("%s\n", color.FgRed.Render("Unknown command /"+cmd.name+", try /help"))
	}
	return false
}

// Open selects a chat and prints its thread.
func (c *Console) Open(ctx context.Context, chatID domain.ChatID) {
	c.mu.Lock()
	c.chat = chatID
	c.printed = make(map[domain.MessageID]bool)
	c.typing, c.lastErr = "", ""
	c.mu.Unlock()

	c.printf("%s\n", color.New(color.FgWhite, color.OpBold).Render(fmt.Sprintf("== chat %d ==", chatID)))
	if c.report(c.service.SelectChat(ctx, chatID)) {
		c.refresh()
	}
}

func (c *Console) attach(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.report(fmt.Errorf("usage: /attach <file> <url> [text]"))
		return
	}
	data, err := os.ReadFile(args[0])
	if !c.report(err) {
		return
	}
	attachment := domain.NewAttachment(filepath.Base(args[0]), args[1], data)
	c.report(c.service.Send(ctx, strings.Join(args[2:], " "), &attachment))
}

func (c *Console) history(args []string) {
	limit := defaultHistoryLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			c.report(fmt.Errorf("%q is not a count", args[0]))
			return
		}
		limit = n
	}
	c.mu.Lock()
	chatID := c.chat
	c.mu.Unlock()
	if chatID == 0 {
		c.report(fmt.Errorf("open a chat first"))
		return
	}
	messages, err := c.service.History(chatID, limit)
	if !c.report(err) {
		return
	}
	if len(messages) == 0 {
		c.printf("No archived messages\n")
	}
	for _, m := range messages {
		c.printf("%s\n", formatMessage(m, c.self))
	}
}

// refresh prints what changed in the open chat since the last call.
func (c *Console) refresh() {
	state := c.service.State()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chat == 0 || state.Active != c.chat {
		return
	}

	if state.Phase == projection.PhaseFailed && state.Err != nil && state.Err.Error() != c.lastErr {
		c.lastErr = state.Err.Error()
		fmt.Fprintf(c.out, "%s\n", color.FgRed.Render("Loading failed: "+c.lastErr+" (/open to retry)"))
	}
	if state.Thread.Chat == c.chat {
		for _, m := range state.Thread.Messages {
			if c.printed[m.ID] {
				continue
			}
			c.printed[m.ID] = true
			fmt.Fprintf(c.out, "%s\n", formatMessage(m, c.self))
		}
	}
	typing := formatTyping(state.Typing[c.chat])
	if typing != c.typing {
		c.typing = typing
		if typing != "" {
			fmt.Fprintf(c.out, "%s\n", color.FgGray.Render(typing))
		}
	}
}

// report prints err and reports whether there was none.
func (c *Console) report(err error) bool {
	if err == nil {
		return true
	}
	c.printf("%s\n", color.FgRed.Render("Error: "+err.Error()))
	return false
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func formatMessage(m domain.Message, self domain.UserID) string {
	sender := color.FgCyan.Render(fmt.Sprintf("user %d", m.SenderID))
	if m.SenderID == self {
		sender = color.FgGreen.Render("me")
	}
	line := fmt.Sprintf("%s %s: %s", color.FgGray.Render(m.CreatedAt.Local().Format("15:04")), sender, m.Body)
	if m.Attachment != nil {
		line += color.FgYellow.Render(fmt.Sprintf(" [%s: %s]", m.Attachment.Kind(), m.Attachment.Name))
	}
	return line
}

func formatTyping(users []domain.UserID) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("user %d is typing...", users[0])
	default:
		names := lo.Map(users, func(id domain.UserID, _ int) string { return strconv.FormatInt(int64(id), 10) })
		return fmt.Sprintf("users %s are typing...", strings.Join(names, ", "))
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderChats(w io.Writer, chats []domain.Chat) {
	table := newTable(w, "Chat", "Members", "Latest", "Updated")
	for _, c := range chats {
		latest, updated := "-", "-"
		if c.LatestMessage != nil {
			latest = preview(c.LatestMessage.Body, 40)
		}
		if !c.UpdatedAt.IsZero() {
			updated = c.UpdatedAt.Local().Format(time.DateTime)
		}
		table.Append([]string{strconv.FormatInt(int64(c.ID), 10), strconv.Itoa(c.ParticipantCount), latest, updated})
	}
	table.Render()
}

func renderParticipants(w io.Writer, participants []domain.Participant) {
	table := newTable(w, "Participant", "User", "Name", "Role")
	for _, p := range participants {
		table.Append([]string{
			strconv.FormatInt(int64(p.ID), 10),
			strconv.FormatInt(int64(p.MemberID), 10),
			p.Profile.Name,
			string(p.MemberType),
		})
	}
	table.Render()
}

func renderEmployees(w io.Writer, employees []domain.Employee) {
	table := newTable(w, "User", "Name", "Department", "Role")
	for _, e := range employees {
		table.Append([]string{strconv.FormatInt(int64(e.ID), 10), e.Name, e.Department, e.Role})
	}
	table.Render()
}

func preview(body string, max int) string {
	runes := []rune(strings.ReplaceAll(body, "\n", " "))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max-1]) + "…"
}
