package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type Message struct {
	ID            int
	ChatID        int64
	FromID        int64
	FromUsername  string
	FromFirstName string
	Text          string
	IsGroup       bool

	// ReplyTo is set when the message answers an earlier one.
	ReplyTo *ReplyRef
}

// DisplayName returns the sender's username, falling back to the first name.
func (m *Message) DisplayName() string {
	if m == nil {
		return "Unknown"
	}
	if m.FromUsername != "" {
		return m.FromUsername
	}
	if m.FromFirstName != "" {
		return m.FromFirstName
	}
	return "Unknown"
}

// ReplyRef describes the message a reply points at.
type ReplyRef struct {
	MessageID int
	FromID    int64
	FromBot   bool
	Text      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo quotes the given message id when non-zero.
	ReplyTo int
}

// Sender is the outbound half of an Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
