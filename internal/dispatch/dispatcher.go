package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbot/internal/broadcast"
	"orderbot/internal/classifier"
	"orderbot/internal/eventbus"
	"orderbot/internal/sheets"
	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

type Classifier interface {
	Classify(ctx context.Context, message string, userID int64, username string) classifier.Result
}

type Store interface {
	Add(ctx context.Context, payload map[string]any) sheets.Response
	Update(ctx context.Context, payload map[string]any) sheets.Response
	Cancel(ctx context.Context, payload map[string]any) sheets.Response
	Search(ctx context.Context, payload map[string]any) sheets.Response
}

type Registry interface {
	AddUser(ctx context.Context, userID int64) error
}

type Broadcaster interface {
	Run(ctx context.Context, trigger string) broadcast.Report
}

type Config struct {
	// Owners may trigger /broadcast. Empty means nobody can.
	Owners []int64
}

type Deps struct {
	Classifier  Classifier
	Store       Store
	Registry    Registry
	Broadcaster Broadcaster
	Sender      kit.Sender
	Bus         eventbus.Bus
	Logger      logx.Logger
}

// Dispatcher runs the per-message pipeline. Handle is safe for concurrent use.
type Dispatcher struct {
	mu   sync.RWMutex
	cfg  Config
	deps Deps
	log  logx.Logger
	cmds map[string]command
	now  func() time.Time
}

func New(cfg Config, deps Deps) *Dispatcher {
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.Owners = append([]int64(nil), cfg.Owners...)
	d := &Dispatcher{cfg: cfg, deps: deps, log: log, now: time.Now}
	d.cmds = d.commands()
	return d
}

// SetOwners replaces the ids allowed to run owner-only commands.
func (d *Dispatcher) SetOwners(ids []int64) {
	d.mu.Lock()
	d.cfg.Owners = append([]int64(nil), ids...)
	d.mu.Unlock()
}

// Handle processes one incoming message to completion. Every handled
// message produces exactly one outbound reply.
func (d *Dispatcher) Handle(ctx context.Context, m *kit.Message) {
	if m == nil {
		return
	}
	reqID := uuid.NewString()[:8]
	log := d.log.With(
		logx.String("req", reqID),
		logx.Int64("user_id", m.FromID),
		logx.Int("msg_id", m.ID),
	)

	if d.deps.Registry != nil {
		if err := d.deps.Registry.AddUser(ctx, m.FromID); err != nil {
			log.Warn("register user failed", logx.Err(err))
		}
	}
	log.Info("message received", logx.String("from", m.DisplayName()), logx.Bool("reply", m.ReplyTo != nil))

	if name, args, ok := parseCommand(m.Text); ok {
		if cmd, found := d.cmds[name]; found {
			d.reply(ctx, log, m, cmd.handle(ctx, log, m, args))
			d.publish(eventbus.CommandHandled, name)
			return
		}
	}

	var text string
	if m.ReplyTo != nil {
		text = d.handleReply(ctx, log, m)
	} else {
		text = d.handleFresh(ctx, log, m)
	}
	d.reply(ctx, log, m, text)
}

// reply sends text back to the chat. A failed send does not undo a recorded submission.
func (d *Dispatcher) reply(ctx context.Context, log logx.Logger, m *kit.Message, text string) {
	if d.deps.Sender == nil {
		return
	}
	opt := &kit.SendOptions{DisablePreview: true}
	if m.IsGroup {
		opt.ReplyTo = m.ID
	}
	if _, err := d.deps.Sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, text, opt); err != nil {
		log.Error("send reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}

func (d *Dispatcher) publish(typ string, data any) {
	d.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
