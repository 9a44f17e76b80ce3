package dispatch

import (
	"context"
	"strconv"
	"strings"

	"orderbot/internal/classifier"
	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

type command struct {
	Name        string
	Description string
	handle      func(ctx context.Context, log logx.Logger, m *kit.Message, args []string) string
}

func (d *Dispatcher) commands() map[string]command {
	list := []command{
		{Name: "start", Description: "Mulai menggunakan bot", handle: d.cmdStart},
		{Name: "status", Description: "Lihat status order Anda", handle: d.cmdStatus},
		{Name: "broadcast", Description: "Kirim pengumuman ke semua user (admin)", handle: d.cmdBroadcast},
		{Name: "test", Description: "Tes koneksi ke spreadsheet", handle: d.cmdTest},
	}
	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.Name] = c
	}
	return out
}

// MenuCommands lists the commands for the platform command menu.
func (d *Dispatcher) MenuCommands() []kit.BotCommand {
	order := []string{"start", "status", "test", "broadcast"}
	out := make([]kit.BotCommand, 0, len(order))
	for _, n := range order {
		if c, ok := d.cmds[n]; ok {
			out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
		}
	}
	return out
}

// parseCommand splits "/cmd@bot a b" into ("cmd", [a b]).
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil, false
	}
	name := fields[0]
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:], true
}

func (d *Dispatcher) isOwner(userID int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, id := range d.cfg.Owners {
		if id == userID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) cmdStart(ctx context.Context, log logx.Logger, m *kit.Message, args []string) string {
	return textWelcome
}

func (d *Dispatcher) cmdStatus(ctx context.Context, log logx.Logger, m *kit.Message, args []string) string {
	payload := map[string]any{"userId": m.FromID}
	if len(args) > 0 {
		raw := strings.TrimPrefix(strings.ToUpper(args[0]), "#MSG")
		id, err := strconv.Atoi(raw)
		if err != nil {
			return "❌ Format: /status [Message ID], contoh /status #MSG123"
		}
		payload["messageId"] = id
	}
	resp := d.deps.Store.Search(ctx, payload)
	log.Debug("status lookup", logx.Bool("success", resp.Success), logx.Int("count", len(resp.Orders)))
	return statusText(resp)
}

func (d *Dispatcher) cmdBroadcast(ctx context.Context, log logx.Logger, m *kit.Message, args []string) string {
	if !d.isOwner(m.FromID) {
		log.Warn("broadcast refused for non-owner")
		return textAdminOnly
	}
	if d.deps.Broadcaster == nil {
		return "⚠️ Broadcast tidak tersedia."
	}
	rep := d.deps.Broadcaster.Run(ctx, "command")
	return broadcastText(rep)
}

func (d *Dispatcher) cmdTest(ctx context.Context, log logx.Logger, m *kit.Message, args []string) string {
	sub := Submission{
		MessageID: 99999,
		UserID:    m.FromID,
		Username:  m.DisplayName(),
		Message:   "Test connection",
		OrderType: classifier.OrderTest,
		Status:    StatusTesting,
		Notes:     "Connection test from /test command",
		Timestamp: d.now(),
	}
	resp := d.deps.Store.Add(ctx, sub.payload())
	log.Info("connection test", logx.Bool("success", resp.Success), logx.Int("row", resp.RowNumber.Int()))
	return testResultText(resp)
}
