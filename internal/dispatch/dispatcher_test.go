package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"orderbot/internal/broadcast"
	"orderbot/internal/classifier"
	"orderbot/internal/eventbus"
	"orderbot/internal/sheets"
	kit "orderbot/internal/transport"
)

type fakeClassifier struct {
	res   classifier.Result
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, message string, userID int64, username string) classifier.Result {
	f.calls++
	r := f.res
	if r.ExtractedInfo == "" {
		r.ExtractedInfo = message
	}
	return r
}

type storeCall struct {
	action  sheets.Action
	payload map[string]any
}

type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall
	resp  sheets.Response
}

func (f *fakeStore) record(a sheets.Action, p map[string]any) sheets.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, storeCall{action: a, payload: p})
	return f.resp
}

func (f *fakeStore) Add(ctx context.Context, p map[string]any) sheets.Response {
	return f.record(sheets.ActionAdd, p)
}

func (f *fakeStore) Update(ctx context.Context, p map[string]any) sheets.Response {
	return f.record(sheets.ActionUpdate, p)
}

func (f *fakeStore) Cancel(ctx context.Context, p map[string]any) sheets.Response {
	return f.record(sheets.ActionCancel, p)
}

func (f *fakeStore) Search(ctx context.Context, p map[string]any) sheets.Response {
	return f.record(sheets.ActionSearch, p)
}

type fakeRegistry struct{ users []int64 }

func (f *fakeRegistry) AddUser(ctx context.Context, id int64) error {
	f.users = append(f.users, id)
	return nil
}

type sent struct {
	chatID int64
	text   string
	opt    kit.SendOptions
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{chatID: to.ChatID, text: text}
	if opt != nil {
		s.opt = *opt
	}
	f.sent = append(f.sent, s)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, f.err
}

type fakeBroadcaster struct{ runs []string }

func (f *fakeBroadcaster) Run(ctx context.Context, trigger string) broadcast.Report {
	f.runs = append(f.runs, trigger)
	return broadcast.Report{Trigger: trigger, Total: 3, Sent: 2, Failed: 1}
}

type harness struct {
	d      *Dispatcher
	cls    *fakeClassifier
	store  *fakeStore
	reg    *fakeRegistry
	sender *fakeSender
	bc     *fakeBroadcaster
	bus    eventbus.Bus
}

func newHarness(owners ...int64) *harness {
	h := &harness{
		cls:    &fakeClassifier{res: classifier.Result{OrderType: classifier.OrderNew, Confidence: 0.9, SuggestedReply: "Siap diproses."}},
		store:  &fakeStore{resp: sheets.Response{Success: true, RowNumber: 7}},
		reg:    &fakeRegistry{},
		sender: &fakeSender{},
		bc:     &fakeBroadcaster{},
		bus:    eventbus.New(),
	}
	h.d = New(Config{Owners: owners}, Deps{
		Classifier:  h.cls,
		Store:       h.store,
		Registry:    h.reg,
		Broadcaster: h.bc,
		Sender:      h.sender,
		Bus:         h.bus,
	})
	h.d.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func (h *harness) only(t *testing.T) sent {
	t.Helper()
	if len(h.sender.sent) != 1 {
		t.Fatalf("sent %d replies, want 1: %+v", len(h.sender.sent), h.sender.sent)
	}
	return h.sender.sent[0]
}

func TestFreshMessageRecorded(t *testing.T) {
	h := newHarness()
	events, unsub := h.bus.Subscribe(4)
	defer unsub()

	h.d.Handle(context.Background(), &kit.Message{ID: 501, ChatID: 10, FromID: 42, FromUsername: "budi", Text: "Pesan baru"})

	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionAdd {
		t.Fatalf("store calls = %+v, want one add", h.store.calls)
	}
	p := h.store.calls[0].payload
	if p["messageId"] != 501 || p["userId"] != int64(42) || p["username"] != "budi" || p["status"] != StatusPending {
		t.Fatalf("unexpected payload: %v", p)
	}
	if p["orderType"] != "new_order" || p["timestamp"] != "2025-01-02T03:04:05Z" {
		t.Fatalf("unexpected payload: %v", p)
	}

	r := h.only(t)
	if r.chatID != 10 || !strings.Contains(r.text, "Row: 7") || !strings.Contains(r.text, "#MSG501") || !strings.Contains(r.text, "Siap diproses.") {
		t.Fatalf("unexpected reply: %+v", r)
	}
	if r.opt.ReplyTo != 0 {
		t.Fatalf("private chat reply should not quote, got %d", r.opt.ReplyTo)
	}
	if len(h.reg.users) != 1 || h.reg.users[0] != 42 {
		t.Fatalf("user not registered: %v", h.reg.users)
	}

	select {
	case e := <-events:
		if e.Type != eventbus.SubmissionRecorded {
			t.Fatalf("event = %s", e.Type)
		}
	default:
		t.Fatalf("no event published")
	}
}

func TestFreshMessagePrefersStoreFollowUp(t *testing.T) {
	h := newHarness()
	h.store.resp.AIResponse = "Terima kasih, Budi!"
	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 1, Text: "x", IsGroup: true})

	r := h.only(t)
	if !strings.Contains(r.text, "Terima kasih, Budi!") || strings.Contains(r.text, "Siap diproses.") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
	if r.opt.ReplyTo != 1 {
		t.Fatalf("group reply should quote the message, got %d", r.opt.ReplyTo)
	}
}

func TestFreshMessageStoreFailure(t *testing.T) {
	h := newHarness()
	h.store.resp = sheets.Response{Success: false, Message: "Gagal menghubungi Google Sheets: timeout"}
	h.d.Handle(context.Background(), &kit.Message{ID: 9, ChatID: 1, FromID: 1, Text: "x"})

	r := h.only(t)
	if !strings.HasPrefix(r.text, "❌ Maaf, terjadi kesalahan sistem.") || !strings.Contains(r.text, "timeout") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestReplyWithCancelKeywordCancels(t *testing.T) {
	h := newHarness()
	// The model disagrees; the keyword still wins.
	h.cls.res.OrderType = classifier.OrderUpdate
	h.store.resp.OriginalMessage = "2 kopi"

	h.d.Handle(context.Background(), &kit.Message{
		ID: 600, ChatID: 1, FromID: 42, Text: "Tolong BATAL ya",
		ReplyTo: &kit.ReplyRef{MessageID: 502, FromBot: true, Text: "✅ Pesan Anda telah tercatat!\n\n📌 Message ID: #MSG501\n🔢 Row: 7"},
	})

	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionCancel {
		t.Fatalf("store calls = %+v, want one cancel", h.store.calls)
	}
	if h.store.calls[0].payload["messageId"] != 501 {
		t.Fatalf("cancel target = %v", h.store.calls[0].payload["messageId"])
	}
	r := h.only(t)
	if !strings.Contains(r.text, "#MSG501") || !strings.Contains(r.text, "2 kopi") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestReplyToOwnMessageUpdates(t *testing.T) {
	h := newHarness()
	h.cls.res = classifier.Result{OrderType: classifier.OrderUpdate, ExtractedInfo: "3 kopi"}

	h.d.Handle(context.Background(), &kit.Message{
		ID: 700, ChatID: 1, FromID: 42, Text: "jadi 3 kopi",
		ReplyTo: &kit.ReplyRef{MessageID: 650, FromID: 42, Text: "2 kopi"},
	})

	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionUpdate {
		t.Fatalf("store calls = %+v, want one update", h.store.calls)
	}
	p := h.store.calls[0].payload
	if p["messageId"] != 650 || p["newMessage"] != "jadi 3 kopi" || p["status"] != StatusUpdated || p["notes"] != "3 kopi" {
		t.Fatalf("unexpected payload: %v", p)
	}
	if r := h.only(t); !strings.Contains(r.text, "#MSG650") || !strings.Contains(r.text, "jadi 3 kopi") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestReplyWithoutMarkerSkipsStore(t *testing.T) {
	h := newHarness()
	h.d.Handle(context.Background(), &kit.Message{
		ID: 800, ChatID: 1, FromID: 42, Text: "batal",
		ReplyTo: &kit.ReplyRef{MessageID: 3, FromBot: true, Text: "📢 Promo hari ini"},
	})

	if len(h.store.calls) != 0 || h.cls.calls != 0 {
		t.Fatalf("unexpected calls: store=%d classify=%d", len(h.store.calls), h.cls.calls)
	}
	if r := h.only(t); r.text != textMarkerNotFound {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestReplySendFailureIsLogged(t *testing.T) {
	h := newHarness()
	h.sender.err = errors.New("blocked")
	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 1, Text: "x"})
	if len(h.store.calls) != 1 {
		t.Fatalf("submission should still be recorded")
	}
}

func TestBroadcastCommandOwnerGate(t *testing.T) {
	h := newHarness(7)

	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 8, Text: "/broadcast"})
	if len(h.bc.runs) != 0 || h.sender.sent[0].text != textAdminOnly {
		t.Fatalf("non-owner triggered broadcast: %v %+v", h.bc.runs, h.sender.sent)
	}

	h.d.Handle(context.Background(), &kit.Message{ID: 2, ChatID: 1, FromID: 7, Text: "/broadcast@order_bot"})
	if len(h.bc.runs) != 1 || h.bc.runs[0] != "command" {
		t.Fatalf("owner broadcast not run: %v", h.bc.runs)
	}
	if !strings.Contains(h.sender.sent[1].text, "Berhasil: 2") {
		t.Fatalf("unexpected reply: %q", h.sender.sent[1].text)
	}
	if len(h.store.calls) != 0 {
		t.Fatalf("commands must not reach the order pipeline")
	}
}

func TestBroadcastWithoutOwnersRefused(t *testing.T) {
	h := newHarness()
	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 1, Text: "/broadcast"})
	if len(h.bc.runs) != 0 {
		t.Fatalf("broadcast should be refused with no owners")
	}
}

func TestStatusCommand(t *testing.T) {
	h := newHarness()
	h.store.resp = sheets.Response{Success: true, Count: 1, Orders: []sheets.Order{{MessageID: "501", OrderType: "new_order", Status: "pending", Message: "2 kopi"}}}

	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 42, Text: "/status #MSG501"})

	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionSearch {
		t.Fatalf("store calls = %+v", h.store.calls)
	}
	p := h.store.calls[0].payload
	if p["userId"] != int64(42) || p["messageId"] != 501 {
		t.Fatalf("unexpected search payload: %v", p)
	}
	if r := h.only(t); !strings.Contains(r.text, "#MSG501") || !strings.Contains(r.text, "pending") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestTestCommandAddsSampleRow(t *testing.T) {
	h := newHarness()
	h.d.Handle(context.Background(), &kit.Message{ID: 1, ChatID: 1, FromID: 42, Text: "/test"})

	p := h.store.calls[0].payload
	if p["messageId"] != 99999 || p["orderType"] != "test" || p["status"] != StatusTesting {
		t.Fatalf("unexpected payload: %v", p)
	}
	if r := h.only(t); !strings.Contains(r.text, "Connection OK") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}

func TestUnknownCommandIsAnOrder(t *testing.T) {
	h := newHarness()
	h.d.Handle(context.Background(), &kit.Message{ID: 5, ChatID: 1, FromID: 1, Text: "/menu"})
	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionAdd {
		t.Fatalf("unknown command should be recorded as a message: %+v", h.store.calls)
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		args int
		ok   bool
	}{
		{"/start", "start", 0, true},
		{"  /Status@bot 12 ", "status", 1, true},
		{"/", "", 0, false},
		{"hello /start", "", 0, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.in)
		if name != tc.name || len(args) != tc.args || ok != tc.ok {
			t.Fatalf("parseCommand(%q) = %q %v %v", tc.in, name, args, ok)
		}
	}
}

func TestIsCancel(t *testing.T) {
	if !IsCancel(classifier.OrderCancel, "ganti alamat") {
		t.Fatalf("model cancel should cancel")
	}
	if !IsCancel(classifier.OrderInquiry, "Cancel pesanan") {
		t.Fatalf("keyword should cancel")
	}
	if IsCancel(classifier.OrderUpdate, "ganti jadi 3") {
		t.Fatalf("update should not cancel")
	}
}

func TestReplyStoreFailures(t *testing.T) {
	cases := []struct {
		name   string
		model  classifier.OrderType
		text   string
		action sheets.Action
		prefix string
	}{
		{"update", classifier.OrderUpdate, "jadi 3 kopi", sheets.ActionUpdate, "❌ Gagal mengupdate order."},
		{"cancel", classifier.OrderInquiry, "batal saja", sheets.ActionCancel, "❌ Gagal membatalkan order."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.cls.res.OrderType = tc.model
			h.store.resp = sheets.Response{Success: false, Message: "Order not found"}
			events, unsub := h.bus.Subscribe(8)
			defer unsub()

			h.d.Handle(context.Background(), &kit.Message{
				ID: 900, ChatID: 1, FromID: 42, Text: tc.text,
				ReplyTo: &kit.ReplyRef{MessageID: 880, FromID: 42, Text: "2 kopi"},
			})

			if len(h.store.calls) != 1 || h.store.calls[0].action != tc.action {
				t.Fatalf("store calls = %+v, want one %s", h.store.calls, tc.action)
			}
			r := h.only(t)
			if !strings.HasPrefix(r.text, tc.prefix) || !strings.Contains(r.text, "Order not found") {
				t.Fatalf("unexpected reply: %q", r.text)
			}
			select {
			case e := <-events:
				if e.Type != eventbus.SubmissionFailed {
					t.Fatalf("event = %s, want %s", e.Type, eventbus.SubmissionFailed)
				}
			case <-time.After(time.Second):
				t.Fatalf("no event published")
			}
		})
	}
}

func TestReplyCancelledByModelAlone(t *testing.T) {
	h := newHarness()
	h.cls.res.OrderType = classifier.OrderCancel

	h.d.Handle(context.Background(), &kit.Message{
		ID: 910, ChatID: 1, FromID: 42, Text: "tidak jadi pesan",
		ReplyTo: &kit.ReplyRef{MessageID: 905, FromID: 42, Text: "2 kopi"},
	})

	if len(h.store.calls) != 1 || h.store.calls[0].action != sheets.ActionCancel {
		t.Fatalf("store calls = %+v, want one cancel", h.store.calls)
	}
	if p := h.store.calls[0].payload; len(p) != 1 || p["messageId"] != 905 {
		t.Fatalf("cancel payload = %v, want only the target id", p)
	}
	if r := h.only(t); !strings.HasPrefix(r.text, "🚫 Order #MSG905") {
		t.Fatalf("unexpected reply: %q", r.text)
	}
}
