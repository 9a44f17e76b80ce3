package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

func TestSplitTextPrefersNewlines(t *testing.T) {
	line := strings.Repeat("a", 30) + "\n"
	text := strings.Repeat(line, 10)
	parts := splitText(text, 100)
	if len(parts) < 4 {
		t.Fatalf("parts = %d", len(parts))
	}
	for i, p := range parts {
		if len([]rune(p)) > 100 {
			t.Fatalf("part %d too long: %d", i, len(p))
		}
		if strings.HasSuffix(p, "\n") {
			t.Fatalf("part %d keeps trailing newline", i)
		}
	}
	if got := strings.Join(parts, "\n"); got != strings.TrimRight(text, "\n") {
		t.Fatalf("content changed after split")
	}
}

func TestSplitTextShortAndRunes(t *testing.T) {
	if parts := splitText("halo", 10); len(parts) != 1 || parts[0] != "halo" {
		t.Fatalf("parts = %v", parts)
	}
	parts := splitText(strings.Repeat("é", 25), 10)
	if len(parts) != 3 || len([]rune(parts[2])) != 5 {
		t.Fatalf("rune split wrong: %v", parts)
	}
}

func TestToMessageMapsReplies(t *testing.T) {
	a := &Adapter{bot: &tele.Bot{Me: &tele.User{ID: 999, IsBot: true}}}
	m := &tele.Message{
		ID:     10,
		Text:   "batal",
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 42, Username: "budi", FirstName: "Budi"},
		ReplyTo: &tele.Message{
			ID:     9,
			Text:   "✅ Pesan Anda telah tercatat!\n📌 Message ID: #MSG5",
			Sender: &tele.User{ID: 999, IsBot: true},
		},
	}
	got := a.toMessage(m)
	if got.ID != 10 || got.ChatID != -100 || got.FromID != 42 || !got.IsGroup || got.DisplayName() != "budi" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.ReplyTo == nil || got.ReplyTo.MessageID != 9 || !got.ReplyTo.FromBot || !strings.Contains(got.ReplyTo.Text, "#MSG5") {
		t.Fatalf("unexpected reply ref: %+v", got.ReplyTo)
	}
}

func TestIsSelfIgnoresOtherBots(t *testing.T) {
	a := &Adapter{bot: &tele.Bot{Me: &tele.User{ID: 999}}}
	if a.isSelf(&tele.User{ID: 1000, IsBot: true}) {
		t.Fatalf("another bot is not self")
	}
	if !a.isSelf(&tele.User{ID: 999}) {
		t.Fatalf("own id should be self")
	}
	anon := &Adapter{}
	if !anon.isSelf(&tele.User{ID: 5, IsBot: true}) {
		t.Fatalf("without identity any bot counts")
	}
}

func TestSendUpdateWaitsForSlowConsumer(t *testing.T) {
	ch := make(chan kit.Update, 1)
	a := &Adapter{log: logx.Nop()}
	a.out.Store((chan<- kit.Update)(ch))

	delivered := make(chan int, 1)
	go func() {
		n := 0
		for i := 1; i <= 3; i++ {
			if a.sendUpdate(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: i}}) {
				n++
			}
		}
		delivered <- n
	}()

	var ids []int
	for len(ids) < 3 {
		select {
		case up := <-ch:
			ids = append(ids, up.Message.ID)
			time.Sleep(20 * time.Millisecond)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", ids)
		}
	}
	if n := <-delivered; n != 3 {
		t.Fatalf("delivered = %d, want 3", n)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("order = %v", ids)
	}
}

func TestSendUpdateGivesUpOnCancel(t *testing.T) {
	ch := make(chan kit.Update)
	a := &Adapter{log: logx.Nop()}
	a.out.Store((chan<- kit.Update)(ch))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- a.sendUpdate(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 1}}) }()

	select {
	case <-done:
		t.Fatalf("returned before cancel")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected undelivered after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("sendUpdate did not return after cancel")
	}
}

func TestWaitSendKeepsGlobalRate(t *testing.T) {
	a := &Adapter{limiter: newSendLimiter(10)}
	start := time.Now()
	for i := 0; i < 12; i++ {
		if err := a.waitSend(context.Background()); err != nil {
			t.Fatalf("waitSend: %v", err)
		}
	}
	if took := time.Since(start); took < 150*time.Millisecond {
		t.Fatalf("12 sends at 10/s took only %v", took)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.waitSend(ctx); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
	if err := (&Adapter{}).waitSend(ctx); err != nil {
		t.Fatalf("adapter without limiter should not wait: %v", err)
	}
}
