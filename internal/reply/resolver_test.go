package reply

import (
	"errors"
	"testing"

	kit "orderbot/internal/transport"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		ref  *kit.ReplyRef
		want int
		err  error
	}{
		{"user message", &kit.ReplyRef{MessageID: 77, FromID: 5, Text: "#MSG1 ignored"}, 77, nil},
		{"bot marker", &kit.ReplyRef{MessageID: 900, FromBot: true, Text: "✅ Pesan Anda telah tercatat!\n\n📌 Message ID: #MSG482\n🔢 Row: 3"}, 482, nil},
		{"first marker wins", &kit.ReplyRef{FromBot: true, Text: "#MSG10 lalu #MSG11"}, 10, nil},
		{"bot without marker", &kit.ReplyRef{MessageID: 900, FromBot: true, Text: "🤖 Selamat datang"}, 0, ErrMarkerNotFound},
		{"marker without digits", &kit.ReplyRef{FromBot: true, Text: "#MSG"}, 0, ErrMarkerNotFound},
		{"overflow", &kit.ReplyRef{FromBot: true, Text: "#MSG99999999999999999999999"}, 0, ErrMarkerNotFound},
		{"no reply", nil, 0, ErrNoReplyTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.ref)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("id = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	id, err := Resolve(&kit.ReplyRef{FromBot: true, Text: "see " + Marker(501)})
	if err != nil || id != 501 {
		t.Fatalf("got %d, %v", id, err)
	}
}
