package sheets

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Action names understood by the spreadsheet web app.
type Action string

const (
	ActionAdd          Action = "add"
	ActionUpdate       Action = "update"
	ActionCancel       Action = "cancel"
	ActionSearch       Action = "search"
	ActionGetBroadcast Action = "getBroadcast"
)

// Response is the store's answer. Raw holds the body exactly as received;
// the typed fields are the ones the bot reads.
type Response struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message,omitempty"`
	RowNumber        Number  `json:"rowNumber,omitempty"`
	OriginalMessage  Text    `json:"originalMessage,omitempty"`
	Orders           []Order `json:"orders,omitempty"`
	Count            Number  `json:"count,omitempty"`
	AIResponse       string  `json:"aiResponse,omitempty"`
	BroadcastMessage string  `json:"broadcastMessage,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Order is one submission row as returned by search.
// Order is one submission row as returned by search. Every field is a
// spreadsheet cell, so each one tolerates strings, numbers and booleans.
type Order struct {
	MessageID Text `json:"messageId"`
	UserID    Text `json:"userId"`
	Username  Text `json:"username"`
	Message   Text `json:"message"`
	OrderType Text `json:"orderType"`
	Status    Text `json:"status"`
	Notes     Text `json:"notes"`
	Timestamp Text `json:"timestamp"`
}

// Text accepts any JSON scalar. Spreadsheet cells come back as strings,
// numbers or booleans depending on their content.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '{', '[', 't', 'f':
		*t = Text(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			*t = Text(strconv.FormatInt(int64(f), 10))
			return nil
		}
		*t = Text(n.String())
	}
	return nil
}

func (t Text) String() string { return string(t) }

// Number accepts a JSON number or a numeric string. Anything else decodes as 0.
type Number int

func (n *Number) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	s := strings.TrimSpace(string(t))
	if v, err := strconv.Atoi(s); err == nil {
		*n = Number(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = Number(int(f))
		return nil
	}
	*n = 0
	return nil
}

func (n Number) Int() int { return int(n) }

// failure builds the response returned when the store cannot be reached.
func failure(msg string) Response {
	return Response{Success: false, Message: msg}
}
