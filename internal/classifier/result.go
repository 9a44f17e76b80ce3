package classifier

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// OrderType is the category assigned to a user message.
type OrderType string

const (
	OrderNew     OrderType = "new_order"
	OrderUpdate  OrderType = "update"
	OrderCancel  OrderType = "cancel"
	OrderInquiry OrderType = "inquiry"
	OrderTest    OrderType = "test"
)

// Fallback explains why a Result carries client-side defaults instead of model output.
type Fallback string

const (
	// FallbackNone means the model answered with a parseable JSON object.
	FallbackNone Fallback = ""
	// FallbackNoJSON means the answer contained no {...} object.
	FallbackNoJSON Fallback = "no_json"
	// FallbackParse means the {...} object was not valid JSON.
	FallbackParse Fallback = "parse"
	// FallbackRequest means the API call itself failed.
	FallbackRequest Fallback = "request"
)

const (
	replyThanks   = "Terima kasih atas pesan Anda."
	replyReceived = "Pesan Anda telah kami terima."
)

type Result struct {
	OrderType      OrderType `json:"orderType"`
	Confidence     float64   `json:"confidence"`
	ExtractedInfo  string    `json:"extractedInfo"`
	SuggestedReply string    `json:"suggestedReply"`

	Fallback Fallback `json:"-"`
}

// wireResult is the model's JSON answer. Models sometimes quote numbers.
type wireResult struct {
	OrderType      string    `json:"orderType"`
	Confidence     looseReal `json:"confidence"`
	ExtractedInfo  string    `json:"extractedInfo"`
	SuggestedReply string    `json:"suggestedReply"`
}

// looseReal decodes a JSON number or numeric string. Other values become 0.
type looseReal float64

func (f *looseReal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = 0
		}
		*f = looseReal(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		*f = 0
		return nil
	}
	*f = looseReal(v)
	return nil
}

// OK reports whether the result came from the model.
func (r Result) OK() bool { return r.Fallback == FallbackNone }

// Fallback results: the pipeline is never blocked on classification.
func fallbackResult(message string, reason Fallback) Result {
	if reason == FallbackRequest {
		return Result{
			OrderType:      OrderInquiry,
			Confidence:     0,
			ExtractedInfo:  message,
			SuggestedReply: replyReceived,
			Fallback:       reason,
		}
	}
	return Result{
		OrderType:      OrderInquiry,
		Confidence:     0.5,
		ExtractedInfo:  message,
		SuggestedReply: replyThanks,
		Fallback:       reason,
	}
}

// normalize fills blanks left by the model.
func (r Result) normalize(message string) Result {
	r.OrderType = OrderType(strings.ToLower(strings.TrimSpace(string(r.OrderType))))
	if r.OrderType == "" {
		r.OrderType = OrderInquiry
	}
	switch {
	case r.Confidence < 0:
		r.Confidence = 0
	case r.Confidence > 1:
		r.Confidence = 1
	}
	if strings.TrimSpace(r.ExtractedInfo) == "" {
		r.ExtractedInfo = message
	}
	if strings.TrimSpace(r.SuggestedReply) == "" {
		r.SuggestedReply = replyThanks
	}
	return r
}
