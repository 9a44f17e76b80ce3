package dispatch

import (
	"context"
	"strings"
	"time"

	"orderbot/internal/classifier"
	"orderbot/internal/eventbus"
	"orderbot/internal/reply"
	"orderbot/internal/sheets"
	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

const (
	StatusPending   = "pending"
	StatusUpdated   = "updated"
	StatusCancelled = "cancelled"
	StatusTesting   = "testing"
)

// cancelKeywords select the cancel action regardless of classification.
var cancelKeywords = []string{"batal", "cancel"}

// Submission is the record sent to the store for a fresh message.
type Submission struct {
	MessageID int
	UserID    int64
	Username  string
	Message   string
	OrderType classifier.OrderType
	Status    string
	Notes     string
	Timestamp time.Time
}

func (s Submission) payload() map[string]any {
	return map[string]any{
		"messageId": s.MessageID,
		"userId":    s.UserID,
		"username":  s.Username,
		"message":   s.Message,
		"orderType": string(s.OrderType),
		"status":    s.Status,
		"notes":     s.Notes,
		"timestamp": s.Timestamp.Format(time.RFC3339),
	}
}

func (d *Dispatcher) handleFresh(ctx context.Context, log logx.Logger, m *kit.Message) string {
	res := d.deps.Classifier.Classify(ctx, m.Text, m.FromID, m.DisplayName())
	log.Debug("classified",
		logx.String("order_type", string(res.OrderType)),
		logx.Float64("confidence", res.Confidence),
		logx.String("fallback", string(res.Fallback)),
	)

	sub := Submission{
		MessageID: m.ID,
		UserID:    m.FromID,
		Username:  m.DisplayName(),
		Message:   m.Text,
		OrderType: res.OrderType,
		Status:    StatusPending,
		Notes:     res.ExtractedInfo,
		Timestamp: d.now(),
	}
	resp := d.deps.Store.Add(ctx, sub.payload())
	if !resp.Success {
		log.Error("record submission failed", logx.String("store_message", resp.Message))
		d.publish(eventbus.SubmissionFailed, m.ID)
		return systemErrorText(resp)
	}
	log.Info("submission recorded", logx.Int("row", resp.RowNumber.Int()), logx.String("order_type", string(res.OrderType)))
	d.publish(eventbus.SubmissionRecorded, m.ID)

	follow := strings.TrimSpace(resp.AIResponse)
	if follow == "" {
		follow = res.SuggestedReply
	}
	return recordedText(m.ID, resp.RowNumber.Int(), follow)
}

func (d *Dispatcher) handleReply(ctx context.Context, log logx.Logger, m *kit.Message) string {
	target, err := reply.Resolve(m.ReplyTo)
	if err != nil {
		log.Warn("reply target unresolved", logx.Err(err), logx.Int("reply_to", m.ReplyTo.MessageID))
		d.publish(eventbus.ReplyUnresolved, m.ID)
		return textMarkerNotFound
	}
	log = log.With(logx.Int("target", target))

	res := d.deps.Classifier.Classify(ctx, m.Text, m.FromID, m.DisplayName())
	if IsCancel(res.OrderType, m.Text) {
		resp := d.deps.Store.Cancel(ctx, map[string]any{"messageId": target})
		if !resp.Success {
			log.Error("cancel submission failed", logx.String("store_message", resp.Message))
			d.publish(eventbus.SubmissionFailed, target)
			return cancelFailedText(resp)
		}
		log.Info("submission cancelled")
		d.publish(eventbus.SubmissionCancelled, target)
		return cancelledText(target, resp.OriginalMessage.String())
	}

	resp := d.deps.Store.Update(ctx, map[string]any{
		"messageId":  target,
		"newMessage": m.Text,
		"status":     StatusUpdated,
		"notes":      res.ExtractedInfo,
	})
	if !resp.Success {
		log.Error("update submission failed", logx.String("store_message", resp.Message))
		d.publish(eventbus.SubmissionFailed, target)
		return updateFailedText(resp)
	}
	log.Info("submission updated")
	d.publish(eventbus.SubmissionUpdated, target)
	return updatedText(target, resp.OriginalMessage.String(), m.Text)
}

// IsCancel reports whether a reply cancels its target: either the model says
// so or the text contains a cancellation keyword.
func IsCancel(t classifier.OrderType, text string) bool {
	if t == classifier.OrderCancel {
		return true
	}
	low := strings.ToLower(text)
	for _, kw := range cancelKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

func storeMessage(resp sheets.Response) string {
	if strings.TrimSpace(resp.Message) == "" {
		return "Unknown error"
	}
	return resp.Message
}
