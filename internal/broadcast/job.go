package broadcast

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbot/internal/eventbus"
	kit "orderbot/internal/transport"
	logx "orderbot/pkg/logx"
)

// Job fans the store's broadcast message out to every registered user, one
// send at a time. It has no dependency on how it is triggered.
type Job struct {
	cfg    Config
	source MessageSource
	users  Recipients
	sender kit.Sender
	bus    eventbus.Bus
	log    logx.Logger

	// runMu serializes runs so a manual trigger and a scheduled one never interleave.
	runMu sync.Mutex

	mu   sync.Mutex
	last *Report
}

func New(cfg Config, source MessageSource, users Recipients, sender kit.Sender, bus eventbus.Bus, log logx.Logger) *Job {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{cfg: cfg, source: source, users: users, sender: sender, bus: bus, log: log}
}

// Run performs one broadcast cycle. trigger is informational ("schedule", "command").
func (j *Job) Run(ctx context.Context, trigger string) Report {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	rep := Report{ID: uuid.NewString(), Trigger: trigger, StartedAt: time.Now()}
	defer func() {
		rep.Duration = time.Since(rep.StartedAt)
		j.finish(rep)
	}()

	resp := j.source.GetBroadcast(ctx)
	text := strings.TrimSpace(resp.BroadcastMessage)
	if text == "" && resp.Success {
		text = strings.TrimSpace(resp.Message)
	}
	if !resp.Success || text == "" {
		rep.Skipped = true
		rep.Reason = "no broadcast message"
		if !resp.Success && resp.Message != "" {
			rep.Reason = resp.Message
		}
		return rep
	}

	ids, err := j.users.Users(ctx)
	if err != nil {
		rep.Skipped = true
		rep.Reason = "list users: " + err.Error()
		return rep
	}
	rep.Total = len(ids)

	delay := j.delay()
	for i, id := range ids {
		if i > 0 {
			if err := pause(ctx, delay); err != nil {
				// Context gone: the remaining users count as failed.
				j.log.Warn("broadcast pacing aborted", logx.String("run", rep.ID), logx.Err(err))
				rep.Failed += rep.Total - rep.Sent - rep.Failed
				break
			}
		}
		if _, err := j.sender.SendText(ctx, kit.ChatTarget{ChatID: id}, text, &kit.SendOptions{DisablePreview: true}); err != nil {
			rep.Failed++
			if len(rep.Failures) < maxFailuresKept {
				rep.Failures = append(rep.Failures, id)
			}
			j.log.Warn("broadcast send failed", logx.String("run", rep.ID), logx.Int64("user_id", id), logx.Err(err))
			continue
		}
		rep.Sent++
	}
	return rep
}

// pause waits d after the previous send has returned.
func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetDelay changes the pause between two sends for subsequent runs.
func (j *Job) SetDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultDelay
	}
	j.mu.Lock()
	j.cfg.Delay = d
	j.mu.Unlock()
}

func (j *Job) delay() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cfg.Delay
}

// LastReport returns the most recent run, if any.
func (j *Job) LastReport() (Report, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return Report{}, false
	}
	cp := *j.last
	cp.Failures = append([]int64(nil), j.last.Failures...)
	return cp, true
}

func (j *Job) finish(rep Report) {
	j.mu.Lock()
	j.last = &rep
	j.mu.Unlock()

	fields := []logx.Field{
		logx.String("run", rep.ID),
		logx.String("trigger", rep.Trigger),
		logx.Int("total", rep.Total),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Duration),
	}
	switch {
	case rep.Skipped:
		j.log.Info("broadcast skipped", append(fields, logx.String("reason", rep.Reason))...)
	case rep.Failed > 0:
		j.log.Warn("broadcast finished with failures", fields...)
	default:
		j.log.Info("broadcast finished", fields...)
	}
	j.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Data: rep})
}
