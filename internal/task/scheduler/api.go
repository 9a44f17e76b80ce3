package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "orderbot/pkg/logx"
)

// AddCron registers job under name, replacing any schedule with the same name.
// Before Start the definition is only stored.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: &runState{}})
	if s.c == nil {
		return nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return err
	}
	args := []logx.Field{logx.String("name", name), logx.String("spec", spec)}
	if next := s.previewNextRunsLocked(spec, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return nil
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := ParseClock(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

// Remove unschedules name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeLocked(strings.TrimSpace(name))
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// RemovePrefix unschedules every name starting with prefix and returns how many went.
func (s *Service) RemovePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, d := range s.defs {
		if strings.HasPrefix(d.name, prefix) {
			names = append(names, d.name)
		}
	}
	for _, n := range names {
		s.removeLocked(n)
	}
	return len(names)
}

func (s *Service) removeLocked(name string) bool {
	if name == "" {
		return false
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			continue
		}
		s.defs[n] = d
		n++
	}
	removed := n < len(s.defs)
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	name, job, state := d.name, d.job, d.state
	base := s.runCtx
	if base == nil {
		base = context.Background()
	}
	eid, err := s.c.AddFunc(d.spec, func() {
		s.run(base, name, timeout, job, state)
	})
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

func (s *Service) run(base context.Context, name string, timeout time.Duration, job Job, state *runState) {
	ctx := base
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, timeout)
		defer cancel()
	}
	start := time.Now()
	err := job(ctx)
	took := time.Since(start)

	state.mu.Lock()
	state.runs++
	state.lastTook = took
	state.lastErr = ""
	if err != nil {
		state.failures++
		state.lastErr = err.Error()
	}
	state.mu.Unlock()

	if err != nil {
		s.log.Warn("scheduled run failed", logx.String("name", name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("scheduled run done", logx.String("name", name), logx.Duration("took", took))
}

// previewNextRunsLocked lists upcoming run times for debug logs. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = time.Local
	}
	return strings.Join(nextRuns(sched, time.Now().In(loc), n), ", ")
}

func nextRuns(sched cron.Schedule, from time.Time, n int) []string {
	out := make([]string, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t.Format("2006-01-02 15:04:05"))
	}
	return out
}

// ParseClock parses a 24h "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
