package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	out := Snapshot{
		Enabled:   s.cfg.Enabled,
		Running:   s.c != nil,
		Timezone:  loc.String(),
		Schedules: make([]ScheduleInfo, 0, len(s.defs)),
	}
	now := time.Now().In(loc)
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		} else if sched, err := s.parser.Parse(d.spec); err == nil {
			it.Next = sched.Next(now)
		}
		d.state.mu.Lock()
		it.Runs = d.state.runs
		it.Failures = d.state.failures
		it.LastErr = d.state.lastErr
		it.LastTook = d.state.lastTook
		d.state.mu.Unlock()
		out.Schedules = append(out.Schedules, it)
	}
	return out
}
