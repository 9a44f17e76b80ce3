package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	logx "orderbot/pkg/logx"
)

func TestAddDailyBuildsCronSpec(t *testing.T) {
	s := New(Config{Timezone: "UTC"}, logx.Nop())
	if err := s.AddDaily("broadcast@08:05", "08:05", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "5 8 * * *" {
		t.Fatalf("unexpected schedules: %+v", snap.Schedules)
	}
	next := snap.Schedules[0].Next.UTC()
	if next.Hour() != 8 || next.Minute() != 5 {
		t.Fatalf("next run = %v", next)
	}
}

func TestAddDailyRejectsBadTimes(t *testing.T) {
	s := New(Config{}, logx.Nop())
	for _, in := range []string{"8", "24:00", "12:60", "aa:bb"} {
		if err := s.AddDaily("x", in, 0, func(ctx context.Context) error { return nil }); err == nil {
			t.Fatalf("AddDaily(%q) should fail", in)
		}
	}
	if err := s.AddCron("x", "not a spec", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatalf("bad cron spec should fail")
	}
}

func TestAddCronUpsertsByName(t *testing.T) {
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }
	_ = s.AddCron("a", "0 * * * *", 0, job)
	_ = s.AddCron("a", "30 * * * *", 0, job)
	_ = s.AddCron("b", "0 0 * * *", 0, job)

	snap := s.Snapshot()
	if len(snap.Schedules) != 2 || snap.Schedules[1].Spec != "30 * * * *" {
		t.Fatalf("unexpected schedules: %+v", snap.Schedules)
	}
	if !s.Remove("a") || s.Remove("a") {
		t.Fatalf("Remove should report once")
	}
	if n := s.RemovePrefix("b"); n != 1 || len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("RemovePrefix = %d", n)
	}
}

func TestRunsJobsAndRecordsFailures(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	var runs atomic.Int32
	done := make(chan struct{}, 1)
	err := s.AddCron("every-second", "* * * * * *", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("job never ran")
	}
	// run state is recorded right after the job returns
	deadline := time.Now().Add(time.Second)
	for {
		info := s.Snapshot().Schedules[0]
		if info.Failures > 0 {
			if info.LastErr != "boom" || info.Runs < info.Failures {
				t.Fatalf("unexpected run state: %+v", info)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("failure not recorded: %+v", info)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisabledSchedulerDoesNotStart(t *testing.T) {
	s := New(Config{Enabled: false}, logx.Nop())
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatalf("disabled scheduler should not run")
	}
	s.Stop(context.Background())
}

func TestApplyTimezoneKeepsSchedules(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	_ = s.AddDaily("morning", "08:00", 0, func(ctx context.Context) error { return nil })
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.Apply(Config{Enabled: true, Timezone: "Asia/Jakarta"})
	snap := s.Snapshot()
	if snap.Timezone != "Asia/Jakarta" || len(snap.Schedules) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	loc, _ := time.LoadLocation("Asia/Jakarta")
	next := snap.Schedules[0].Next.In(loc)
	if next.Hour() != 8 || next.Minute() != 0 {
		t.Fatalf("next run in Jakarta = %v", next)
	}
}

func TestCronLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{log: logx.NewWriter(&buf, "trace")}
	l.Error(errors.New("bad"), "job panicked", "name", "x")
	out := buf.String()
	if !strings.Contains(out, `"name":"x"`) || !strings.Contains(out, "cron: job panicked") || !strings.Contains(out, "bad") {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestApplyTimezoneDoesNotWaitForRunningJob(t *testing.T) {
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var first, finished atomic.Bool
	_ = s.AddCron("slow", "* * * * * *", 10*time.Second, func(ctx context.Context) error {
		if !first.CompareAndSwap(false, true) {
			return nil
		}
		started <- struct{}{}
		<-release
		finished.Store(true)
		return nil
	})
	s.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("job never started")
	}

	applied := make(chan struct{})
	go func() {
		s.Apply(Config{Enabled: true, Timezone: "Asia/Jakarta"})
		_ = s.Snapshot()
		close(applied)
	}()
	select {
	case <-applied:
	case <-time.After(time.Second):
		close(release)
		t.Fatalf("Apply blocked on a running job")
	}
	if tz := s.Snapshot().Timezone; tz != "Asia/Jakarta" {
		t.Fatalf("timezone = %s", tz)
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop(context.Background())
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("Stop returned while the old job was still running")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop did not return after the job finished")
	}
	if !finished.Load() {
		t.Fatalf("job did not finish")
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock(" 08:05 ")
	if err != nil || h != 8 || m != 5 {
		t.Fatalf("ParseClock = %d %d %v", h, m, err)
	}
	for _, in := range []string{"8am", "24:00", "12:60", ""} {
		if _, _, err := ParseClock(in); err == nil {
			t.Fatalf("ParseClock(%q) should fail", in)
		}
	}
}
