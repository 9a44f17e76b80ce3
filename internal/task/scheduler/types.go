package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "orderbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"
	// DefaultTimeout bounds runs registered without their own timeout. 0 disables it.
	DefaultTimeout time.Duration
}

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
}

// runState is shared by every cron entry created for one definition.
type runState struct {
	mu       sync.Mutex
	runs     uint64
	failures uint64
	lastErr  string
	lastTook time.Duration
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	// retired holds the stop contexts of crons replaced by a restart whose jobs may still run.
	retired []context.Context

	// runCtx is cancelled by Stop so in-flight jobs can wind down.
	runCtx    context.Context
	runCancel context.CancelFunc
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Failures uint64
	LastErr  string
	LastTook time.Duration
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}
