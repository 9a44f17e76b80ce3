package broadcast

import (
	"context"
	"time"

	"orderbot/internal/sheets"
)

const DefaultDelay = 100 * time.Millisecond

type Config struct {
	// Delay is the minimum spacing between two sends.
	Delay time.Duration
}

// MessageSource provides the operator-authored broadcast text.
type MessageSource interface {
	GetBroadcast(ctx context.Context) sheets.Response
}

// Recipients lists every known user id.
type Recipients interface {
	Users(ctx context.Context) ([]int64, error)
}

// Report summarizes one broadcast run.
type Report struct {
	ID        string
	Trigger   string
	Total     int
	Sent      int
	Failed    int
	Failures  []int64
	Skipped   bool
	Reason    string
	StartedAt time.Time
	Duration  time.Duration
}

const maxFailuresKept = 200
