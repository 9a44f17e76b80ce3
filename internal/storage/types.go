package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the user registry backend.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the user registry: a set of user ids.
// Adding an id that is already present is a no-op.
type Store interface {
	AddUser(ctx context.Context, userID int64) error
	Users(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
