package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	logx "orderbot/pkg/logx"
)

func exerciseSet(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int64{30, 10, 20, 10, 30} {
		if err := st.AddUser(ctx, id); err != nil {
			t.Fatalf("AddUser(%d): %v", id, err)
		}
	}
	users, err := st.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if want := []int64{10, 20, 30}; !reflect.DeepEqual(users, want) {
		t.Fatalf("users = %v, want %v", users, want)
	}
	if n, err := st.Count(ctx); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestMemoryStoreSetSemantics(t *testing.T) {
	st := NewMemory()
	exerciseSet(t, st)
	_ = st.Close()
	if err := st.AddUser(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.jsonl")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseSet(t, st)
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	users, err := st2.Users(context.Background())
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if want := []int64{10, 20, 30}; !reflect.DeepEqual(users, want) {
		t.Fatalf("users after reopen = %v, want %v", users, want)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")
	cfg := Config{Driver: "sqlite", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseSet(t, st)
	_ = st.Close()

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if n, err := st2.Count(context.Background()); err != nil || n != 3 {
		t.Fatalf("Count after reopen = %d, %v", n, err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for file driver without path")
	}
}
