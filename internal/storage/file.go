package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "orderbot/pkg/logx"
)

// fileStore persists the registry as an append-only JSON Lines journal.
// Only ids not seen before are appended, so the journal holds each id once.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	journal *os.File
	users   map[int64]struct{}
}

type userRecord struct {
	UserID int64 `json:"user_id"`
	At     int64 `json:"at"` // unix milli
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	users := map[int64]struct{}{}
	if err := replayJournal(path, users); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("user journal replay incomplete", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("user journal opened", logx.String("path", path), logx.Int("users", len(users)))
	return &fileStore{log: log, journal: f, users: users}, nil
}

func (s *fileStore) AddUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.users[userID]; ok {
		return nil
	}
	if err := json.NewEncoder(s.journal).Encode(userRecord{UserID: userID, At: time.Now().UnixMilli()}); err != nil {
		return err
	}
	s.users[userID] = struct{}{}
	return nil
}

func (s *fileStore) Users(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return sortedIDs(s.users), nil
}

func (s *fileStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	return len(s.users), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// replayJournal skips malformed lines (e.g. a torn final write).
func replayJournal(path string, out map[int64]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r userRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.UserID == 0 {
			continue
		}
		out[r.UserID] = struct{}{}
	}
	return sc.Err()
}
