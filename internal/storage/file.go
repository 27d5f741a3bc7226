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

	logx "purrbot/pkg/logx"
)

// maxAuditLine bounds one JSON line read back by Prune.
const maxAuditLine = 1 << 20

// fileStore appends JSON Lines to <prefix>.audit.jsonl. Prune rewrites the
// file through a temp copy and rename.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: filepath.Join(dir, base) + ".audit.jsonl"}
	if err := s.reopenLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileStore) reopenLocked() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.f).Encode(e)
}

func (s *fileStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, errors.New("audit file closed")
	}

	in, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	tmp := s.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	// tmp is removed on every path that does not rename it into place.
	renamed := false
	defer func() {
		if !renamed {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()
	w := bufio.NewWriter(out)

	var removed int64
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), maxAuditLine)
	for sc.Scan() {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var e struct {
			At time.Time `json:"at"`
		}
		// Unreadable lines are kept as-is.
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil && e.At.Before(cutoff) {
			removed++
			continue
		}
		_, _ = w.Write(sc.Bytes())
		_ = w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	_ = s.f.Close()
	s.f = nil
	if err := os.Rename(tmp, s.path); err != nil {
		_ = s.reopenLocked()
		return 0, err
	}
	renamed = true
	if err := s.reopenLocked(); err != nil {
		return removed, err
	}
	s.log.Debug("audit pruned", logx.Int64("removed", removed))
	return removed, nil
}
