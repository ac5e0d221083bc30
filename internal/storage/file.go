package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chorebot/pkg/logx"
)

// maxAuditBytes caps the audit file; on Open an oversized file is rotated
// aside to <path>.1 so the trail never grows unbounded.
const maxAuditBytes = 8 << 20

// fileStore is a dependency-free persistence backend: a single append-only
// JSON Lines file.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	if fi, err := os.Stat(path); err == nil && fi.Size() > maxAuditBytes {
		rotated := path + ".1"
		if err := os.Rename(path, rotated); err != nil {
			log.Warn("audit rotate failed; appending to oversized file", logx.Err(err))
		} else {
			log.Info("audit file rotated", logx.String("to", rotated))
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f}, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.file).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
