package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"octobayNotifier/internal/model"
)

// JsonlLedger appends notification records to a JSONL file.
type JsonlLedger struct {
	path string
	mu   sync.Mutex
}

func NewJsonlLedger(path string) *JsonlLedger {
	return &JsonlLedger{path: path}
}

// PutNotification appends one record as a JSON line.
func (s *JsonlLedger) PutNotification(_ context.Context, record model.NotificationRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal notification record: %w", err)
	}
	line = append(line, '\n')

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("write notification record: %w", err)
	}
	return nil
}
