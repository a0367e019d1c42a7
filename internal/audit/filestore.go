package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
)

// FileStore хранит журнал одним JSON-файлом.
// Запись идет во временный файл с последующим атомарным rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) ([]domain.AuditEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []domain.AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore) Save(_ context.Context, entries []domain.AuditEntry) error {
	return infra.WriteFileAtomic(s.path, entries)
}
