package interaction

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra"
)

const summaryFile = "session-summaries.jsonl"

// Store долговременное хранилище. Полный снимок на сессию плюс append-only журнал итогов.
type Store interface {
	SaveSession(ctx context.Context, s *domain.ChatSession) error
	// LoadSession возвращает ErrSessionNotFound, если снимка нет.
	LoadSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	AppendSummary(ctx context.Context, sum domain.SessionSummary) error
	// RecentSummaries: последние limit записей журнала, новые первыми.
	RecentSummaries(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	// Locate: где лежит снимок и сколько он занимает (для итоговой записи).
	Locate(ctx context.Context, sessionID string) (string, int64)
}

// FileStore: <dir>/<sessionId>.json и <dir>/session-summaries.jsonl
type FileStore struct {
	dir string
	mu  sync.Mutex // сериализует дозапись журнала итогов
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("interaction: create logs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) sessionPath(id string) (string, bool) {
	// id приходит и из HTTP: не выпускаем путь за пределы каталога
	if id == "" || filepath.Base(id) != id || id == "." || id == ".." {
		return "", false
	}
	return filepath.Join(s.dir, id+".json"), true
}

func (s *FileStore) SaveSession(_ context.Context, sess *domain.ChatSession) error {
	path, ok := s.sessionPath(sess.SessionID)
	if !ok {
		return fmt.Errorf("interaction: invalid session id %q", sess.SessionID)
	}
	return infra.WriteFileAtomic(path, sess)
}

func (s *FileStore) LoadSession(_ context.Context, id string) (*domain.ChatSession, error) {
	path, ok := s.sessionPath(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("interaction: read session %s: %w", id, err)
	}
	var sess domain.ChatSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("interaction: decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *FileStore) AppendSummary(_ context.Context, sum domain.SessionSummary) error {
	line, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, summaryFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("interaction: open summary log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("interaction: append summary: %w", err)
	}
	return f.Close()
}

func (s *FileStore) RecentSummaries(_ context.Context, limit int) ([]domain.SessionSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, summaryFile))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.SessionSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("interaction: read summary log: %w", err)
	}

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if l := bytes.TrimSpace(sc.Bytes()); len(l) > 0 {
			lines = append(lines, append([]byte(nil), l...))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("interaction: scan summary log: %w", err)
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	out := make([]domain.SessionSummary, 0, len(lines))
	for _, l := range lines {
		var sum domain.SessionSummary
		if err := json.Unmarshal(l, &sum); err != nil {
			continue // битая строка не прячет остальные
		}
		out = append(out, sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) Locate(_ context.Context, id string) (string, int64) {
	path, ok := s.sessionPath(id)
	if !ok {
		return "", 0
	}
	st, err := os.Stat(path)
	if err != nil {
		return path, 0
	}
	return path, st.Size()
}
