package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

// TimestampLayout: фиксированная ширина, чтобы ключи были сравнимы и как строки.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultMaxEntries = 1000

// Store: физическое хранилище журнала (файл, Postgres).
type Store interface {
	Load(ctx context.Context) ([]domain.AuditEntry, error)
	Save(ctx context.Context, entries []domain.AuditEntry) error
}

// Log журнал доступа. In-memory записи плюс долговременное хранилище.
// Ключ дедупликации, timestamp. Две записи с одинаковым timestamp схлопываются в одну.
type Log struct {
	mu         sync.Mutex
	entries    []domain.AuditEntry
	store      Store
	maxEntries int
	logger     *zap.Logger
	now        func() time.Time
}

func NewLog(store Store, maxEntries int, logger *zap.Logger) *Log {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Log{
		store:      store,
		maxEntries: maxEntries,
		logger:     logger.Named("audit"),
		now:        time.Now,
	}
}

// Append добавляет запись в память. Пустой timestamp проставляется сейчас.
func (l *Log) Append(e domain.AuditEntry) domain.AuditEntry {
	if e.Timestamp == "" {
		e.Timestamp = l.now().UTC().Format(TimestampLayout)
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e
}

// Entries возвращает копию, отсортированную по времени.
func (l *Log) Entries() []domain.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Merge(l.entries, nil)
}

// Load вливает записи хранилища в память.
func (l *Log) Load(ctx context.Context) error {
	stored, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("audit: load: %w", err)
	}

	l.mu.Lock()
	l.entries = Merge(l.entries, stored)
	l.mu.Unlock()
	return nil
}

// Save сначала сливает память с хранилищем (чтобы параллельные инстансы сходились),
// обрезает до maxEntries самых свежих и пишет полный снимок.
func (l *Log) Save(ctx context.Context) error {
	stored, err := l.store.Load(ctx)
	if err != nil {
		// Не блокируем запись из-за битого файла, но фиксируем потерю
		l.logger.Warn("audit store unreadable, overwriting", zap.Error(err))
		stored = nil
	}

	l.mu.Lock()
	merged := trim(Merge(l.entries, stored), l.maxEntries)
	l.entries = merged
	snapshot := append([]domain.AuditEntry(nil), merged...)
	l.mu.Unlock()

	if err := l.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("audit: save: %w", err)
	}
	return nil
}

// WriteBatch точка стыковки с AgentFS. Пачка добавляется и сразу сохраняется.
func (l *Log) WriteBatch(ctx context.Context, entries []domain.AuditEntry) error {
	for _, e := range entries {
		l.Append(e)
	}
	return l.Save(ctx)
}

// Merge объединяет два набора: дубли по timestamp отбрасываются (побеждает первый набор),
// результат отсортирован по возрастанию времени.
func Merge(primary, secondary []domain.AuditEntry) []domain.AuditEntry {
	seen := make(map[string]struct{}, len(primary)+len(secondary))
	out := make([]domain.AuditEntry, 0, len(primary)+len(secondary))

	for _, set := range [][]domain.AuditEntry{primary, secondary} {
		for _, e := range set {
			if _, dup := seen[e.Timestamp]; dup {
				continue
			}
			seen[e.Timestamp] = struct{}{}
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Timestamp, out[j].Timestamp)
	})
	return out
}

func less(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return a < b
	}
	return ta.Before(tb)
}

func trim(entries []domain.AuditEntry, limit int) []domain.AuditEntry {
	if len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}
