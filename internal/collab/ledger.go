package collab

import (
	"sync"
	"time"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// Ledger: журнал сотрудничества в памяти. Каждый Record, новое событие, без дедупликации.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string][]domain.CollaborationEntry
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[string][]domain.CollaborationEntry),
		now:     time.Now,
	}
}

// Record пишет событие обоим участникам.
func (l *Ledger) Record(from, to, taskDescription string) {
	ts := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[from] = append(l.entries[from], domain.CollaborationEntry{
		WithAgent: to, TaskType: taskDescription, Timestamp: ts, Success: true,
	})
	l.entries[to] = append(l.entries[to], domain.CollaborationEntry{
		WithAgent: from, TaskType: taskDescription, Timestamp: ts, Success: true,
	})
}

// History: записи участника в порядке вставки (копия).
func (l *Ledger) History(agentID string) []domain.CollaborationEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.CollaborationEntry(nil), l.entries[agentID]...)
}
